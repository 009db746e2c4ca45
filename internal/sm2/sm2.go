// Package sm2 implements the SM-2 spaced-repetition transition: a pure
// function (prevState, quality) -> nextState, with no I/O of its own. The
// grader wraps a call to Transition in the database read-compute-write
// transaction that persists the result.
package sm2

import (
	"time"

	"medtutor/internal/domain"
)

// minEasiness/maxEasiness bound the easiness factor per spec.md 4.8.
const (
	minEasiness = 1.3
	maxEasiness = 2.5

	// optimalSeconds is the default "optimal" answer time used to detect a
	// correct-but-slow answer, which knocks the derived quality down by one.
	optimalSeconds = 90
	slowFactor     = 1.5

	masteredIntervalDays = 21
	reviewingRepetition  = 3
)

// Quality derives q in {0,...,5} from the outcome of one Attempt, per
// spec.md 4.8.
func Quality(isCorrect bool, confidence, timeTakenSeconds int) int {
	if !isCorrect {
		switch {
		case confidence >= 4:
			return 0
		case confidence == 3:
			return 1
		default:
			return 2
		}
	}

	var q int
	switch {
	case confidence <= 2:
		q = 3
	case confidence == 3:
		q = 4
	default:
		q = 5
	}
	if timeTakenSeconds > int(float64(optimalSeconds)*slowFactor) && q > 3 {
		q--
	}
	return q
}

// Transition computes the next SM-2 state from prev and the derived
// quality q, per spec.md 4.8. now is the instant the grading occurs; the
// returned NextReviewDate is now plus the new interval in days.
func Transition(prev domain.SM2State, q int, now time.Time) (next domain.SM2State, nextReviewDate time.Time) {
	next.Easiness = clampEasiness(prev.Easiness + 0.1 - float64(5-q)*(0.08+float64(5-q)*0.02))

	if q >= 3 {
		next.Repetition = prev.Repetition + 1
		switch next.Repetition {
		case 1:
			next.IntervalDays = 1
		case 2:
			next.IntervalDays = 6
		default:
			next.IntervalDays = roundInterval(float64(prev.IntervalDays) * next.Easiness)
		}
	} else {
		next.Repetition = 0
		next.IntervalDays = 1
	}
	if next.IntervalDays < 1 {
		next.IntervalDays = 1
	}

	nextReviewDate = now.AddDate(0, 0, next.IntervalDays)
	return next, nextReviewDate
}

// ReviewStatus derives the scheduling bucket from the post-transition state.
// hadPriorAttempt distinguishes a never-answered card (new) from a card that
// regressed back to repetition 0 (learning).
func ReviewStatus(next domain.SM2State, hadPriorAttempt bool) domain.ReviewStatus {
	switch {
	case next.Repetition == 0 && !hadPriorAttempt:
		return domain.ReviewNew
	case next.IntervalDays >= masteredIntervalDays:
		return domain.ReviewMastered
	case next.Repetition >= reviewingRepetition:
		return domain.ReviewReviewing
	default:
		return domain.ReviewLearning
	}
}

func clampEasiness(e float64) float64 {
	if e < minEasiness {
		return minEasiness
	}
	if e > maxEasiness {
		return maxEasiness
	}
	return e
}

// roundInterval rounds to the nearest integer day, per spec.md's
// round(interval * easiness) — away from zero on the .5 boundary, matching
// the usual "round half up" reading of spaced-repetition references.
func roundInterval(days float64) int {
	return int(days + 0.5)
}
