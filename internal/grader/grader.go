// Package grader scores a submitted Question answer and atomically updates
// the Question's counters, the SM-2 scheduling state, and the XP ledger, per
// spec.md 4.6.
package grader

import (
	"context"
	"fmt"
	"time"

	"medtutor/internal/analytics"
	"medtutor/internal/domain"
	"medtutor/internal/errs"
	"medtutor/internal/sm2"
	"medtutor/internal/store"
	"medtutor/internal/xp"
)

// doubleSubmitWindowSeconds is the correctness guard against double-submit,
// per spec.md 4.6 — not adversarial defense, just a same-answer debounce.
const doubleSubmitWindowSeconds = 5

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Grader wires store.Questions to the pure sm2/xp packages.
type Grader struct {
	questions store.Questions
	now       Clock
	analytics *analytics.Sink
}

// New constructs a Grader. now defaults to time.Now when nil. sink may be
// nil, in which case attempts are graded and persisted but not streamed to
// the analytics store.
func New(questions store.Questions, now Clock, sink *analytics.Sink) *Grader {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Grader{questions: questions, now: now, analytics: sink}
}

// Submission is the validated input to Submit, already checked by the
// transport layer for enum/range bounds (spec.md 8's boundary behaviors):
// confidence in [1,5], time_taken_seconds in [1,3600].
type Submission struct {
	OwnerID          string
	QuestionID       string
	SelectedIndex    int
	Confidence       int
	TimeTakenSeconds int
}

// Result is what Submit returns to the caller, per spec.md 4.6 step 6.
type Result struct {
	IsCorrect      bool
	CorrectIndex   int
	Explanation    string
	XPEarned       int
	NextReviewDate time.Time
	ReviewStatus   domain.ReviewStatus
}

// Submit validates, scores, and atomically persists one Attempt.
func (g *Grader) Submit(ctx context.Context, sub Submission) (Result, error) {
	if sub.Confidence < 1 || sub.Confidence > 5 {
		return Result{}, errs.NewValidation("confidence", "must be in [1,5]")
	}
	if sub.TimeTakenSeconds < 1 || sub.TimeTakenSeconds > 3600 {
		return Result{}, errs.NewValidation("time_taken_seconds", "must be in [1,3600]")
	}
	if sub.SelectedIndex < 0 || sub.SelectedIndex >= 4 {
		return Result{}, errs.NewValidation("selected_index", "must be in [0,4)")
	}

	q, err := g.questions.GetQuestion(ctx, sub.QuestionID)
	if err != nil {
		return Result{}, err
	}
	if q.OwnerID != "" && q.OwnerID != sub.OwnerID {
		return Result{}, errs.NewOwnership("question", sub.QuestionID)
	}

	recent, err := g.questions.RecentAttemptWithin(ctx, sub.OwnerID, sub.QuestionID, doubleSubmitWindowSeconds)
	if err != nil {
		return Result{}, fmt.Errorf("check recent attempt: %w", err)
	}
	if recent {
		return Result{}, errs.NewConflict("an attempt on this question was already submitted in the last 5 seconds")
	}

	now := g.now()
	isCorrect := sub.SelectedIndex == q.CorrectIndex

	prevState := domain.InitialSM2State()
	hadPrior := false
	if latest, ok, err := g.questions.LatestAttempt(ctx, sub.OwnerID, sub.QuestionID); err != nil {
		return Result{}, fmt.Errorf("load latest attempt: %w", err)
	} else if ok {
		prevState = latest.SM2
		hadPrior = true
	}

	quality := sm2.Quality(isCorrect, sub.Confidence, sub.TimeTakenSeconds)
	nextState, nextReviewDate := sm2.Transition(prevState, quality, now)
	reviewStatus := sm2.ReviewStatus(nextState, hadPrior)

	xpEarned := xp.ForAnswer(q.Difficulty, isCorrect, sub.Confidence)

	attempt := domain.Attempt{
		OwnerID:          sub.OwnerID,
		QuestionID:       sub.QuestionID,
		SelectedIndex:    sub.SelectedIndex,
		IsCorrect:        isCorrect,
		Confidence:       sub.Confidence,
		TimeTakenSeconds: sub.TimeTakenSeconds,
		XPEarned:         xpEarned,
		SM2:              nextState,
		NextReviewDate:   nextReviewDate,
		ReviewStatus:     reviewStatus,
		AnsweredAt:       now,
	}

	// The ledger idempotency key is derived from (owner, question, answered
	// instant) rather than the Attempt ID, since RecordAttempt assigns that
	// ID inside the store and it isn't available yet here.
	ledgerEntry := domain.XPLedgerEntry{
		OwnerID:        sub.OwnerID,
		Amount:         xpEarned,
		Source:         domain.XPQuestionAnswered,
		IdempotencyKey: fmt.Sprintf("%s:%s:%d", sub.OwnerID, sub.QuestionID, now.UnixNano()),
		CreatedAt:      now,
	}

	if err := g.questions.RecordAttempt(ctx, attempt, ledgerEntry); err != nil {
		return Result{}, fmt.Errorf("record attempt: %w", err)
	}

	g.analytics.RecordAttempt(sub.OwnerID, sub.QuestionID, q.Topic, isCorrect, xpEarned, now)

	return Result{
		IsCorrect:      isCorrect,
		CorrectIndex:   q.CorrectIndex,
		Explanation:    q.Explanation,
		XPEarned:       xpEarned,
		NextReviewDate: nextReviewDate,
		ReviewStatus:   reviewStatus,
	}, nil
}

// DueReviews returns the due queue for a user, per spec.md 4.8's ordering.
func (g *Grader) DueReviews(ctx context.Context, ownerID string) ([]store.DueItem, error) {
	return g.questions.DueForReview(ctx, ownerID, g.now())
}
