// Package xp computes per-answer XP and the pure level curve derived from a
// user's ledger total. It never reads XP ledger entries itself — the sum is
// the grader's/store's job — it only does the arithmetic on that sum.
package xp

import (
	"math"

	"medtutor/internal/domain"
)

const (
	baseXP             = 10
	correctBonus       = 5
	highConfidenceBonus = 3
	highConfidenceMin   = 4
)

// ForAnswer computes the XP earned for one graded Attempt, per spec.md 4.7:
// floor(10*M(difficulty)), +5 if correct, +3 more if correct and
// confidence>=4. No penalty for a wrong answer.
func ForAnswer(difficulty domain.Difficulty, isCorrect bool, confidence int) int {
	earned := int(math.Floor(baseXP * domain.DifficultyMultiplier(difficulty)))
	if isCorrect {
		earned += correctBonus
		if confidence >= highConfidenceMin {
			earned += highConfidenceBonus
		}
	}
	if earned < 0 {
		earned = 0
	}
	return earned
}

// xpPerLevelCoefficient is the constant in xp_for_level(L) = floor(1000*L^1.5).
const xpPerLevelCoefficient = 1000.0

// xpForLevel returns the cumulative XP threshold to reach level L.
func xpForLevel(level int) int {
	return int(math.Floor(xpPerLevelCoefficient * math.Pow(float64(level), 1.5)))
}

// LevelForXP maps a cumulative XP total to a level by walking the
// cumulative thresholds xp_for_level(L); level 1 requires 0 XP. The
// function is pure and takes only the already-summed total — it must never
// read individual ledger entries.
func LevelForXP(total int) int {
	if total < 0 {
		return 1
	}
	level := 1
	for xpForLevel(level+1) <= total {
		level++
		if level > 1<<20 {
			break // defensive bound; XP totals this large are not realistic
		}
	}
	return level
}

// ProgressForXP returns the level, the XP already earned within that level,
// and the XP span required to reach the next level — for a progress bar.
func ProgressForXP(total int) (level, intoLevel, levelSpan int) {
	level = LevelForXP(total)
	floor := xpForLevel(level)
	ceil := xpForLevel(level + 1)
	return level, total - floor, ceil - floor
}
