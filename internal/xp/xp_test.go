package xp

import (
	"testing"

	"medtutor/internal/domain"
)

func TestForAnswer(t *testing.T) {
	cases := []struct {
		name       string
		difficulty domain.Difficulty
		correct    bool
		confidence int
		want       int
	}{
		{"medium correct high confidence", domain.DifficultyMedium, true, 5, 23},
		{"easy wrong", domain.DifficultyEasy, false, 1, 10},
		{"nbme correct low confidence", domain.DifficultyNBME, true, 2, 30},
		{"hard correct confidence 4", domain.DifficultyHard, true, 4, 28},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ForAnswer(c.difficulty, c.correct, c.confidence); got != c.want {
				t.Errorf("ForAnswer(%s,%v,%d) = %d, want %d", c.difficulty, c.correct, c.confidence, got, c.want)
			}
		})
	}
}

func TestLevelForXP(t *testing.T) {
	if got := LevelForXP(0); got != 1 {
		t.Errorf("LevelForXP(0) = %d, want 1", got)
	}
	if got := LevelForXP(-5); got != 1 {
		t.Errorf("LevelForXP(-5) = %d, want 1", got)
	}
	// level 2 threshold is floor(1000*2^1.5) = 2828
	if got := LevelForXP(2827); got != 1 {
		t.Errorf("LevelForXP(2827) = %d, want 1", got)
	}
	if got := LevelForXP(2828); got != 2 {
		t.Errorf("LevelForXP(2828) = %d, want 2", got)
	}
}

func TestProgressForXPMonotonic(t *testing.T) {
	level, into, span := ProgressForXP(5000)
	if level < 1 || into < 0 || span <= 0 {
		t.Fatalf("ProgressForXP(5000) = %d,%d,%d looks wrong", level, into, span)
	}
	if into >= span {
		t.Fatalf("into (%d) should be less than span (%d)", into, span)
	}
}
