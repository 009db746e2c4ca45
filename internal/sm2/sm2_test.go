package sm2

import (
	"testing"
	"time"

	"medtutor/internal/domain"
)

func TestQuality(t *testing.T) {
	cases := []struct {
		name       string
		correct    bool
		confidence int
		seconds    int
		want       int
	}{
		{"overconfident miss", false, 5, 30, 0},
		{"middling miss", false, 3, 30, 1},
		{"low-confidence miss", false, 1, 30, 2},
		{"low-confidence correct", true, 2, 30, 3},
		{"middling correct", true, 3, 30, 4},
		{"confident correct fast", true, 5, 60, 5},
		{"confident correct slow", true, 5, 200, 4},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Quality(c.correct, c.confidence, c.seconds); got != c.want {
				t.Errorf("Quality(%v,%d,%d) = %d, want %d", c.correct, c.confidence, c.seconds, got, c.want)
			}
		})
	}
}

func TestTransitionFreshCardPerfectTwice(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := domain.InitialSM2State()

	first, due1 := Transition(prev, 5, now)
	if first.Repetition != 1 || first.IntervalDays != 1 {
		t.Fatalf("first transition = %+v, want repetition=1 interval=1", first)
	}
	if !due1.Equal(now.AddDate(0, 0, 1)) {
		t.Fatalf("due1 = %v, want %v", due1, now.AddDate(0, 0, 1))
	}

	second, _ := Transition(first, 5, now.AddDate(0, 0, 1))
	if second.Repetition != 2 || second.IntervalDays != 6 {
		t.Fatalf("second transition = %+v, want repetition=2 interval=6", second)
	}
	if second.Easiness < first.Easiness {
		t.Fatalf("easiness should be non-decreasing for q=5: %v -> %v", first.Easiness, second.Easiness)
	}
}

func TestTransitionLowQualityResets(t *testing.T) {
	now := time.Now().UTC()
	prev := domain.SM2State{IntervalDays: 30, Easiness: 2.3, Repetition: 5}
	next, due := Transition(prev, 1, now)
	if next.Repetition != 0 || next.IntervalDays != 1 {
		t.Fatalf("low quality transition = %+v, want repetition=0 interval=1", next)
	}
	if !due.Equal(now.AddDate(0, 0, 1)) {
		t.Fatalf("due = %v, want now+1day", due)
	}
}

func TestReviewStatus(t *testing.T) {
	if got := ReviewStatus(domain.SM2State{Repetition: 0}, false); got != domain.ReviewNew {
		t.Errorf("want new, got %s", got)
	}
	if got := ReviewStatus(domain.SM2State{Repetition: 1, IntervalDays: 1}, true); got != domain.ReviewLearning {
		t.Errorf("want learning, got %s", got)
	}
	if got := ReviewStatus(domain.SM2State{Repetition: 3, IntervalDays: 15}, true); got != domain.ReviewReviewing {
		t.Errorf("want reviewing, got %s", got)
	}
	if got := ReviewStatus(domain.SM2State{Repetition: 4, IntervalDays: 21}, true); got != domain.ReviewMastered {
		t.Errorf("want mastered, got %s", got)
	}
}

func TestEasinessClamped(t *testing.T) {
	now := time.Now().UTC()
	prev := domain.SM2State{IntervalDays: 1, Easiness: 1.3, Repetition: 0}
	next, _ := Transition(prev, 0, now)
	if next.Easiness < 1.3 {
		t.Fatalf("easiness %v below floor 1.3", next.Easiness)
	}
}
