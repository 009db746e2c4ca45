package grader_test

import (
	"context"
	"testing"
	"time"

	"medtutor/internal/domain"
	"medtutor/internal/errs"
	"medtutor/internal/grader"
	"medtutor/internal/store/memstore"
)

func newQuestions(t *testing.T) (*memstore.Questions, domain.Question) {
	t.Helper()
	ledger := memstore.NewLedger()
	questions := memstore.NewQuestions(ledger)
	q, err := questions.CreateQuestion(context.Background(), domain.Question{
		OwnerID:      "user-1",
		Vignette:     "vignette",
		Options:      [4]string{"a", "b", "c", "d"},
		CorrectIndex: 2,
		Explanation:  "because c",
		Difficulty:   domain.DifficultyMedium,
	})
	if err != nil {
		t.Fatalf("CreateQuestion: %v", err)
	}
	return questions, q
}

func TestSubmitCorrectHighConfidence(t *testing.T) {
	questions, q := newQuestions(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := grader.New(questions, func() time.Time { return now }, nil)

	res, err := g.Submit(context.Background(), grader.Submission{
		OwnerID:          "user-1",
		QuestionID:       q.ID,
		SelectedIndex:    2,
		Confidence:       5,
		TimeTakenSeconds: 60,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.IsCorrect {
		t.Fatalf("expected correct")
	}
	if res.XPEarned != 23 {
		t.Fatalf("XPEarned = %d, want 23", res.XPEarned)
	}
	if res.ReviewStatus != domain.ReviewLearning {
		t.Fatalf("ReviewStatus = %s, want learning", res.ReviewStatus)
	}
	if !res.NextReviewDate.Equal(now.AddDate(0, 0, 1)) {
		t.Fatalf("NextReviewDate = %v, want now+1d", res.NextReviewDate)
	}
}

func TestSubmitOverconfidentMiss(t *testing.T) {
	questions, q := newQuestions(t)
	now := time.Now().UTC()
	g := grader.New(questions, func() time.Time { return now }, nil)

	res, err := g.Submit(context.Background(), grader.Submission{
		OwnerID:          "user-1",
		QuestionID:       q.ID,
		SelectedIndex:    0,
		Confidence:       5,
		TimeTakenSeconds: 30,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.IsCorrect {
		t.Fatalf("expected incorrect")
	}
	if res.XPEarned != 15 {
		t.Fatalf("XPEarned = %d, want 15 (no bonuses)", res.XPEarned)
	}
}

func TestSubmitRejectsDoubleSubmit(t *testing.T) {
	questions, q := newQuestions(t)
	now := time.Now().UTC()
	g := grader.New(questions, func() time.Time { return now }, nil)
	ctx := context.Background()
	sub := grader.Submission{OwnerID: "user-1", QuestionID: q.ID, SelectedIndex: 2, Confidence: 3, TimeTakenSeconds: 30}

	if _, err := g.Submit(ctx, sub); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if _, err := g.Submit(ctx, sub); !errs.IsConflict(err) {
		t.Fatalf("second Submit err = %v, want ConflictError", err)
	}
}

func TestSubmitRejectsOutOfRangeConfidence(t *testing.T) {
	questions, q := newQuestions(t)
	g := grader.New(questions, nil, nil)
	_, err := g.Submit(context.Background(), grader.Submission{
		OwnerID: "user-1", QuestionID: q.ID, SelectedIndex: 0, Confidence: 6, TimeTakenSeconds: 10,
	})
	if !errs.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}
