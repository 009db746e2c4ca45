package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"medtutor/internal/domain"
	"medtutor/internal/errs"
	"medtutor/internal/store"
)

// Questions is the in-process implementation of store.Questions.
type Questions struct {
	mu        sync.Mutex
	byID      map[string]domain.Question
	attempts  map[string][]domain.Attempt // questionID -> attempts, append order
	ledger    *Ledger
}

// NewQuestions returns an empty Questions store backed by ledger for the
// atomic RecordAttempt write.
func NewQuestions(ledger *Ledger) *Questions {
	return &Questions{byID: make(map[string]domain.Question), attempts: make(map[string][]domain.Attempt), ledger: ledger}
}

func (s *Questions) Init(ctx context.Context) error { return nil }

func (s *Questions) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	s.byID[q.ID] = q
	return q, nil
}

func (s *Questions) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.byID[id]
	if !ok {
		return domain.Question{}, errs.NewOwnership("question", id)
	}
	return q, nil
}

func (s *Questions) DeleteQuestion(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.byID[id]
	if !ok || q.OwnerID != ownerID {
		return errs.NewOwnership("question", id)
	}
	delete(s.byID, id)
	delete(s.attempts, id)
	return nil
}

func (s *Questions) HasDuplicateHash(ctx context.Context, ownerID, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.byID {
		if q.OwnerID == ownerID && q.DuplicateHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (s *Questions) DueForReview(ctx context.Context, ownerID string, asOf time.Time) ([]store.DueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.DueItem, 0)
	for _, q := range s.byID {
		if q.OwnerID != ownerID {
			continue
		}
		item := store.DueItem{Question: q, ReviewStatus: domain.ReviewNew}
		if latest := s.latestAttemptLocked(ownerID, q.ID); latest != nil {
			item.NextReviewDate = latest.NextReviewDate
			item.ReviewStatus = latest.ReviewStatus
			if latest.NextReviewDate.After(asOf) {
				continue
			}
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextReviewDate.Equal(out[j].NextReviewDate) {
			return out[i].NextReviewDate.Before(out[j].NextReviewDate)
		}
		return out[i].Question.ID < out[j].Question.ID
	})
	return out, nil
}

func (s *Questions) LatestAttempt(ctx context.Context, ownerID, questionID string) (domain.Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.latestAttemptLocked(ownerID, questionID)
	if a == nil {
		return domain.Attempt{}, false, nil
	}
	return *a, true, nil
}

func (s *Questions) latestAttemptLocked(ownerID, questionID string) *domain.Attempt {
	var latest *domain.Attempt
	for i, a := range s.attempts[questionID] {
		if a.OwnerID != ownerID {
			continue
		}
		if latest == nil || a.AnsweredAt.After(latest.AnsweredAt) {
			latest = &s.attempts[questionID][i]
		}
	}
	return latest
}

func (s *Questions) RecordAttempt(ctx context.Context, a domain.Attempt, ledgerEntry domain.XPLedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.byID[a.QuestionID]
	if !ok {
		return errs.NewOwnership("question", a.QuestionID)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AnsweredAt.IsZero() {
		a.AnsweredAt = time.Now().UTC()
	}
	s.attempts[a.QuestionID] = append(s.attempts[a.QuestionID], a)

	q.TimesAnswered++
	if a.IsCorrect {
		q.TimesCorrect++
	}
	s.byID[a.QuestionID] = q

	return s.ledger.append(ledgerEntry)
}

func (s *Questions) RecentAttemptWithin(ctx context.Context, ownerID, questionID string, windowSeconds int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-time.Duration(windowSeconds) * time.Second)
	for _, a := range s.attempts[questionID] {
		if a.OwnerID == ownerID && a.AnsweredAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}
