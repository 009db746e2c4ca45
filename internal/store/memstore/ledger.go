package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"medtutor/internal/domain"
)

// Ledger is the in-process implementation of store.Ledger.
type Ledger struct {
	mu      sync.Mutex
	entries []domain.XPLedgerEntry
	byKey   map[string]bool
}

// NewLedger returns an empty Ledger store.
func NewLedger() *Ledger {
	return &Ledger{byKey: make(map[string]bool)}
}

func (s *Ledger) Init(ctx context.Context) error { return nil }

func (s *Ledger) SumXP(ctx context.Context, ownerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, e := range s.entries {
		if e.OwnerID == ownerID {
			total += e.Amount
		}
	}
	return total, nil
}

// append is called by Questions.RecordAttempt under its own lock; it takes
// the ledger's lock independently since it's a distinct struct.
func (s *Ledger) append(e domain.XPLedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.IdempotencyKey != "" && s.byKey[e.IdempotencyKey] {
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.entries = append(s.entries, e)
	if e.IdempotencyKey != "" {
		s.byKey[e.IdempotencyKey] = true
	}
	return nil
}
