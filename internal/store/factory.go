package store

import (
	"context"
	"fmt"
)

// Manager bundles the repositories a service needs, backed by either
// memstore or pgstore depending on cfg.Backend. Closer is set by the
// constructing package (internal/storewire) to release any underlying
// connection pool; it is nil for the memory backend.
type Manager struct {
	Materials     Materials
	Conversations Conversations
	Questions     Questions
	Ledger        Ledger

	Closer func()
}

// Close releases the underlying connection pool, if any.
func (m *Manager) Close() {
	if m.Closer != nil {
		m.Closer()
	}
}

// Init runs every repository's idempotent schema setup, in dependency
// order: Ledger before Questions, since Questions.RecordAttempt writes into
// the table Ledger.Init creates.
func (m *Manager) Init(ctx context.Context) error {
	if err := m.Materials.Init(ctx); err != nil {
		return fmt.Errorf("init materials: %w", err)
	}
	if err := m.Conversations.Init(ctx); err != nil {
		return fmt.Errorf("init conversations: %w", err)
	}
	if err := m.Ledger.Init(ctx); err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}
	if err := m.Questions.Init(ctx); err != nil {
		return fmt.Errorf("init questions: %w", err)
	}
	return nil
}
