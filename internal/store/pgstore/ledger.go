package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Ledger is the Postgres-backed implementation of store.Ledger.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger returns a Ledger repository bound to pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

func (s *Ledger) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS xp_ledger (
    id UUID PRIMARY KEY,
    owner_id TEXT NOT NULL,
    amount INTEGER NOT NULL,
    source TEXT NOT NULL,
    idempotency_key TEXT NOT NULL,
    metadata JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS xp_ledger_idempotency_idx ON xp_ledger(idempotency_key);
CREATE INDEX IF NOT EXISTS xp_ledger_owner_idx ON xp_ledger(owner_id, created_at DESC);
`)
	return err
}

// SumXP returns the sum of a user's ledger entries, the only permitted way
// to compute reported XP — never recomputed from Attempts.
func (s *Ledger) SumXP(ctx context.Context, ownerID string) (int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `
SELECT COALESCE(SUM(amount), 0) FROM xp_ledger WHERE owner_id = $1`, ownerID).Scan(&total)
	return total, err
}
