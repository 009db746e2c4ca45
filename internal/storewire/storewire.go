// Package storewire selects and constructs the store.Manager backend
// (memstore or pgstore) from configuration. It is the one place allowed to
// import both internal/store/memstore and internal/store/pgstore, since
// those packages themselves must not depend on each other.
package storewire

import (
	"context"
	"fmt"

	"medtutor/internal/config"
	"medtutor/internal/store"
	"medtutor/internal/store/memstore"
	"medtutor/internal/store/pgstore"
)

// New builds a store.Manager per cfg.Backend: "memory" or "postgres".
func New(ctx context.Context, cfg config.StoreConfig) (*store.Manager, error) {
	switch cfg.Backend {
	case "", "memory":
		ledger := memstore.NewLedger()
		return &store.Manager{
			Materials:     memstore.NewMaterials(),
			Conversations: memstore.NewConversations(),
			Ledger:        ledger,
			Questions:     memstore.NewQuestions(ledger),
		}, nil
	case "postgres", "pg":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("store backend postgres requires a dsn")
		}
		pool, err := pgstore.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return &store.Manager{
			Materials:     pgstore.NewMaterials(pool),
			Conversations: pgstore.NewConversations(pool),
			Questions:     pgstore.NewQuestions(pool),
			Ledger:        pgstore.NewLedger(pool),
			Closer:        pool.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}
