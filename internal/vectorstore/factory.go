package vectorstore

import (
	"context"
	"fmt"

	"medtutor/internal/config"
)

// New constructs a VectorStore from cfg. Supported backends: memory, qdrant.
func New(ctx context.Context, cfg config.VectorConfig) (VectorStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.Dimensions), nil
	case "qdrant":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("vector backend qdrant requires a dsn")
		}
		return NewQdrantStore(ctx, cfg.DSN, cfg.Collection, cfg.Dimensions, cfg.Metric)
	default:
		return nil, fmt.Errorf("unsupported vector backend: %s", cfg.Backend)
	}
}
