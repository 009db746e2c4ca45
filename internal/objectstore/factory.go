package objectstore

import (
	"context"
	"fmt"

	"medtutor/internal/config"
)

// New builds an ObjectStore per cfg.Backend: "memory" or "s3".
func New(ctx context.Context, cfg config.ObjectStoreConfig) (ObjectStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported object store backend: %s", cfg.Backend)
	}
}
