package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/google/uuid"

	"medtutor/internal/domain"
	"medtutor/internal/errs"
)

// Materials is the Postgres-backed implementation of store.Materials.
// Chunk embeddings themselves are not persisted here: they live in the
// configured vector store, and this table carries only embedding_dim for
// bookkeeping.
type Materials struct {
	pool *pgxpool.Pool
}

// NewMaterials returns a Materials repository bound to pool.
func NewMaterials(pool *pgxpool.Pool) *Materials {
	return &Materials{pool: pool}
}

func (s *Materials) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS materials (
    id UUID PRIMARY KEY,
    owner_id TEXT NOT NULL,
    original_filename TEXT NOT NULL,
    stored_location TEXT NOT NULL,
    content_type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    chunk_count INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    archived BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS materials_owner_created_idx ON materials(owner_id, created_at DESC);

CREATE TABLE IF NOT EXISTS chunks (
    id UUID PRIMARY KEY,
    material_id UUID NOT NULL REFERENCES materials(id) ON DELETE CASCADE,
    owner_id TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    char_start INTEGER NOT NULL,
    char_end INTEGER NOT NULL,
    page_hint INTEGER,
    text TEXT NOT NULL,
    embedding_dim INTEGER NOT NULL DEFAULT 0,
    section_heading TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE(material_id, ordinal)
);

CREATE INDEX IF NOT EXISTS chunks_material_idx ON chunks(material_id);
`)
	return err
}

func (s *Materials) CreateMaterial(ctx context.Context, m domain.Material) (domain.Material, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO materials (id, owner_id, original_filename, stored_location, content_type, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, owner_id, original_filename, stored_location, content_type, status, chunk_count, error_message, archived, created_at`,
		m.ID, m.OwnerID, m.OriginalFilename, m.StoredLocation, m.ContentType, string(domain.MaterialPending))
	return scanMaterial(row)
}

func (s *Materials) GetMaterial(ctx context.Context, ownerID, id string) (domain.Material, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, owner_id, original_filename, stored_location, content_type, status, chunk_count, error_message, archived, created_at
FROM materials WHERE id = $1`, id)
	m, err := scanMaterial(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Material{}, errs.NewOwnership("material", id)
		}
		return domain.Material{}, err
	}
	if m.OwnerID != ownerID {
		return domain.Material{}, errs.NewOwnership("material", id)
	}
	return m, nil
}

func (s *Materials) ListMaterials(ctx context.Context, ownerID string) ([]domain.Material, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, owner_id, original_filename, stored_location, content_type, status, chunk_count, error_message, archived, created_at
FROM materials WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Material, 0)
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Materials) TransitionPendingToProcessing(ctx context.Context, id string) (bool, error) {
	cmd, err := s.pool.Exec(ctx, `
UPDATE materials SET status = $2 WHERE id = $1 AND status = $3`,
		id, string(domain.MaterialProcessing), string(domain.MaterialPending))
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *Materials) DeleteChunksForMaterial(ctx context.Context, materialID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE material_id = $1`, materialID)
	return err
}

func (s *Materials) CompleteIngestion(ctx context.Context, materialID string, chunks []domain.Chunk) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, c := range chunks {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO chunks (id, material_id, owner_id, ordinal, char_start, char_end, page_hint, text, embedding_dim, section_heading)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			id, materialID, c.OwnerID, c.Ordinal, c.CharStart, c.CharEnd, c.PageHint, c.Text, c.EmbeddingDim, c.SectionHeading); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.Ordinal, err)
		}
	}

	cmd, err := tx.Exec(ctx, `
UPDATE materials SET status = $2, chunk_count = $3, error_message = '' WHERE id = $1`,
		materialID, string(domain.MaterialCompleted), len(chunks))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return errs.NewOwnership("material", materialID)
	}
	return tx.Commit(ctx)
}

func (s *Materials) FailIngestion(ctx context.Context, materialID string, errMsg string) error {
	cmd, err := s.pool.Exec(ctx, `
UPDATE materials SET status = $2, error_message = $3 WHERE id = $1`,
		materialID, string(domain.MaterialFailed), errMsg)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return errs.NewOwnership("material", materialID)
	}
	return nil
}

func (s *Materials) GetChunks(ctx context.Context, materialID string) ([]domain.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, material_id, owner_id, ordinal, char_start, char_end, page_hint, text, embedding_dim, section_heading, created_at
FROM chunks WHERE material_id = $1 ORDER BY ordinal ASC`, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *Materials) GetChunksByIDs(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, material_id, owner_id, ordinal, char_start, char_end, page_hint, text, embedding_dim, section_heading, created_at
FROM chunks WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func scanMaterial(row pgx.Row) (domain.Material, error) {
	var m domain.Material
	var status string
	if err := row.Scan(&m.ID, &m.OwnerID, &m.OriginalFilename, &m.StoredLocation, &m.ContentType,
		&status, &m.ChunkCount, &m.ErrorMessage, &m.Archived, &m.CreatedAt); err != nil {
		return domain.Material{}, err
	}
	m.Status = domain.MaterialStatus(status)
	return m, nil
}

func scanChunks(rows pgx.Rows) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, 0)
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.MaterialID, &c.OwnerID, &c.Ordinal, &c.CharStart, &c.CharEnd,
			&c.PageHint, &c.Text, &c.EmbeddingDim, &c.SectionHeading, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
