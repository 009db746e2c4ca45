// Package memstore implements internal/store's repository interfaces with
// plain in-process maps guarded by sync.RWMutex, for tests and local dev
// without a Postgres instance.
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

// Materials is the in-process implementation of store.Materials.
type Materials struct {
	mu     sync.RWMutex
	byID   map[string]domain.Material
	chunks map[string][]domain.Chunk // materialID -> chunks, ordinal order
}

// NewMaterials returns an empty Materials store.
func NewMaterials() *Materials {
	return &Materials{byID: make(map[string]domain.Material), chunks: make(map[string][]domain.Chunk)}
}

func (s *Materials) Init(ctx context.Context) error { return nil }

func (s *Materials) CreateMaterial(ctx context.Context, m domain.Material) (domain.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Status = domain.MaterialPending
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.byID[m.ID] = m
	return m, nil
}

func (s *Materials) GetMaterial(ctx context.Context, ownerID, id string) (domain.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok || m.OwnerID != ownerID {
		return domain.Material{}, errs.NewOwnership("material", id)
	}
	return m, nil
}

func (s *Materials) ListMaterials(ctx context.Context, ownerID string) ([]domain.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Material, 0)
	for _, m := range s.byID {
		if m.OwnerID == ownerID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Materials) TransitionPendingToProcessing(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok || m.Status != domain.MaterialPending {
		return false, nil
	}
	m.Status = domain.MaterialProcessing
	s.byID[id] = m
	return true, nil
}

func (s *Materials) DeleteChunksForMaterial(ctx context.Context, materialID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, materialID)
	return nil
}

func (s *Materials) CompleteIngestion(ctx context.Context, materialID string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[materialID]
	if !ok {
		return errs.NewOwnership("material", materialID)
	}
	stored := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		stored[i] = c
	}
	s.chunks[materialID] = stored
	m.Status = domain.MaterialCompleted
	m.ChunkCount = len(stored)
	m.ErrorMessage = ""
	s.byID[materialID] = m
	return nil
}

func (s *Materials) FailIngestion(ctx context.Context, materialID string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[materialID]
	if !ok {
		return errs.NewOwnership("material", materialID)
	}
	m.Status = domain.MaterialFailed
	m.ErrorMessage = errMsg
	s.byID[materialID] = m
	return nil
}

func (s *Materials) GetChunks(ctx context.Context, materialID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Chunk, len(s.chunks[materialID]))
	copy(out, s.chunks[materialID])
	return out, nil
}

func (s *Materials) GetChunksByIDs(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]domain.Chunk, 0, len(ids))
	for _, cs := range s.chunks {
		for _, c := range cs {
			if want[c.ID] {
				out = append(out, c)
			}
		}
	}
	return out, nil
}
