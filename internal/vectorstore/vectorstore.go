// Package vectorstore defines the similarity-search contract the RAG
// retriever runs against, plus a Qdrant-backed implementation and an
// in-process fallback for tests and local dev. Every implementation ANDs an
// owner_id filter onto every search regardless of caller-supplied filters,
// so a caller can never retrieve another user's Chunks by omission.
package vectorstore

import "context"

// Record is one embedded Chunk as the vector store sees it: an opaque id,
// the embedding, and string metadata used for filtering (owner_id,
// material_id, topic).
type Record struct {
	ID        string
	Vector    []float32
	Metadata  map[string]string
}

// Filter narrows a Search to Chunks matching all of the given metadata
// fields. OwnerID is mandatory and is ANDed in by every implementation even
// if the caller also supplies it here.
type Filter struct {
	OwnerID    string
	MaterialID string // optional
	Topic      string // optional
}

// Result is one search hit: similarity in [-1, 1] for cosine metric (the
// default), descending by score, ties broken ascending by ID. Vector is
// populated so callers (the MMR re-ranker in internal/rag/retrieve) can
// score candidate diversity without a second round-trip per Chunk.
type Result struct {
	ID       string
	Score    float64
	Vector   []float32
	Metadata map[string]string
}

// VectorStore is the similarity-search contract. Implementations must AND
// Filter.OwnerID onto the query regardless of what else is in Filter.
type VectorStore interface {
	// Upsert inserts or replaces a Record. Metadata must include owner_id.
	Upsert(ctx context.Context, rec Record) error

	// Search returns up to k nearest neighbors to vector matching filter,
	// ordered by descending score with ties broken ascending by ID.
	Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Result, error)

	// DeleteByMaterial removes every Record tagged with the given
	// material_id, used when a Material is deleted or re-ingested.
	DeleteByMaterial(ctx context.Context, ownerID, materialID string) error

	// Dimension reports the configured embedding dimension.
	Dimension() int

	Close() error
}

const (
	metadataOwnerID    = "owner_id"
	metadataMaterialID = "material_id"
	metadataTopic      = "topic"
)
