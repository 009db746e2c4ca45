// Package ingest turns an uploaded Material into searchable, embedded
// Chunks: parse -> chunk -> embed -> persist, with delete-then-rerun
// semantics so a failed or retried run never leaves duplicate Chunks behind.
package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"medtutor/internal/domain"
	"medtutor/internal/errs"
	"medtutor/internal/objectstore"
	"medtutor/internal/rag/chunker"
	"medtutor/internal/rag/embedder"
	"medtutor/internal/rag/parse"
	"medtutor/internal/store"
	"medtutor/internal/vectorstore"
)

// maxUpsertConcurrency bounds how many Chunks are embedded-and-upserted into
// the vector store concurrently during one Run.
const maxUpsertConcurrency = 8

// Pipeline wires the Material lifecycle (spec'd as enqueue/run) to the
// parse/chunk/embed/vectorstore components.
type Pipeline struct {
	materials store.Materials
	objects   objectstore.ObjectStore
	vectors   vectorstore.VectorStore
	embed     embedder.Embedder
}

// New constructs a Pipeline.
func New(materials store.Materials, objects objectstore.ObjectStore, vectors vectorstore.VectorStore, embed embedder.Embedder) *Pipeline {
	return &Pipeline{materials: materials, objects: objects, vectors: vectors, embed: embed}
}

// Enqueue atomically transitions a Material from pending to processing. A
// second call for the same Material is a no-op (ok=false, no error) since
// the Material is no longer pending.
func (p *Pipeline) Enqueue(ctx context.Context, materialID string) (bool, error) {
	return p.materials.TransitionPendingToProcessing(ctx, materialID)
}

// Run executes one ingestion pass for a Material already in the processing
// state. It is safe to call again after a prior failed Run: any partial
// Chunks (relational and vector) from the previous attempt are deleted
// before re-parsing, so the end state is always exactly the current run's
// output, never a mix of two runs.
func (p *Pipeline) Run(ctx context.Context, ownerID, materialID string) error {
	m, err := p.materials.GetMaterial(ctx, ownerID, materialID)
	if err != nil {
		return fmt.Errorf("load material: %w", err)
	}

	if err := p.materials.DeleteChunksForMaterial(ctx, materialID); err != nil {
		return p.fail(ctx, materialID, "persist", err)
	}
	if err := p.vectors.DeleteByMaterial(ctx, ownerID, materialID); err != nil {
		return p.fail(ctx, materialID, "persist", err)
	}

	data, err := p.readObject(ctx, m.StoredLocation)
	if err != nil {
		return p.fail(ctx, materialID, "parse", err)
	}

	parser, err := parse.ParserFor(m.ContentType)
	if err != nil {
		return p.fail(ctx, materialID, "parse", err)
	}
	doc, err := parser.Parse(ctx, data)
	if err != nil {
		return p.fail(ctx, materialID, "parse", err)
	}

	chunks := chunker.Split(materialID, ownerID, doc.Text)
	if len(chunks) == 0 {
		return p.fail(ctx, materialID, "chunk", fmt.Errorf("no chunks produced from material text"))
	}
	for i := range chunks {
		chunks[i].PageHint = doc.PageHintAt(chunks[i].CharStart)
		// Assigned here, not left to the store, so the vector store record
		// and the relational Chunk row share the same ID.
		chunks[i].ID = uuid.NewString()
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embed.EmbedBatch(ctx, texts)
	if err != nil {
		return p.fail(ctx, materialID, "embed", err)
	}
	if len(vectors) != len(chunks) {
		return p.fail(ctx, materialID, "embed", fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
		chunks[i].EmbeddingDim = len(vectors[i])
	}

	if err := p.upsertAll(ctx, ownerID, chunks); err != nil {
		return p.fail(ctx, materialID, "embed", err)
	}

	if err := p.materials.CompleteIngestion(ctx, materialID, chunks); err != nil {
		return p.fail(ctx, materialID, "persist", err)
	}
	return nil
}

func (p *Pipeline) readObject(ctx context.Context, location string) ([]byte, error) {
	rc, _, err := p.objects.Get(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("read material bytes: %w", err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// upsertAll writes every Chunk's embedding into the vector store, bounded to
// maxUpsertConcurrency in flight at once.
func (p *Pipeline) upsertAll(ctx context.Context, ownerID string, chunks []domain.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxUpsertConcurrency)

	for _, c := range chunks {
		c := c
		g.Go(func() error {
			rec := vectorstore.Record{
				ID:     c.ID,
				Vector: c.Embedding,
				Metadata: map[string]string{
					"owner_id":    ownerID,
					"material_id": c.MaterialID,
				},
			}
			return p.vectors.Upsert(gctx, rec)
		})
	}
	return g.Wait()
}

func (p *Pipeline) fail(ctx context.Context, materialID, stage string, cause error) error {
	wrapped := errs.NewIngestion(materialID, stage, cause)
	_ = p.materials.FailIngestion(ctx, materialID, wrapped.Error())
	return wrapped
}
