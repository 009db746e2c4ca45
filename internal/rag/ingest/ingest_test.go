package ingest_test

import (
	"context"
	"strings"
	"testing"

	"medtutor/internal/domain"
	"medtutor/internal/objectstore"
	"medtutor/internal/rag/embedder"
	"medtutor/internal/rag/ingest"
	"medtutor/internal/store/memstore"
	"medtutor/internal/vectorstore"
)

func TestRunParsesChunksEmbedsAndCompletes(t *testing.T) {
	ctx := context.Background()
	materials := memstore.NewMaterials()
	objects := objectstore.NewMemoryStore()
	vectors := vectorstore.NewMemoryStore(64)
	embed := embedder.NewDeterministic(64, true, 1)

	text := strings.Repeat("Atrial fibrillation is an irregular heart rhythm. ", 200)
	if _, err := objects.Put(ctx, "materials/doc1.txt", strings.NewReader(text), objectstore.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	m, err := materials.CreateMaterial(ctx, domain.Material{
		OwnerID:          "user-1",
		OriginalFilename: "doc1.txt",
		StoredLocation:   "materials/doc1.txt",
		ContentType:      "text/plain",
	})
	if err != nil {
		t.Fatalf("CreateMaterial: %v", err)
	}

	if ok, err := materials.TransitionPendingToProcessing(ctx, m.ID); err != nil || !ok {
		t.Fatalf("TransitionPendingToProcessing: ok=%v err=%v", ok, err)
	}

	p := ingest.New(materials, objects, vectors, embed)
	if err := p.Run(ctx, "user-1", m.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := materials.GetMaterial(ctx, "user-1", m.ID)
	if err != nil {
		t.Fatalf("GetMaterial: %v", err)
	}
	if got.Status != domain.MaterialCompleted {
		t.Fatalf("Status = %s, want completed", got.Status)
	}
	if got.ChunkCount == 0 {
		t.Fatalf("expected ChunkCount > 0")
	}

	chunks, err := materials.GetChunks(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetChunks: %v", err)
	}
	if len(chunks) != got.ChunkCount {
		t.Fatalf("len(chunks) = %d, want %d", len(chunks), got.ChunkCount)
	}
	for _, c := range chunks {
		if c.ID == "" {
			t.Fatalf("chunk missing ID")
		}
		if c.EmbeddingDim != 64 {
			t.Fatalf("EmbeddingDim = %d, want 64", c.EmbeddingDim)
		}
	}

	results, err := vectors.Search(ctx, chunks[0].Embedding, 5, vectorstore.Filter{OwnerID: "user-1"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one vector search result")
	}
	if results[0].ID != chunks[0].ID {
		t.Fatalf("top search result ID = %s, want %s (same Chunk, exact match)", results[0].ID, chunks[0].ID)
	}
}

func TestRunFailsOnUnsupportedContentType(t *testing.T) {
	ctx := context.Background()
	materials := memstore.NewMaterials()
	objects := objectstore.NewMemoryStore()
	vectors := vectorstore.NewMemoryStore(64)
	embed := embedder.NewDeterministic(64, true, 1)

	objects.Put(ctx, "materials/doc2.bin", strings.NewReader("binary"), objectstore.PutOptions{})
	m, _ := materials.CreateMaterial(ctx, domain.Material{
		OwnerID: "user-1", StoredLocation: "materials/doc2.bin", ContentType: "application/zip",
	})
	materials.TransitionPendingToProcessing(ctx, m.ID)

	p := ingest.New(materials, objects, vectors, embed)
	if err := p.Run(ctx, "user-1", m.ID); err == nil {
		t.Fatalf("expected error for unsupported content type")
	}

	got, _ := materials.GetMaterial(ctx, "user-1", m.ID)
	if got.Status != domain.MaterialFailed {
		t.Fatalf("Status = %s, want failed", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Fatalf("expected ErrorMessage to be set")
	}
}

func TestRunIsIdempotentOnRerun(t *testing.T) {
	ctx := context.Background()
	materials := memstore.NewMaterials()
	objects := objectstore.NewMemoryStore()
	vectors := vectorstore.NewMemoryStore(64)
	embed := embedder.NewDeterministic(64, true, 1)

	text := strings.Repeat("Beta blockers reduce heart rate and myocardial oxygen demand. ", 100)
	objects.Put(ctx, "materials/doc3.txt", strings.NewReader(text), objectstore.PutOptions{})
	m, _ := materials.CreateMaterial(ctx, domain.Material{
		OwnerID: "user-1", StoredLocation: "materials/doc3.txt", ContentType: "text/plain",
	})
	materials.TransitionPendingToProcessing(ctx, m.ID)

	p := ingest.New(materials, objects, vectors, embed)
	if err := p.Run(ctx, "user-1", m.ID); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	first, _ := materials.GetMaterial(ctx, "user-1", m.ID)

	if err := p.Run(ctx, "user-1", m.ID); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	second, _ := materials.GetMaterial(ctx, "user-1", m.ID)

	if first.ChunkCount != second.ChunkCount {
		t.Fatalf("ChunkCount changed across reruns: %d vs %d", first.ChunkCount, second.ChunkCount)
	}
}
