package retrieve_test

import (
	"context"
	"strings"
	"testing"

	"medtutor/internal/domain"
	"medtutor/internal/objectstore"
	"medtutor/internal/rag/embedder"
	"medtutor/internal/rag/ingest"
	"medtutor/internal/rag/retrieve"
	"medtutor/internal/store/memstore"
	"medtutor/internal/vectorstore"
)

func seedMaterial(t *testing.T, ctx context.Context, materials *memstore.Materials, objects objectstore.ObjectStore, vectors vectorstore.VectorStore, embed embedder.Embedder, ownerID, filename, text string) domain.Material {
	t.Helper()
	loc := "materials/" + filename
	if _, err := objects.Put(ctx, loc, strings.NewReader(text), objectstore.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	m, err := materials.CreateMaterial(ctx, domain.Material{
		OwnerID: ownerID, OriginalFilename: filename, StoredLocation: loc, ContentType: "text/plain",
	})
	if err != nil {
		t.Fatalf("CreateMaterial: %v", err)
	}
	if _, err := materials.TransitionPendingToProcessing(ctx, m.ID); err != nil {
		t.Fatalf("TransitionPendingToProcessing: %v", err)
	}
	p := ingest.New(materials, objects, vectors, embed)
	if err := p.Run(ctx, ownerID, m.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, err := materials.GetMaterial(ctx, ownerID, m.ID)
	if err != nil {
		t.Fatalf("GetMaterial: %v", err)
	}
	return got
}

func TestRetrieveReturnsCitationTaggedContext(t *testing.T) {
	ctx := context.Background()
	materials := memstore.NewMaterials()
	objects := objectstore.NewMemoryStore()
	vectors := vectorstore.NewMemoryStore(64)
	embed := embedder.NewDeterministic(64, true, 7)

	seedMaterial(t, ctx, materials, objects, vectors, embed, "user-1", "afib.txt",
		strings.Repeat("Atrial fibrillation causes an irregular and often rapid heart rate. ", 50))
	seedMaterial(t, ctx, materials, objects, vectors, embed, "user-1", "betablockers.txt",
		strings.Repeat("Beta blockers reduce heart rate and myocardial oxygen demand. ", 50))

	r := retrieve.New(materials, vectors, embed)
	res, err := r.Retrieve(ctx, "user-1", "How do beta blockers affect heart rate?", retrieve.Options{TopK: 3})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Citations) == 0 {
		t.Fatalf("expected at least one citation")
	}
	if !strings.Contains(res.ContextBlock, "[S1]") {
		t.Fatalf("ContextBlock missing [S1] tag: %q", res.ContextBlock)
	}
	for i, c := range res.Citations {
		if c.Index != i+1 {
			t.Fatalf("Citations[%d].Index = %d, want %d", i, c.Index, i+1)
		}
		if c.ChunkID == "" || c.Source == "" {
			t.Fatalf("citation missing ChunkID/Source: %+v", c)
		}
	}
}

func TestRetrieveDropsBelowSimilarityThreshold(t *testing.T) {
	ctx := context.Background()
	materials := memstore.NewMaterials()
	objects := objectstore.NewMemoryStore()
	vectors := vectorstore.NewMemoryStore(64)
	embed := embedder.NewDeterministic(64, true, 7)

	seedMaterial(t, ctx, materials, objects, vectors, embed, "user-1", "afib.txt",
		strings.Repeat("Atrial fibrillation causes an irregular heart rate. ", 50))

	r := retrieve.New(materials, vectors, embed)
	res, err := r.Retrieve(ctx, "user-1", "unrelated query text", retrieve.Options{TopK: 3, SimilarityThreshold: 1.01})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Citations) != 0 {
		t.Fatalf("expected no citations above an unreachable threshold, got %d", len(res.Citations))
	}
}

func TestRetrieveIsolatesOwners(t *testing.T) {
	ctx := context.Background()
	materials := memstore.NewMaterials()
	objects := objectstore.NewMemoryStore()
	vectors := vectorstore.NewMemoryStore(64)
	embed := embedder.NewDeterministic(64, true, 7)

	seedMaterial(t, ctx, materials, objects, vectors, embed, "user-1", "afib.txt",
		strings.Repeat("Atrial fibrillation causes an irregular heart rate. ", 50))

	r := retrieve.New(materials, vectors, embed)
	res, err := r.Retrieve(ctx, "user-2", "atrial fibrillation heart rate", retrieve.Options{TopK: 3})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Citations) != 0 {
		t.Fatalf("expected owner isolation to hide user-1's material, got %d citations", len(res.Citations))
	}
}

func TestRetrieveRejectsEmptyQuery(t *testing.T) {
	ctx := context.Background()
	materials := memstore.NewMaterials()
	vectors := vectorstore.NewMemoryStore(64)
	embed := embedder.NewDeterministic(64, true, 7)

	r := retrieve.New(materials, vectors, embed)
	if _, err := r.Retrieve(ctx, "user-1", "   ", retrieve.Options{}); err == nil {
		t.Fatalf("expected error for empty query")
	}
}
