// Package service wires the ingestion pipeline and the retriever behind one
// constructor so httpapi, chatbroker, and questiongen share a single entry
// point into the RAG stack instead of each assembling it themselves.
package service

import (
	"context"

	"medtutor/internal/objectstore"
	"medtutor/internal/rag/embedder"
	"medtutor/internal/rag/ingest"
	"medtutor/internal/rag/retrieve"
	"medtutor/internal/store"
	"medtutor/internal/vectorstore"
)

// Service is the RAG facade: ingest Materials, retrieve grounded context.
type Service struct {
	Ingest    *ingest.Pipeline
	Retriever *retrieve.Retriever
}

// New assembles a Service from its collaborators.
func New(materials store.Materials, objects objectstore.ObjectStore, vectors vectorstore.VectorStore, embed embedder.Embedder) *Service {
	return &Service{
		Ingest:    ingest.New(materials, objects, vectors, embed),
		Retriever: retrieve.New(materials, vectors, embed),
	}
}

// IngestMaterial runs the full ingestion pipeline for a Material already
// transitioned to processing via Ingest.Enqueue.
func (s *Service) IngestMaterial(ctx context.Context, ownerID, materialID string) error {
	return s.Ingest.Run(ctx, ownerID, materialID)
}

// RetrieveContext returns a citation-tagged context block grounding query
// in the owner's ingested Materials.
func (s *Service) RetrieveContext(ctx context.Context, ownerID, query string, opt retrieve.Options) (retrieve.Result, error) {
	return s.Retriever.Retrieve(ctx, ownerID, query, opt)
}
