package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"medtutor/internal/domain"
	"medtutor/internal/objectstore"
)

const ingestionTimeout = 10 * time.Minute

// multipartOverhead bounds the boundary markers, part headers, and other
// form fields a multipart upload carries alongside the file content itself,
// so that a file of exactly maxUploadBytes (the documented boundary) isn't
// spuriously rejected once the envelope is added on top of it.
const multipartOverhead = 64 * 1024

func (s *Server) handleUploadMaterial(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(s.maxUploadBytes + multipartOverhead); err != nil {
		respondJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "upload exceeds the configured size limit"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "missing \"file\" form field"})
		return
	}
	defer file.Close()

	if header.Size > s.maxUploadBytes {
		respondJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "upload exceeds the configured size limit"})
		return
	}

	material := domain.Material{
		ID:               uuid.NewString(),
		OwnerID:          owner,
		OriginalFilename: header.Filename,
		ContentType:      header.Header.Get("Content-Type"),
		Status:           domain.MaterialPending,
	}
	material.StoredLocation = fmt.Sprintf("materials/%s/%s/%s", owner, material.ID, header.Filename)

	if _, err := s.objects.Put(r.Context(), material.StoredLocation, file, objectstore.PutOptions{ContentType: material.ContentType}); err != nil {
		respondError(w, err)
		return
	}

	created, err := s.materials.CreateMaterial(r.Context(), material)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := s.startIngestion(r.Context(), created); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"id": created.ID, "status": created.Status})
}

func (s *Server) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}
	materials, err := s.materials.ListMaterials(r.Context(), owner)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"materials": materials})
}

// startIngestion enqueues the Material (guarding the pending->processing
// transition) and runs the ingestion pipeline in the background, detached
// from the request's context but bounded by the configured per-material
// timeout.
func (s *Server) startIngestion(ctx context.Context, m domain.Material) error {
	ok, err := s.rag.Ingest.Enqueue(ctx, m.ID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	go func() {
		bg, cancel := context.WithTimeout(context.Background(), ingestionTimeout)
		defer cancel()
		_ = s.rag.IngestMaterial(bg, m.OwnerID, m.ID)
	}()
	return nil
}
