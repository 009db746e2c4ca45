package httpapi

import (
	"encoding/json"
	"net/http"

	"medtutor/internal/errs"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, statusFromError(err), map[string]any{"error": err.Error()})
}

// statusFromError maps the closed error taxonomy (internal/errs) to a
// status code, generalizing the teacher's statusFromError switch from one
// sentinel to the whole taxonomy.
func statusFromError(err error) int {
	switch {
	case errs.IsValidation(err):
		return http.StatusBadRequest
	case errs.IsOwnership(err):
		return http.StatusNotFound
	case errs.IsConflict(err):
		return http.StatusConflict
	case errs.IsIngestion(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
