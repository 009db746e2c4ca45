package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"medtutor/internal/identity"
)

// ownerID resolves the caller's owner_id for a request. identity.Verifier's
// Middleware (when installed in front of this Server) attaches it to the
// request context; when no OIDC issuer is configured (local dev, tests) an
// X-Owner-ID header is the documented fallback, mirroring the teacher's own
// dev-mode header escape hatch for its auth middleware.
func ownerID(r *http.Request) (string, error) {
	if id, ok := identity.OwnerIDFromContext(r.Context()); ok {
		return id, nil
	}
	if id := strings.TrimSpace(r.Header.Get("X-Owner-ID")); id != "" {
		return id, nil
	}
	return "", errors.New("missing owner identity")
}
