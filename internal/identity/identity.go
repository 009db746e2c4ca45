// Package identity offers one concrete example of how a caller might
// populate the opaque owner_id every core operation requires: verifying an
// OIDC ID token and extracting its subject claim. The core itself never
// imports this package — handlers accept owner_id from whatever middleware
// the caller installs.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

type ctxKey struct{}

// Verifier verifies bearer ID tokens against one OIDC issuer and extracts
// the subject claim.
type Verifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// NewVerifier discovers the issuer's OIDC configuration and builds a
// Verifier scoped to clientID's audience.
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	if issuer == "" {
		return nil, errors.New("identity: issuer is required")
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, err
	}
	return &Verifier{
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// OwnerID verifies rawIDToken and returns its subject claim.
func (v *Verifier) OwnerID(ctx context.Context, rawIDToken string) (string, error) {
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return "", err
	}
	if idToken.Subject == "" {
		return "", errors.New("identity: token has no subject claim")
	}
	return idToken.Subject, nil
}

// Middleware extracts a bearer token from the Authorization header,
// verifies it, and attaches the resulting owner_id to the request context.
// Requests without a valid token are rejected with 401 before reaching next.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ownerID, err := v.OwnerID(r.Context(), token)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), ownerID)))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}

// WithOwnerID attaches ownerID to ctx.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, ownerID)
}

// OwnerIDFromContext retrieves the owner_id attached by Middleware, if any.
func OwnerIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKey{}).(string)
	return v, ok
}
