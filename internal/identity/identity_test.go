package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", ""},
		{"", ""},
		{"Basic xyz", ""},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if c.header != "" {
			r.Header.Set("Authorization", c.header)
		}
		if got := bearerToken(r); got != c.want {
			t.Errorf("bearerToken(%q) = %q, want %q", c.header, got, c.want)
		}
	}
}

func TestOwnerIDContextRoundTrip(t *testing.T) {
	ctx := WithOwnerID(context.Background(), "user-42")
	got, ok := OwnerIDFromContext(ctx)
	if !ok || got != "user-42" {
		t.Fatalf("OwnerIDFromContext = %q, %v, want user-42, true", got, ok)
	}
	if _, ok := OwnerIDFromContext(context.Background()); ok {
		t.Fatalf("expected ok=false for context without owner_id")
	}
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	v := &Verifier{}
	rec := httptest.NewRecorder()
	called := false
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if called {
		t.Fatalf("handler should not be called without a token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
