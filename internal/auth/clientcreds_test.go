package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cstorey/bankmirror/internal/httpenv"
	"github.com/cstorey/bankmirror/internal/tokenstore"
)

// TestClientCredentialsBackendRefreshPreservesRefreshToken mirrors
// TestAuthCodeBackendRefreshPreservesRefreshToken against the provider A
// backend: token/refresh only ever returns a new access token, so the
// refresh string and its expiry must come from current unchanged.
func TestClientCredentialsBackendRefreshPreservesRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access":"a2","access_expires":3600}`))
	}))
	defer srv.Close()

	client := httpenv.New(t.Name(), rewriteTransport{srv: srv},
		httpenv.HostTable{Sandbox: srv.Listener.Addr().String()}, httpenv.Sandbox)
	backend := &ClientCredentialsBackend{Client: client, SecretID: "secret-id-1", SecretKey: "secret-key-1"}

	authedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	current := &tokenstore.Token{
		AccessToken:      "a1",
		AccessExpiresAt:  authedAt.Add(time.Hour),
		RefreshToken:     "r1",
		RefreshExpiresAt: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		AuthedAt:         &authedAt,
	}

	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	tok, err := backend.Refresh(context.Background(), now, current)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if tok.AccessToken != "a2" {
		t.Errorf("access token = %q, want a2", tok.AccessToken)
	}
	if !tok.AccessExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("access expires at = %v, want %v", tok.AccessExpiresAt, now.Add(time.Hour))
	}
	if tok.RefreshToken != "r1" {
		t.Errorf("refresh token = %q, want r1 (carried over from current)", tok.RefreshToken)
	}
	if !tok.RefreshExpiresAt.Equal(current.RefreshExpiresAt) {
		t.Errorf("refresh expires at = %v, want %v (carried over from current)", tok.RefreshExpiresAt, current.RefreshExpiresAt)
	}
	if tok.AuthedAt != current.AuthedAt {
		t.Errorf("authed at = %v, want unchanged %v", tok.AuthedAt, current.AuthedAt)
	}
}
