package tokenstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cstorey/bankmirror/internal/store"
)

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	s := New(store.OS{}, filepath.Join(dir, "token.json"))

	tok, ok, err := s.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || tok != nil {
		t.Fatalf("expected absent token, got ok=%v tok=%+v", ok, tok)
	}
}

func TestStoreThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := New(store.OS{}, filepath.Join(dir, "token.json"))

	want := &Token{
		AccessToken:      "at",
		AccessExpiresAt:  time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		RefreshToken:     "rt",
		RefreshExpiresAt: time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second),
	}
	if err := s.Store(want); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, ok, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatal("expected token to be present")
	}
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if !got.AccessExpiresAt.Equal(want.AccessExpiresAt) {
		t.Fatalf("got expiry %v, want %v", got.AccessExpiresAt, want.AccessExpiresAt)
	}
}

func TestAccessExpired(t *testing.T) {
	now := time.Now()
	tok := &Token{AccessExpiresAt: now.Add(-time.Second)}
	if !tok.AccessExpired(now) {
		t.Fatal("expected token to be expired")
	}
	tok.AccessExpiresAt = now.Add(time.Minute)
	if tok.AccessExpired(now) {
		t.Fatal("expected token to still be valid")
	}
}
