// Package tokenstore persists a single provider's OAuth token pair to disk
// using the same atomic-write discipline as internal/store (C1), so a crash
// mid-write never leaves a torn token file behind.
//
// Grounded on original_source/src/client/authentication.rs's
// write_auth_data/access_token (provider B, NamedTempFile-in-same-dir) and
// original_source/gocardless/src/auth.rs's store_token/load_token (provider
// A). Both originals treat a missing token file as a normal "not yet
// authenticated" state rather than an error; Load mirrors that with its
// bool return instead of a sentinel error.
package tokenstore

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/cstorey/bankmirror/internal/store"
)

// Token is the cached credential pair for one provider, matching the wire
// format nailed down in spec.md §6. AccessExpiresAt and RefreshExpiresAt are
// absolute instants, computed once at fetch/refresh time from the
// provider's "expires_in" seconds (spec.md §4.4: "the authenticator
// converts every provider's relative expiry into an absolute instant as
// soon as it is received, never re-deriving it later").
type Token struct {
	AccessToken      string    `json:"access"`
	AccessExpiresAt  time.Time `json:"access_expires"`
	RefreshToken     string    `json:"refresh"`
	RefreshExpiresAt time.Time `json:"refresh_expires"`
	// RedirectURI is only populated for the authorization-code provider,
	// which must echo the same redirect_uri back on every refresh.
	RedirectURI string `json:"redirect_uri,omitempty"`
	// AuthedAt records when the initial grant (either backend's
	// Authenticate) succeeded; refreshes carry it over unchanged.
	AuthedAt *time.Time `json:"authed_at"`
}

func (t *Token) AccessExpired(at time.Time) bool  { return !t.AccessExpiresAt.After(at) }
func (t *Token) RefreshExpired(at time.Time) bool { return !t.RefreshExpiresAt.After(at) }

// Store persists one provider's Token to a single JSON file.
type Store struct {
	fs   store.Filesystem
	path string
}

func New(fs store.Filesystem, path string) *Store {
	if fs == nil {
		fs = store.OS{}
	}
	return &Store{fs: fs, path: path}
}

// Load reads the cached token. A missing file is not an error: it is the
// normal state before the first authenticate call, and is reported via the
// bool return (spec.md §4.4 step 1).
func (s *Store) Load() (*Token, bool, error) {
	data, err := s.fs.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, false, err
	}
	return &tok, true, nil
}

// Store atomically replaces the cached token.
func (s *Store) Store(tok *Token) error {
	st := store.New(s.fs)
	return st.WriteJSON(s.path, tok)
}
