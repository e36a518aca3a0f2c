// Package providerstate persists the single piece of durable state a
// provider's consent flow produces: the requisition/connection id that
// `sync` must look up on every run to find the user's linked accounts.
//
// Grounded on original_source/gocardless/src/connect.rs, which persists an
// analogous requisition id to a small JSON file between the `consent` and
// `sync` subcommands.
package providerstate

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/google/uuid"

	"github.com/cstorey/bankmirror/internal/store"
)

// State is the durable artifact written once consent/requisition creation
// completes and read on every subsequent sync.
type State struct {
	RequisitionID uuid.UUID `json:"requisition_id"`
}

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

// Load reads the persisted requisition id. A missing file means consent
// has never been run for this provider.
func (s *Store) Load() (*State, bool, error) {
	data, err := s.fs.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, false, err
	}
	return &st, true, nil
}

func (s *Store) Save(st *State) error {
	return store.New(s.fs).WriteJSON(s.path, st)
}
