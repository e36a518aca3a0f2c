package providerstate

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/cstorey/bankmirror/internal/store"
)

func TestLoadMissingIsNotAnError(t *testing.T) {
	s := New(store.OS{}, filepath.Join(t.TempDir(), "state.json"))
	st, ok, err := s.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || st != nil {
		t.Fatalf("expected absent state, got ok=%v st=%+v", ok, st)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	s := New(store.OS{}, filepath.Join(t.TempDir(), "state.json"))
	want := &State{RequisitionID: uuid.New()}
	if err := s.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatal("expected state to be present")
	}
	if got.RequisitionID != want.RequisitionID {
		t.Fatalf("got %v, want %v", got.RequisitionID, want.RequisitionID)
	}
}
