// Package store implements the atomic on-disk mirror (spec.md C1): every
// write is materialized into a temporary file beside its destination and
// atomically renamed into place, so a reader never observes a torn file.
//
// Grounded on the original Rust scraper's write_atomically/store_token
// (original_source/gocardless/src/sync.rs, original_source/gocardless/src/auth.rs):
// tempfile::NamedTempFile::new_in(dir) + flush + persist(path), translated
// to the standard Go idiom of os.CreateTemp in the same directory followed
// by Sync + os.Rename.
package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// Filesystem is the seam the core consumes instead of calling the os
// package directly (spec.md §1 Non-goals: "a Filesystem").
type Filesystem interface {
	MkdirAll(path string) error
	CreateTemp(dir, pattern string) (TempFile, error)
	Rename(oldpath, newpath string) error
	ReadFile(path string) ([]byte, error)
}

// TempFile is the minimal surface of *os.File the store needs.
type TempFile interface {
	Name() string
	Write(p []byte) (int, error)
	Sync() error
	Close() error
}

// OS is the real Filesystem, backed by the host filesystem.
type OS struct{}

func (OS) MkdirAll(path string) error { return os.MkdirAll(path, 0o755) }

func (OS) CreateTemp(dir, pattern string) (TempFile, error) {
	return os.CreateTemp(dir, pattern)
}

func (OS) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

func (OS) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

// Store writes structured payloads as whole-file atomic replacements.
type Store struct {
	fs Filesystem
}

func New(fs Filesystem) *Store {
	if fs == nil {
		fs = OS{}
	}
	return &Store{fs: fs}
}

// WriteJSON serializes value and atomically replaces path with the result.
func (s *Store) WriteJSON(path string, value any) error {
	buf, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json for %s: %w", path, err)
	}
	return s.writeAtomic(path, buf)
}

// WriteJSONL writes one serialized record per line. Any record whose
// serialized form contains an embedded newline is rejected, since that
// would make the file unparseable line-by-line (spec.md §4.1).
func (s *Store) WriteJSONL(path string, items []any) error {
	var buf bytes.Buffer
	for i, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal jsonl record %d for %s: %w", i, path, err)
		}
		if bytes.ContainsRune(line, '\n') {
			return fmt.Errorf("record %d for %s: serialized form contains an embedded newline", i, path)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return s.writeAtomic(path, buf.Bytes())
}

func (s *Store) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := s.fs.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write temp file %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("sync temp file %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close temp file %s: %w", name, err)
	}
	if err := s.fs.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("rename %s to %s: %w", name, path, err)
	}
	return nil
}
