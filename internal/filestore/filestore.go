// Package filestore stores the raw PDF payloads for documents and
// their page chunks on the local filesystem, keyed by id.
package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store is a filesystem-backed blob store. All files live directly
// under the base directory as <id>.pdf.
type Store struct {
	base string
}

// Open creates the base directory if needed and returns a Store.
func Open(base string) (*Store, error) {
	if base == "" {
		return nil, fmt.Errorf("filestore: base directory is required")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create %s: %w", base, err)
	}
	return &Store{base: base}, nil
}

// Path returns where the file for id lives, whether or not it exists.
func (s *Store) Path(id string) string {
	return filepath.Join(s.base, id+".pdf")
}

// Save writes the payload for id, replacing any previous content.
func (s *Store) Save(id string, content []byte) (string, error) {
	path := s.Path(id)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("filestore: save %s: %w", id, err)
	}
	return path, nil
}

// Get returns the payload for id, or nil if no file exists.
func (s *Store) Get(id string) ([]byte, error) {
	content, err := os.ReadFile(s.Path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: get %s: %w", id, err)
	}
	return content, nil
}

// Delete removes the file for id. Deleting a missing file is not an
// error.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.Path(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("filestore: delete %s: %w", id, err)
	}
	return nil
}

// Exists reports whether a file for id is present.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.Path(id))
	return err == nil
}
