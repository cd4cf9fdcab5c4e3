package msgstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalFileStore stores objects as files in one directory.
type LocalFileStore struct {
	basePath string
}

// NewLocalFileStore creates a new LocalFileStore at the given base path.
// It creates the directory if it does not exist.
func NewLocalFileStore(basePath string) (*LocalFileStore, error) {
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("msgstore: create base directory: %w", err)
	}
	return &LocalFileStore{basePath: basePath}, nil
}

func (s *LocalFileStore) path(key string) (string, error) {
	if !validKey(key) {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.basePath, key), nil
}

// Put writes object data to a file using an atomic write pattern.
func (s *LocalFileStore) Put(_ context.Context, key string, data []byte) error {
	finalPath, err := s.path(key)
	if err != nil {
		return err
	}

	// Write to a temp file in the same directory, then rename.
	tmp, err := os.CreateTemp(s.basePath, ".tmp-"+key+"-*")
	if err != nil {
		return fmt.Errorf("msgstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("msgstore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("msgstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("msgstore: rename temp file: %w", err)
	}
	return nil
}

// Get reads object data from a file.
// Returns ErrNotFound if the object does not exist.
func (s *LocalFileStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("msgstore: read file: %w", err)
	}
	return data, nil
}

// Delete removes an object file.
// Returns nil if the object does not exist.
func (s *LocalFileStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("msgstore: remove file: %w", err)
	}
	return nil
}
