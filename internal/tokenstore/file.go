package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend persists values as one JSON document so that a restarted
// gateway picks up the previous session.
type FileBackend struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
}

// NewFileBackend loads path if it exists. A missing file is an empty store.
func NewFileBackend(path string) (*FileBackend, error) {
	fb := &FileBackend{
		path:   path,
		values: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fb, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token store %s: %w", path, err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &fb.values); err != nil {
			return nil, fmt.Errorf("failed to decode token store %s: %w", path, err)
		}
	}

	return fb, nil
}

func (f *FileBackend) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	value, ok := f.values[key]
	return value, ok, nil
}

func (f *FileBackend) SetMany(_ context.Context, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := make(map[string]string, len(f.values)+len(values))
	for key, value := range f.values {
		next[key] = value
	}
	for key, value := range values {
		next[key] = value
	}

	if err := f.write(next); err != nil {
		return err
	}
	f.values = next
	return nil
}

func (f *FileBackend) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := make(map[string]string, len(f.values))
	for key, value := range f.values {
		next[key] = value
	}
	for _, key := range keys {
		delete(next, key)
	}

	if err := f.write(next); err != nil {
		return err
	}
	f.values = next
	return nil
}

// write replaces the document through a temp file and rename
func (f *FileBackend) write(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode token store: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp token store: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set token store permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close token store: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace token store: %w", err)
	}
	return nil
}
