package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
)

// FileMirror keeps the shared key-value state in a JSON file so other
// processes on the machine can read it.
type FileMirror struct {
	mu     sync.Mutex
	path   string
	values map[string]any
}

// NewFileMirror creates a mirror backed by the JSON file at path. Existing
// values are loaded when the file is readable.
func NewFileMirror(path string) (*FileMirror, error) {
	values, err := ReadMirrorFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if values == nil {
		values = make(map[string]any)
	}
	return &FileMirror{path: path, values: values}, nil
}

// Write sets key and rewrites the file atomically.
func (mirror *FileMirror) Write(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mirror.mu.Lock()
	defer mirror.mu.Unlock()

	mirror.values[key] = value
	serialized, err := json.MarshalIndent(mirror.values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal mirror state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(mirror.path), 0o755); err != nil {
		return fmt.Errorf("create mirror directory: %w", err)
	}
	if err := renameio.WriteFile(mirror.path, serialized, 0o644); err != nil {
		return fmt.Errorf("write mirror file: %w", err)
	}
	return nil
}

// ReadMirrorFile returns the values stored in the mirror file at path.
func ReadMirrorFile(path string) (map[string]any, error) {
	rawData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mirror file: %w", err)
	}
	values := make(map[string]any)
	if err := json.Unmarshal(rawData, &values); err != nil {
		return nil, fmt.Errorf("parse mirror file: %w", err)
	}
	return values, nil
}
