package store

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/codeGROOVE-dev/rota/pkg/state"
	"github.com/codeGROOVE-dev/rota/pkg/types"
)

// FileStore keeps the state document in a local YAML file. Intended for
// development and CI runs; writes are atomic renames.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the YAML file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the state file. A missing file yields the default empty state.
func (f *FileStore) Load(_ context.Context) (types.State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return state.Decode(nil), nil
		}
		return types.State{}, fmt.Errorf("failed to read state file: %w", err)
	}
	return state.Decode(data), nil
}

// Save writes the state file atomically.
func (f *FileStore) Save(_ context.Context, s types.State) error {
	data, err := state.Encode(s)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := atomic.WriteFile(f.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}
