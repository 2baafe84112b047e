package testutil

import (
	"context"
	"sync"

	"github.com/codeGROOVE-dev/rota/pkg/state"
	"github.com/codeGROOVE-dev/rota/pkg/types"
)

// MemoryStore implements store.Store in memory.
type MemoryStore struct {
	state   types.State
	LoadErr error
	SaveErr error
	Saves   int
	mu      sync.Mutex
	seeded  bool
}

// NewMemoryStore creates a MemoryStore seeded with the given state.
func NewMemoryStore(s types.State) *MemoryStore {
	return &MemoryStore{state: s, seeded: true}
}

// Load returns the stored state, or the default empty state when unseeded.
func (m *MemoryStore) Load(_ context.Context) (types.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return types.State{}, m.LoadErr
	}
	if !m.seeded {
		return state.Decode(nil), nil
	}
	return m.state, nil
}

// Save replaces the stored state.
func (m *MemoryStore) Save(_ context.Context, s types.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.state = s
	m.seeded = true
	m.Saves++
	return nil
}

// State returns the current stored state.
func (m *MemoryStore) State() types.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
