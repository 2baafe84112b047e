// Package store persists the rotation state document. Implementations read
// and write the whole document; there are no partial updates. A load over a
// missing or partial document yields a normalized default state, only
// transport failures are errors.
package store

import (
	"context"

	"github.com/codeGROOVE-dev/rota/pkg/types"
)

// Store loads and saves the full rotation state.
type Store interface {
	Load(ctx context.Context) (types.State, error)
	Save(ctx context.Context, s types.State) error
}
