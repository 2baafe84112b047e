package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Registers the pgx stdlib driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/codeGROOVE-dev/rota/pkg/state"
	"github.com/codeGROOVE-dev/rota/pkg/types"
)

// PostgresStore keeps the state document as a single-row YAML blob. Used by
// service deployments where no tracking issue is wanted.
type PostgresStore struct {
	db  *sql.DB
	key string
}

// NewPostgresStore opens a connection pool for dsn and ensures the schema
// exists. key distinguishes multiple rotations sharing one database.
func NewPostgresStore(ctx context.Context, dsn, key string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if key == "" {
		key = "default"
	}
	ps := &PostgresStore{db: db, key: key}
	if err := ps.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return ps, nil
}

func (ps *PostgresStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS rotation_state (
	rotation   TEXT PRIMARY KEY,
	document   BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := ps.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Load reads the state row. A missing row yields the default empty state.
func (ps *PostgresStore) Load(ctx context.Context) (types.State, error) {
	var document []byte
	err := ps.db.QueryRowContext(ctx,
		`SELECT document FROM rotation_state WHERE rotation = $1`, ps.key).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return state.Decode(nil), nil
	}
	if err != nil {
		return types.State{}, fmt.Errorf("failed to load state row: %w", err)
	}
	return state.Decode(document), nil
}

// Save upserts the state row.
func (ps *PostgresStore) Save(ctx context.Context, s types.State) error {
	data, err := state.Encode(s)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	_, err = ps.db.ExecContext(ctx, `
INSERT INTO rotation_state (rotation, document, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (rotation) DO UPDATE SET document = EXCLUDED.document, updated_at = now()`,
		ps.key, data)
	if err != nil {
		return fmt.Errorf("failed to save state row: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}
