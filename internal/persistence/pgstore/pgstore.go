// Package pgstore implements persistence.Store over Postgres via
// lib/pq, adapted from this codebase's SQL-backed repository pattern:
// a single table of opaque key/value rows, upsert-on-conflict writes,
// and a real sql.Tx for the batched Tx operation.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/session-network/snrr/internal/persistence"
)

const schema = `
CREATE TABLE IF NOT EXISTS snrr_kv (
	key   TEXT PRIMARY KEY,
	value BYTEA NOT NULL
);`

// Store wraps a *sql.DB using the lib/pq driver.
type Store struct {
	db *sql.DB
}

// New opens the connection, verifies it with Ping, and ensures the
// backing table exists.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgstore: ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM snrr_kv WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snrr_kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snrr_kv WHERE key = $1`, key)
	return err
}

// Tx applies every op inside a single SQL transaction.
func (s *Store) Tx(ctx context.Context, ops []persistence.Op) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, op := range ops {
		if op.Delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM snrr_kv WHERE key = $1`, op.Key); err != nil {
				return err
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snrr_kv (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, op.Key, op.Value); err != nil {
			return err
		}
	}
	return tx.Commit()
}
