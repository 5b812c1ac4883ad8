// Package sqlite is the durable client-side store: a small key/value table
// whose values are sealed at rest. It backs the SDK's credential storage
// and the last-known-good catalog snapshot.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/atelier/pkg/cryptox"
	"github.com/aussiebroadwan/atelier/pkg/shopsdk"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("sqlite: key not found")

// Store is a sealed key/value store. It implements shopsdk.TokenStorage.
type Store struct {
	db     *sql.DB
	sealer  *cryptox.Sealer
	now     func() time.Time
	version uint
}

var _ shopsdk.TokenStorage = (*Store)(nil)

// Open opens (creating if needed) the database at dsn and applies
// migrations. Values are sealed with sealer.
func Open(dsn string, sealer *cryptox.Sealer) (*Store, error) {
	if sealer == nil {
		return nil, errors.New("sqlite: sealer is required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// One writer at a time; sqlite serialises writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, sealer: sealer, now: time.Now}
	if s.version, err = s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx executes fn within a transaction, rolling back on error.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ============================================================================
// Key/value
// ============================================================================

// Get returns the opened value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var sealed []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	value, err := s.sealer.Open(sealed, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", key, err)
	}
	return value, nil
}

// Put seals value and stores it under key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.put(ctx, tx, key, value)
	})
}

// Delete removes key; absent keys are not an error.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) put(ctx context.Context, tx *sql.Tx, key string, value []byte) error {
	sealed, err := s.sealer.Seal(value, []byte(key))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, sealed, s.now().Unix(),
	)
	return err
}

// ============================================================================
// shopsdk.TokenStorage
// ============================================================================

// Load reads the stored token and user. Missing keys yield empty
// Credentials. A user record that fails to decode is dropped.
func (s *Store) Load(ctx context.Context) (shopsdk.Credentials, error) {
	var creds shopsdk.Credentials

	token, err := s.Get(ctx, shopsdk.KeyToken)
	switch {
	case errors.Is(err, ErrNotFound):
		return creds, nil
	case err != nil:
		return creds, err
	}
	creds.Token = string(token)

	raw, err := s.Get(ctx, shopsdk.KeyUser)
	switch {
	case errors.Is(err, ErrNotFound):
		return creds, nil
	case err != nil:
		return creds, err
	}

	var u shopsdk.User
	if err := json.Unmarshal(raw, &u); err == nil {
		creds.User = &u
	}
	return creds, nil
}

// Save replaces both keys atomically. An empty token clears them.
func (s *Store) Save(ctx context.Context, creds shopsdk.Credentials) error {
	if creds.Empty() {
		return s.Clear(ctx)
	}

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.put(ctx, tx, shopsdk.KeyToken, []byte(creds.Token)); err != nil {
			return err
		}
		if creds.User == nil {
			_, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, shopsdk.KeyUser)
			return err
		}
		raw, err := json.Marshal(creds.User)
		if err != nil {
			return err
		}
		return s.put(ctx, tx, shopsdk.KeyUser, raw)
	})
}

// Clear removes the token and user.
func (s *Store) Clear(ctx context.Context) error {
	return s.Delete(ctx, shopsdk.KeyToken, shopsdk.KeyUser)
}
