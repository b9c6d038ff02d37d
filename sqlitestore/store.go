// Package sqlitestore persists sessions and firehose cursors in a local
// SQLite database. It backs the CLI's login state and implements
// jetstream.CursorStore for resumable stream consumption.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/skywatch-go/skywatch/xrpc"
)

// ErrSessionNotFound is returned by LoadSession when no session is stored
// under the given name.
var ErrSessionNotFound = errors.New("sqlitestore: session not found")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	name        TEXT PRIMARY KEY,
	did         TEXT NOT NULL,
	handle      TEXT NOT NULL,
	access_jwt  TEXT NOT NULL,
	refresh_jwt TEXT NOT NULL,
	endpoint    TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS cursors (
	service      TEXT PRIMARY KEY,
	cursor_value INTEGER NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);
`

// Store is a SQLite-backed session and cursor store. It is safe for
// concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path, applies the
// schema, and returns a new Store. The caller should call Close when the
// store is no longer needed.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession upserts a session under the given name.
func (s *Store) SaveSession(ctx context.Context, name string, sess *xrpc.Session) error {
	if sess == nil {
		return xrpc.ErrNoSession
	}

	query := `
		INSERT INTO sessions (name, did, handle, access_jwt, refresh_jwt, endpoint, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			did = excluded.did,
			handle = excluded.handle,
			access_jwt = excluded.access_jwt,
			refresh_jwt = excluded.refresh_jwt,
			endpoint = excluded.endpoint,
			updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		name,
		sess.DID,
		sess.Handle,
		sess.AccessJwt,
		sess.RefreshJwt,
		sess.ServiceEndpoint,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save session %q: %w", name, err)
	}
	return nil
}

// LoadSession retrieves the session stored under the given name. It returns
// ErrSessionNotFound when no such session exists.
func (s *Store) LoadSession(ctx context.Context, name string) (*xrpc.Session, error) {
	var sess xrpc.Session
	err := s.db.QueryRowContext(ctx, `
		SELECT did, handle, access_jwt, refresh_jwt, endpoint
		FROM sessions WHERE name = ?`, name,
	).Scan(
		&sess.DID,
		&sess.Handle,
		&sess.AccessJwt,
		&sess.RefreshJwt,
		&sess.ServiceEndpoint,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", name, err)
	}
	return &sess, nil
}

// DeleteSession removes the session stored under the given name. Deleting a
// session that does not exist is not an error.
func (s *Store) DeleteSession(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE name = ?`, name)
	return err
}

// GetCursor retrieves the saved firehose cursor for a service. A service
// with no saved cursor reads as 0.
func (s *Store) GetCursor(ctx context.Context, service string) (int64, error) {
	var cursor int64
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor_value FROM cursors WHERE service = ?`, service,
	).Scan(&cursor)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return cursor, err
}

// SetCursor upserts the firehose cursor for a service.
func (s *Store) SetCursor(ctx context.Context, service string, cursor int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursors (service, cursor_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (service) DO UPDATE SET
			cursor_value = excluded.cursor_value,
			updated_at = excluded.updated_at`,
		service, cursor, time.Now().UTC(),
	)
	return err
}
