package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLite implements Backend and Swapper over a single SQLite table.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the database file and applies the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("kv: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("kv: ping: %w", err)
	}
	if _, err := conn.Exec(sqliteSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("kv: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kv: get %s: %w", key, err)
	}
	return v, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`, key, nonNil(value))
	if err != nil {
		return fmt.Errorf("kv: set %s: %w", key, err)
	}
	return nil
}

// CompareAndSet replaces the value only if it still equals old. The
// comparison and write happen in one statement, so concurrent writers on the
// same database see exactly one winner.
func (s *SQLite) CompareAndSet(ctx context.Context, key string, old, value []byte) (bool, error) {
	if len(old) == 0 {
		res, err := s.conn.ExecContext(ctx,
			`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`, key, nonNil(value))
		if err != nil {
			return false, fmt.Errorf("kv: cas insert %s: %w", key, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return true, nil
		}
	}
	res, err := s.conn.ExecContext(ctx,
		`UPDATE kv SET value = ?, updated_at = CURRENT_TIMESTAMP WHERE key = ? AND value = ?`,
		nonNil(value), key, nonNil(old))
	if err != nil {
		return false, fmt.Errorf("kv: cas update %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("kv: cas rows %s: %w", key, err)
	}
	return n == 1, nil
}

func (s *SQLite) Available(ctx context.Context) bool {
	return s.conn.PingContext(ctx) == nil
}

// nonNil keeps empty values stored as zero-length blobs rather than NULL.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

var (
	_ Backend = (*SQLite)(nil)
	_ Swapper = (*SQLite)(nil)
)
