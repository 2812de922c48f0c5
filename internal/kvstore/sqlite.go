package kvstore

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"

	"github.com/sreq-inc/solo/internal/errdef"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and creates) the database at dsn. A dsn such as
// "file:name?mode=memory&cache=shared" gives an isolated in-memory store.
func OpenSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "open sqlite %s", dsn)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errdef.Wrap(errdef.CodeStorage, err, "create kv table")
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(
		context.Background(),
		`SELECT value FROM kv WHERE key = ?`,
		key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errdef.Wrap(errdef.CodeStorage, err, "get %q", key)
	}
	return value, true, nil
}

func (s *SQLite) Set(key, value string) error {
	_, err := s.db.ExecContext(
		context.Background(),
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key,
		value,
	)
	return errdef.Wrap(errdef.CodeStorage, err, "set %q", key)
}

func (s *SQLite) Remove(key string) error {
	_, err := s.db.ExecContext(context.Background(), `DELETE FROM kv WHERE key = ?`, key)
	return errdef.Wrap(errdef.CodeStorage, err, "remove %q", key)
}

func (s *SQLite) Keys() ([]string, error) {
	rows, err := s.db.QueryContext(context.Background(), `SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "list keys")
	}
	defer func() {
		_ = rows.Close()
	}()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errdef.Wrap(errdef.CodeStorage, err, "scan key")
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "list keys")
	}
	return keys, nil
}
