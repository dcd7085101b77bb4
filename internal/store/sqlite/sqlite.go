package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urisubmit/urisubmit/internal/opkey"
	"github.com/urisubmit/urisubmit/internal/store"
	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", store.ErrUnavailable, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS operations (
			key TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			created_ts_unix_ns INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_operations_created ON operations(created_ts_unix_ns);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: sqlite migrate: %v", store.ErrUnavailable, err)
		}
	}
	return nil
}

// Upsert writes the record for name. A second write for the same name merges
// url and payload but keeps the first creation time.
func (s *Store) Upsert(ctx context.Context, name, url string, payload json.RawMessage) error {
	if name == "" {
		return fmt.Errorf("operation missing name")
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return fmt.Errorf("payload for %s is not valid json", name)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operations(key, name, url, payload_json, created_ts_unix_ns)
		VALUES(?,?,?,?,?)
		ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			url = excluded.url,
			payload_json = excluded.payload_json;`,
		opkey.Key(name),
		name,
		url,
		string(payload),
		s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert operation: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, name, url, payload_json, created_ts_unix_ns FROM operations ORDER BY created_ts_unix_ns DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list operations: %v", store.ErrUnavailable, err)
	}
	defer rows.Close()

	out := []store.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list operations rows: %w", err)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count operations: %v", store.ErrUnavailable, err)
	}
	return n, nil
}

func (s *Store) Get(ctx context.Context, name string) (store.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, name, url, payload_json, created_ts_unix_ns FROM operations WHERE key = ?`, opkey.Key(name))
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Record{}, fmt.Errorf("%w: %s", store.ErrNotFound, name)
		}
		return store.Record{}, err
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (store.Record, error) {
	var (
		rec     store.Record
		payload string
		created int64
	)
	if err := sc.Scan(&rec.Key, &rec.Name, &rec.URL, &payload, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Record{}, err
		}
		return store.Record{}, fmt.Errorf("scan operation: %w", err)
	}
	rec.Payload = json.RawMessage(payload)
	rec.CreatedAt = time.Unix(0, created).UTC()
	return rec, nil
}
