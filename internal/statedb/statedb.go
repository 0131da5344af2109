// Package statedb persists chatjump state in SQLite: the message index as a
// single opaque record, small metadata values, and the registry of running
// servers.
package statedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/asheshgoplani/chatjump/internal/engine"
)

// SchemaVersion tracks the table layout. The index payload itself is not
// versioned.
const SchemaVersion = 1

// IndexKey is the kv key holding the JSON message index.
const IndexKey = "chatjump_index"

// Metadata keys.
const (
	MetaDeviceID      = "device_id"
	MetaSchemaVersion = "schema_version"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("statedb: key not found")

// StateDB wraps a SQLite database. Safe for concurrent use; several
// processes may share the file through WAL mode and the busy timeout.
type StateDB struct {
	db  *sql.DB
	pid int
}

var _ engine.Persister = (*StateDB)(nil)

// Open creates or opens the database at dbPath.
func Open(dbPath string) (*StateDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}

	pragmas := []struct{ sql, what string }{
		{"PRAGMA journal_mode=WAL", "wal mode"},
		{"PRAGMA busy_timeout=5000", "busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.sql); err != nil {
			db.Close()
			return nil, fmt.Errorf("statedb: %s: %w", p.what, err)
		}
	}

	return &StateDB{db: db, pid: os.Getpid()}, nil
}

// Close checkpoints the WAL and closes the database.
func (s *StateDB) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// DB exposes the handle for tests.
func (s *StateDB) DB() *sql.DB {
	return s.db
}

// Migrate creates missing tables.
func (s *StateDB) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []struct{ sql, what string }{
		{`CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`, "metadata"},
		{`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`, "kv"},
		{`CREATE TABLE IF NOT EXISTS servers (
			pid       INTEGER PRIMARY KEY,
			addr      TEXT NOT NULL,
			page_url  TEXT NOT NULL DEFAULT '',
			started   INTEGER NOT NULL,
			heartbeat INTEGER NOT NULL
		)`, "servers"},
	}
	for _, st := range stmts {
		if _, err := tx.Exec(st.sql); err != nil {
			return fmt.Errorf("statedb: create %s: %w", st.what, err)
		}
	}

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)",
		MetaSchemaVersion, strconv.Itoa(SchemaVersion),
	); err != nil {
		return fmt.Errorf("statedb: set schema version: %w", err)
	}
	return tx.Commit()
}

// --- Key/value ---

// Put stores value under key.
func (s *StateDB) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, ?)",
		key, string(value), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("statedb: put %s: %w", key, err)
	}
	return nil
}

// Get returns the value for key or ErrNotFound.
func (s *StateDB) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("statedb: get %s: %w", key, err)
	}
	return []byte(value), nil
}

// UpdatedAt returns when key was last written (zero time when missing).
func (s *StateDB) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	var ns int64
	err := s.db.QueryRowContext(ctx, "SELECT updated_at FROM kv WHERE key = ?", key).Scan(&ns)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("statedb: updated_at %s: %w", key, err)
	}
	return time.Unix(0, ns), nil
}

// --- Index record ---

// LoadIndex implements engine.Persister. A missing record is an empty index.
func (s *StateDB) LoadIndex(ctx context.Context) ([]engine.MessageEntry, error) {
	data, err := s.Get(ctx, IndexKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []engine.MessageEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("statedb: decode index: %w", err)
	}
	return entries, nil
}

// SaveIndex implements engine.Persister.
func (s *StateDB) SaveIndex(ctx context.Context, entries []engine.MessageEntry) error {
	if entries == nil {
		entries = []engine.MessageEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("statedb: encode index: %w", err)
	}
	return s.Put(ctx, IndexKey, data)
}

// --- Metadata ---

// SetMeta sets a metadata value.
func (s *StateDB) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta returns a metadata value, "" if not found.
func (s *StateDB) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// --- Server registry ---

// ServerRow is a running `chatjump serve` process.
type ServerRow struct {
	PID       int
	Addr      string
	PageURL   string
	Started   time.Time
	Heartbeat time.Time
}

// RegisterServer records this process as serving on addr.
func (s *StateDB) RegisterServer(addr, pageURL string) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO servers (pid, addr, page_url, started, heartbeat)
		VALUES (?, ?, ?, ?, ?)
	`, s.pid, addr, pageURL, now, now)
	return err
}

// Heartbeat refreshes this process's registry row.
func (s *StateDB) Heartbeat() error {
	_, err := s.db.Exec("UPDATE servers SET heartbeat = ? WHERE pid = ?", time.Now().Unix(), s.pid)
	return err
}

// UnregisterServer removes this process from the registry.
func (s *StateDB) UnregisterServer() error {
	_, err := s.db.Exec("DELETE FROM servers WHERE pid = ?", s.pid)
	return err
}

// AliveServers returns servers with a heartbeat newer than timeout, most
// recently started first. Stale rows are deleted.
func (s *StateDB) AliveServers(timeout time.Duration) ([]ServerRow, error) {
	cutoff := time.Now().Add(-timeout).Unix()
	if _, err := s.db.Exec("DELETE FROM servers WHERE heartbeat < ?", cutoff); err != nil {
		return nil, fmt.Errorf("statedb: clean servers: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT pid, addr, page_url, started, heartbeat
		FROM servers ORDER BY started DESC, pid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("statedb: list servers: %w", err)
	}
	defer rows.Close()

	var out []ServerRow
	for rows.Next() {
		var r ServerRow
		var started, hb int64
		if err := rows.Scan(&r.PID, &r.Addr, &r.PageURL, &started, &hb); err != nil {
			return nil, err
		}
		r.Started = time.Unix(started, 0)
		r.Heartbeat = time.Unix(hb, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}
