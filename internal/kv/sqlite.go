package kv

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migrations[i] upgrades a database at user_version i to i+1. Each step runs
// in its own transaction together with the version bump.
var migrations = []string{
	// 1: named leases shared by every handle on the file.
	`CREATE TABLE IF NOT EXISTS lease (
		name       TEXT PRIMARY KEY NOT NULL,
		owner      TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	) WITHOUT ROWID`,
}

// Options configures a key space.
type Options struct {
	// QuotaBytes caps the sum of stored value sizes. 0 disables the cap.
	QuotaBytes int64

	// Now stamps updated_at and judges lease expiry. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// SQLite is a Store backed by a single SQLite file.
type SQLite struct {
	db   *sql.DB
	opts Options
}

var (
	_ Store  = (*SQLite)(nil)
	_ Leaser = (*SQLite)(nil)
)

// Open creates or opens a SQLite key space at path and brings its schema
// up to date. Several handles, in one process or many, may share a file.
func Open(path string, opts Options) (*SQLite, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &SQLite{db: db, opts: opts}, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for ; version < len(migrations); version++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migrate to v%d: %w", version+1, err)
		}
		if _, err := tx.Exec(migrations[version]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d: %w", version+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, version+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d: %w", version+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate to v%d: %w", version+1, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

// Put implements Store.
func (s *SQLite) Put(ctx context.Context, key string, value []byte) error {
	return s.PutAll(ctx, Entry{Key: key, Value: value})
}

// PutAll implements Store. The quota check and all writes share one
// transaction, so a rejected batch leaves no partial state.
func (s *SQLite) PutAll(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if s.opts.QuotaBytes > 0 {
		if err := checkQuotaTx(ctx, tx, s.opts.QuotaBytes, entries); err != nil {
			return err
		}
	}

	stamp := s.opts.now().UTC().Format(time.RFC3339Nano)
	for _, e := range entries {
		if e.Delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, e.Key); err != nil {
				return fmt.Errorf("delete %q: %w", e.Key, err)
			}
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, e.Key, nonNil(e.Value), stamp)
		if err != nil {
			return fmt.Errorf("put %q: %w", e.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put: commit: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Usage implements Store.
func (s *SQLite) Usage(ctx context.Context) (Usage, error) {
	u := Usage{QuotaBytes: s.opts.QuotaBytes}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(length(value)), 0) FROM kv
	`).Scan(&u.Keys, &u.Bytes)
	if err != nil {
		return Usage{}, fmt.Errorf("usage: %w", err)
	}
	return u, nil
}

// checkQuotaTx computes the stored size after the batch would be applied.
func checkQuotaTx(ctx context.Context, tx *sql.Tx, quota int64, entries []Entry) error {
	var total int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(length(value)), 0) FROM kv`).Scan(&total); err != nil {
		return fmt.Errorf("quota: %w", err)
	}

	replaced := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !replaced[e.Key] {
			var existing int64
			err := tx.QueryRowContext(ctx, `SELECT length(value) FROM kv WHERE key = ?`, e.Key).Scan(&existing)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("quota: %w", err)
			}
			total -= existing
			replaced[e.Key] = true
		}
	}
	total += batchBytes(entries)

	if total > quota {
		return fmt.Errorf("%w: %d bytes > %d", ErrQuotaExceeded, total, quota)
	}
	return nil
}

// batchBytes sums the final value size per key; a later entry for the same
// key replaces an earlier one and a delete counts as zero.
func batchBytes(entries []Entry) int64 {
	last := make(map[string]int, len(entries))
	for _, e := range entries {
		if e.Delete {
			last[e.Key] = 0
			continue
		}
		last[e.Key] = len(e.Value)
	}
	var n int64
	for _, size := range last {
		n += int64(size)
	}
	return n
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// Acquire implements Leaser. The upsert only replaces a row that is held by
// owner already or has expired, so at most one owner wins.
func (s *SQLite) Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := s.opts.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO lease (name, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE lease.owner = excluded.owner OR lease.expires_at <= ?
	`, name, owner, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("acquire lease %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lease %q: %w", name, err)
	}
	return n == 1, nil
}

// Release implements Leaser.
func (s *SQLite) Release(ctx context.Context, name, owner string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM lease WHERE name = ? AND owner = ?`, name, owner)
	if err != nil {
		return fmt.Errorf("release lease %q: %w", name, err)
	}
	return nil
}
