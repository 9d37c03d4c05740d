package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/roach88/herdsync/internal/kv"
	"github.com/roach88/herdsync/internal/record"
)

// legacyRow is one entry of the old single-table layout: the full field set
// plus a synced flag, with an id that was sometimes a number and sometimes a
// string.
type legacyRow struct {
	ID        json.RawMessage `json:"id,omitempty"`
	Synced    bool            `json:"synced"`
	CreatedAt string          `json:"createdAt,omitempty"`
	record.Fields
}

// MigrationReport describes what one migrator run did.
type MigrationReport struct {
	Skipped bool `json:"skipped"`
	Pending int  `json:"pending"`
	Cached  int  `json:"cached"`
}

// Migrator moves the legacy single-table store into PendingStore and
// ServerCache.
type Migrator struct {
	kv      kv.Store
	pending *PendingStore
	cache   *ServerCache
	opts    options
}

// NewMigrator wires a migrator over the same key space the stores use.
func NewMigrator(s kv.Store, pending *PendingStore, cache *ServerCache, opts ...Option) *Migrator {
	return &Migrator{kv: s, pending: pending, cache: cache, opts: newOptions(opts)}
}

// Run performs the migration once. Without a legacy key it returns
// immediately with Skipped set, which makes repeated runs no-ops.
//
// Unsynced rows are appended to the pending queue, keeping their integer id
// as LocalID when it is free. Synced rows become the cache snapshot. The
// queue, the snapshot and the removal of the legacy key are one batch, so a
// failed run leaves every key as it was and can simply be repeated.
func (m *Migrator) Run(ctx context.Context) (MigrationReport, error) {
	m.pending.mu.Lock()
	defer m.pending.mu.Unlock()
	m.cache.mu.Lock()
	defer m.cache.mu.Unlock()

	raw, err := m.kv.Get(ctx, KeyLegacy)
	if kv.IsNotFound(err) {
		return MigrationReport{Skipped: true}, nil
	}
	if err != nil {
		return MigrationReport{}, fmt.Errorf("read legacy store: %w", err)
	}

	var rows []legacyRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		m.opts.logger.Error("legacy store unreadable, keeping it", "key", KeyLegacy, "error", err)
		return MigrationReport{}, fmt.Errorf("decode legacy store: %w", err)
	}

	existing, ok := m.pending.load(ctx)
	if !ok {
		return MigrationReport{}, fmt.Errorf("pending queue unreadable")
	}
	used := make(map[int64]bool, len(existing)+len(rows))
	for _, rec := range existing {
		used[rec.LocalID] = true
	}
	next := nextLocalID(existing)

	var (
		toQueue []record.Pending
		toCache []record.Cached
	)
	for _, row := range rows {
		id, hasID := parseLegacyID(row.ID)
		createdAt := row.CreatedAt
		if createdAt == "" {
			createdAt = record.FormatTimestamp(m.opts.now())
		}

		if row.Synced {
			if !hasID {
				m.opts.logger.Warn("synced legacy row without id", "animal_number", row.AnimalNumber)
			}
			toCache = append(toCache, record.Cached{ID: id, CreatedAt: createdAt, Fields: row.Fields})
			continue
		}

		rec := record.Pending{CreatedAt: createdAt, Fields: row.Fields}
		if hasID && !used[id] {
			rec.LocalID = id
		} else {
			for used[next] {
				next++
			}
			rec.LocalID = next
		}
		used[rec.LocalID] = true
		if rec.LocalID >= next {
			next = rec.LocalID + 1
		}
		toQueue = append(toQueue, rec)
	}

	var batch []kv.Entry
	if len(toQueue) > 0 {
		raw, err := json.Marshal(append(existing, toQueue...))
		if err != nil {
			return MigrationReport{}, fmt.Errorf("encode pending: %w", err)
		}
		batch = append(batch, kv.Entry{Key: KeyPending, Value: raw})
	}
	if len(toCache) > 0 {
		raw, err := encodeSnapshot(toCache)
		if err != nil {
			return MigrationReport{}, err
		}
		stamp := record.FormatTimestamp(m.cache.opts.now())
		batch = append(batch,
			kv.Entry{Key: KeyCache, Value: raw},
			kv.Entry{Key: KeyCacheRefreshedAt, Value: []byte(stamp)},
		)
	}
	batch = append(batch, kv.Entry{Key: KeyLegacy, Delete: true})

	if err := m.kv.PutAll(ctx, batch...); err != nil {
		m.opts.logger.Error("legacy store not migrated, keeping it", "error", err)
		return MigrationReport{}, fmt.Errorf("write migrated records: %w", err)
	}

	report := MigrationReport{Pending: len(toQueue), Cached: len(toCache)}
	m.opts.logger.Info("legacy store migrated", "pending", report.Pending, "cached", report.Cached)
	return report, nil
}

// parseLegacyID accepts a positive integer given as a JSON number or string.
func parseLegacyID(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
	} else {
		s = string(raw)
	}

	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Legacy ids were also written as JS numbers like 1.7e12.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, false
		}
		id = int64(f)
	}
	if id <= 0 {
		return 0, false
	}
	return id, true
}
