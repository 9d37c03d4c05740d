package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/herdsync/internal/kv"
	"github.com/roach88/herdsync/internal/record"
)

// ServerCache mirrors the last full backend snapshot. A fetch replaces the
// collection as a whole; Patch edits single entries the backend confirmed.
type ServerCache struct {
	mu   sync.Mutex
	kv   kv.Store
	opts options
}

// NewServerCache creates a snapshot cache persisted in s.
func NewServerCache(s kv.Store, opts ...Option) *ServerCache {
	return &ServerCache{kv: s, opts: newOptions(opts)}
}

// Set replaces the cached snapshot with recs and stamps the refresh time.
// Both keys are written in one batch. On failure the error is logged,
// the previous snapshot stays in place, and the error is returned for
// callers that want to report it.
func (c *ServerCache) Set(ctx context.Context, recs []record.Cached) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := encodeSnapshot(recs)
	if err != nil {
		c.opts.logger.Error("cache encode failed", "error", err)
		return err
	}
	stamp := record.FormatTimestamp(c.opts.now())

	err = c.kv.PutAll(ctx,
		kv.Entry{Key: KeyCache, Value: raw},
		kv.Entry{Key: KeyCacheRefreshedAt, Value: []byte(stamp)},
	)
	if err != nil {
		c.opts.logger.Error("cache not persisted", "records", len(recs), "error", err)
		return err
	}
	return nil
}

// Patch applies fn to the cached entry with key and writes the snapshot
// back, keeping the refresh stamp. fn returns false to drop the entry. The
// read and the write share the cache lock, so a Set that landed while the
// caller was waiting on the network is patched rather than overwritten.
// Patch reports whether key was present; when it was not, nothing is
// written.
func (c *ServerCache) Patch(ctx context.Context, key record.DedupKey, fn func(*record.Cached) bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	recs := c.load(ctx)
	idx := -1
	for i := range recs {
		if recs[i].Key() == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}
	if !fn(&recs[idx]) {
		recs = append(recs[:idx], recs[idx+1:]...)
	}

	raw, err := encodeSnapshot(recs)
	if err != nil {
		c.opts.logger.Error("cache encode failed", "error", err)
		return true, err
	}
	if err := c.kv.Put(ctx, KeyCache, raw); err != nil {
		c.opts.logger.Error("cache not persisted", "records", len(recs), "error", err)
		return true, err
	}
	return true, nil
}

// Get returns the current snapshot; empty when never populated or
// unreadable.
func (c *ServerCache) Get(ctx context.Context) []record.Cached {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

func (c *ServerCache) load(ctx context.Context) []record.Cached {
	raw, err := c.kv.Get(ctx, KeyCache)
	if kv.IsNotFound(err) {
		return []record.Cached{}
	}
	if err != nil {
		c.opts.logger.Error("cache read failed", "key", KeyCache, "error", err)
		return []record.Cached{}
	}

	var recs []record.Cached
	if err := json.Unmarshal(raw, &recs); err != nil {
		c.opts.logger.Error("cache decode failed", "key", KeyCache, "error", err)
		return []record.Cached{}
	}
	if recs == nil {
		return []record.Cached{}
	}
	return recs
}

// Find returns the cached record with the given dedup key.
func (c *ServerCache) Find(ctx context.Context, key record.DedupKey) (record.Cached, bool) {
	for _, rec := range c.Get(ctx) {
		if rec.Key() == key {
			return rec, true
		}
	}
	return record.Cached{}, false
}

// IsPopulated reports whether at least one Set has succeeded. It tells
// "no animals exist" apart from "never fetched".
func (c *ServerCache) IsPopulated(ctx context.Context) bool {
	_, ok := c.LastRefreshed(ctx)
	return ok
}

// LastRefreshed returns the stamp of the last successful Set.
func (c *ServerCache) LastRefreshed(ctx context.Context) (time.Time, bool) {
	raw, err := c.kv.Get(ctx, KeyCacheRefreshedAt)
	if err != nil {
		if !kv.IsNotFound(err) {
			c.opts.logger.Error("cache stamp read failed", "key", KeyCacheRefreshedAt, "error", err)
		}
		return time.Time{}, false
	}
	t, err := record.ParseTimestamp(string(raw))
	if err != nil {
		c.opts.logger.Warn("cache stamp unparseable", "value", string(raw), "error", err)
		return time.Time{}, false
	}
	return t, true
}

func encodeSnapshot(recs []record.Cached) ([]byte, error) {
	if recs == nil {
		recs = []record.Cached{}
	}
	raw, err := json.Marshal(recs)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return raw, nil
}
