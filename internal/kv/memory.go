package kv

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is a Store held in process memory.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
	leases map[string]lease
	opts   Options
}

type lease struct {
	owner   string
	expires time.Time
}

var (
	_ Store  = (*Memory)(nil)
	_ Leaser = (*Memory)(nil)
)

// NewMemory creates an empty in-memory key space.
func NewMemory(opts Options) *Memory {
	return &Memory{
		values: make(map[string][]byte),
		leases: make(map[string]lease),
		opts:   opts,
	}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, key string, value []byte) error {
	return m.PutAll(ctx, Entry{Key: key, Value: value})
}

// PutAll implements Store.
func (m *Memory) PutAll(_ context.Context, entries ...Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opts.QuotaBytes > 0 {
		total := m.bytesLocked()
		seen := make(map[string]bool, len(entries))
		for _, e := range entries {
			if !seen[e.Key] {
				total -= int64(len(m.values[e.Key]))
				seen[e.Key] = true
			}
		}
		total += batchBytes(entries)
		if total > m.opts.QuotaBytes {
			return fmt.Errorf("%w: %d bytes > %d", ErrQuotaExceeded, total, m.opts.QuotaBytes)
		}
	}

	for _, e := range entries {
		if e.Delete {
			delete(m.values, e.Key)
			continue
		}
		m.values[e.Key] = append([]byte{}, e.Value...)
	}
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Usage implements Store.
func (m *Memory) Usage(_ context.Context) (Usage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Usage{Keys: len(m.values), Bytes: m.bytesLocked(), QuotaBytes: m.opts.QuotaBytes}, nil
}

func (m *Memory) bytesLocked() int64 {
	var n int64
	for _, v := range m.values {
		n += int64(len(v))
	}
	return n
}

// Acquire implements Leaser.
func (m *Memory) Acquire(_ context.Context, name, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.now()
	if cur, ok := m.leases[name]; ok && cur.owner != owner && now.Before(cur.expires) {
		return false, nil
	}
	m.leases[name] = lease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

// Release implements Leaser.
func (m *Memory) Release(_ context.Context, name, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.leases[name]; ok && cur.owner == owner {
		delete(m.leases, name)
	}
	return nil
}
