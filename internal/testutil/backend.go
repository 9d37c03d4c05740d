package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/herdsync/internal/record"
)

// FakeBackend is an in-memory backend with scriptable failures. It mirrors
// what the registry service does: Create assigns increasing ids, Update and
// Delete address rows by dedup key, FetchSnapshot returns every row.
type FakeBackend struct {
	mu     sync.Mutex
	rows   []record.Cached
	nextID int64
	calls  map[string]int

	// CreateErr, when set, is consulted before each create; a non-nil
	// result fails that create without storing anything.
	CreateErr func(rec record.Pending) error

	// BeforeCreate runs before each create, outside the lock. Tests use it
	// to block a create mid-flight.
	BeforeCreate func(rec record.Pending)

	// BeforeUpdate and BeforeDelete run before the call touches any row,
	// outside the lock.
	BeforeUpdate func(key record.DedupKey)
	BeforeDelete func(key record.DedupKey)

	UpdateErr error
	DeleteErr error
	FetchErr  error
	PingErr   error
}

// NewFakeBackend creates an empty backend whose next id is 1.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{nextID: 1, calls: make(map[string]int)}
}

// Seed replaces the stored rows; new ids continue after the highest.
func (b *FakeBackend) Seed(rows ...record.Cached) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows = append([]record.Cached(nil), rows...)
	for _, r := range rows {
		if r.ID >= b.nextID {
			b.nextID = r.ID + 1
		}
	}
}

// SetNextID makes the next create return id.
func (b *FakeBackend) SetNextID(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID = id
}

// Rows returns a copy of the stored rows.
func (b *FakeBackend) Rows() []record.Cached {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]record.Cached(nil), b.rows...)
}

// Calls is how many times op ("create", "update", "delete", "fetch",
// "ping") was invoked.
func (b *FakeBackend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

func (b *FakeBackend) Create(ctx context.Context, rec record.Pending) (int64, error) {
	b.count("create")
	if b.BeforeCreate != nil {
		b.BeforeCreate(rec)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if b.CreateErr != nil {
		if err := b.CreateErr(rec); err != nil {
			return 0, err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	row := record.Cached{ID: b.nextID, CreatedAt: rec.CreatedAt, Fields: rec.Fields}
	b.nextID++
	b.rows = append(b.rows, row)
	return row.ID, nil
}

func (b *FakeBackend) Update(_ context.Context, key record.DedupKey, f record.Fields) error {
	b.count("update")
	if b.BeforeUpdate != nil {
		b.BeforeUpdate(key)
	}
	if b.UpdateErr != nil {
		return b.UpdateErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.rows {
		if b.rows[i].Key() == key {
			b.rows[i].Fields = f
			return nil
		}
	}
	return fmt.Errorf("update %s: not found", key)
}

func (b *FakeBackend) Delete(_ context.Context, key record.DedupKey) error {
	b.count("delete")
	if b.BeforeDelete != nil {
		b.BeforeDelete(key)
	}
	if b.DeleteErr != nil {
		return b.DeleteErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.rows {
		if b.rows[i].Key() == key {
			b.rows = append(b.rows[:i], b.rows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("delete %s: not found", key)
}

func (b *FakeBackend) FetchSnapshot(context.Context) ([]record.Cached, error) {
	b.count("fetch")
	if b.FetchErr != nil {
		return nil, b.FetchErr
	}
	return b.Rows(), nil
}

func (b *FakeBackend) Ping(context.Context) error {
	b.count("ping")
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.PingErr
}

// SetPingErr changes the Ping answer while a monitor may be probing.
func (b *FakeBackend) SetPingErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.PingErr = err
}

func (b *FakeBackend) count(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[op]++
}
