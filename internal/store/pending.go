package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/roach88/herdsync/internal/kv"
	"github.com/roach88/herdsync/internal/record"
)

// PendingStore is the durable queue of records not yet confirmed by the
// backend. Records are only ever appended (Add) or removed (Remove,
// ClearAll).
type PendingStore struct {
	mu   sync.Mutex
	kv   kv.Store
	opts options
}

// NewPendingStore creates a pending queue persisted in s.
func NewPendingStore(s kv.Store, opts ...Option) *PendingStore {
	return &PendingStore{kv: s, opts: newOptions(opts)}
}

// Add assigns the next LocalID (max existing + 1, or 1 when empty) and a
// CreatedAt stamp, appends the record and persists the queue.
//
// Add never fails. If the queue cannot be read or written, the failure is
// logged and the constructed record is still returned; it is then not
// durable.
func (p *PendingStore) Add(ctx context.Context, f record.Fields) record.Pending {
	p.mu.Lock()
	defer p.mu.Unlock()

	list, ok := p.load(ctx)
	rec := record.Pending{
		LocalID:   nextLocalID(list),
		CreatedAt: record.FormatTimestamp(p.opts.now()),
		Fields:    f,
	}
	if !ok {
		// Writing now would clobber whatever is unreadable.
		p.opts.logger.Warn("pending record not persisted",
			"local_id", rec.LocalID, "animal_number", rec.AnimalNumber)
		return rec
	}

	if err := p.save(ctx, append(list, rec)); err != nil {
		p.opts.logger.Error("pending record not persisted",
			"local_id", rec.LocalID, "animal_number", rec.AnimalNumber, "error", err)
	}
	return rec
}

// List returns every pending record in insertion order.
func (p *PendingStore) List(ctx context.Context) []record.Pending {
	p.mu.Lock()
	defer p.mu.Unlock()

	list, _ := p.load(ctx)
	if list == nil {
		return []record.Pending{}
	}
	return list
}

// Get returns the pending record with the given LocalID.
func (p *PendingStore) Get(ctx context.Context, localID int64) (record.Pending, bool) {
	for _, rec := range p.List(ctx) {
		if rec.LocalID == localID {
			return rec, true
		}
	}
	return record.Pending{}, false
}

// Count is the pending badge value.
func (p *PendingStore) Count(ctx context.Context) int {
	return len(p.List(ctx))
}

// Remove drops the record with the given LocalID. Removing an absent id is a
// no-op.
func (p *PendingStore) Remove(ctx context.Context, localID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	list, ok := p.load(ctx)
	if !ok {
		return
	}

	kept := make([]record.Pending, 0, len(list))
	for _, rec := range list {
		if rec.LocalID != localID {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(list) {
		return
	}

	if err := p.save(ctx, kept); err != nil {
		p.opts.logger.Error("pending remove not persisted", "local_id", localID, "error", err)
	}
}

// ClearAll wipes the queue.
func (p *PendingStore) ClearAll(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.kv.Delete(ctx, KeyPending); err != nil {
		p.opts.logger.Error("pending clear failed", "error", err)
	}
}

// load reads the persisted queue. ok is false when the key exists but could
// not be read or decoded; callers must then not overwrite it.
func (p *PendingStore) load(ctx context.Context) ([]record.Pending, bool) {
	raw, err := p.kv.Get(ctx, KeyPending)
	if kv.IsNotFound(err) {
		return nil, true
	}
	if err != nil {
		p.opts.logger.Error("pending read failed", "key", KeyPending, "error", err)
		return nil, false
	}

	var list []record.Pending
	if err := json.Unmarshal(raw, &list); err != nil {
		p.opts.logger.Error("pending decode failed", "key", KeyPending, "error", err)
		return nil, false
	}
	return list, true
}

func (p *PendingStore) save(ctx context.Context, list []record.Pending) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode pending: %w", err)
	}
	return p.kv.Put(ctx, KeyPending, raw)
}

func nextLocalID(list []record.Pending) int64 {
	var max int64
	for _, rec := range list {
		if rec.LocalID > max {
			max = rec.LocalID
		}
	}
	return max + 1
}
