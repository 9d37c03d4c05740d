package engine

import (
	"context"
	"fmt"

	"github.com/roach88/herdsync/internal/backend"
	"github.com/roach88/herdsync/internal/record"
	"github.com/roach88/herdsync/internal/store"
)

// Outcome tags what a mutation actually did.
type Outcome string

const (
	// Applied means local state and the backend agree.
	Applied Outcome = "applied"

	// AppliedLocalOnly means local state changed but the backend has not
	// seen the change. For synced records the next full fetch may revert it.
	AppliedLocalOnly Outcome = "applied_local_only"

	// Rejected means nothing changed.
	Rejected Outcome = "rejected"
)

// Mutation is the result of a Mutator call. Err explains AppliedLocalOnly
// and Rejected outcomes.
type Mutation struct {
	Outcome Outcome
	Err     error

	// LocalID is the queue id of the record after EditPending.
	LocalID int64
}

// Mutator edits and deletes records without a full sync pass.
type Mutator struct {
	pending *store.PendingStore
	cache   *store.ServerCache
	backend Backend
	s       settings
}

// NewMutator wires a mutator to its stores and backend.
func NewMutator(pending *store.PendingStore, cache *store.ServerCache, b Backend, opts ...Option) *Mutator {
	return &Mutator{pending: pending, cache: cache, backend: b, s: newSettings(opts)}
}

// UpdateSynced sends f straight to the backend for the synced record key.
// The animal number is part of the key and cannot change.
//
// On success the cached entry is rewritten in place. There is no version
// check: whatever the backend held is overwritten. On any non-auth failure
// the cache is left alone and nothing is queued; the caller decides when to
// run a full pass.
func (m *Mutator) UpdateSynced(ctx context.Context, key record.DedupKey, f record.Fields) Mutation {
	if _, ok := m.cache.Find(ctx, key); !ok {
		return m.done(key, 0, Mutation{Outcome: Rejected, Err: fmt.Errorf("update %s: %w", key, ErrNotSynced)})
	}
	f.AnimalNumber = key.AnimalNumber

	if err := m.backend.Update(ctx, key, f); err != nil {
		out := AppliedLocalOnly
		if backend.IsAuthError(err) {
			out = Rejected
		}
		return m.done(key, 0, Mutation{Outcome: out, Err: fmt.Errorf("update %s: %w", key, err)})
	}

	// The cache is read again here: a fetch may have replaced it while the
	// update was in flight.
	found, err := m.cache.Patch(ctx, key, func(rec *record.Cached) bool {
		rec.Fields = f
		return true
	})
	switch {
	case err != nil:
		m.s.logger.Warn("cache not rewritten after update; next fetch repairs it", "key", key.String(), "error", err)
	case !found:
		m.s.logger.Debug("updated record left the cache during the call", "key", key.String())
	}
	return m.done(key, 0, Mutation{Outcome: Applied})
}

// DeleteSynced deletes the synced record key on the backend and removes it
// from the cache whatever the backend answered. Only an authentication
// failure keeps the entry.
func (m *Mutator) DeleteSynced(ctx context.Context, key record.DedupKey) Mutation {
	if _, ok := m.cache.Find(ctx, key); !ok {
		return m.done(key, 0, Mutation{Outcome: Rejected, Err: fmt.Errorf("delete %s: %w", key, ErrNotSynced)})
	}

	res := Mutation{Outcome: Applied}
	if err := m.backend.Delete(ctx, key); err != nil {
		if backend.IsAuthError(err) {
			return m.done(key, 0, Mutation{Outcome: Rejected, Err: fmt.Errorf("delete %s: %w", key, err)})
		}
		res = Mutation{Outcome: AppliedLocalOnly, Err: fmt.Errorf("delete %s: %w", key, err)}
	}

	if _, err := m.cache.Patch(ctx, key, func(*record.Cached) bool { return false }); err != nil {
		m.s.logger.Warn("cache not rewritten after delete", "key", key.String(), "error", err)
	}
	return m.done(key, 0, res)
}

// EditPending replaces a queued record. The replacement gets a fresh local
// id and creation time; the backend has never seen the old one.
func (m *Mutator) EditPending(ctx context.Context, localID int64, f record.Fields) Mutation {
	old, ok := m.pending.Get(ctx, localID)
	if !ok {
		return m.done(record.DedupKey{}, localID, Mutation{
			Outcome: Rejected,
			Err:     fmt.Errorf("edit local id %d: %w", localID, ErrNotPending),
		})
	}

	m.pending.Remove(ctx, localID)
	rec := m.pending.Add(ctx, f)
	m.s.logger.Debug("pending record replaced", "old_local_id", old.LocalID, "local_id", rec.LocalID)

	m.s.bus.Publish(Event{Kind: EventPendingChanged, Count: m.pending.Count(ctx)})
	return m.done(rec.Key(), rec.LocalID, Mutation{Outcome: AppliedLocalOnly, LocalID: rec.LocalID})
}

// DeletePending drops a queued record. Nothing is sent to the backend.
func (m *Mutator) DeletePending(ctx context.Context, localID int64) Mutation {
	if _, ok := m.pending.Get(ctx, localID); !ok {
		return m.done(record.DedupKey{}, localID, Mutation{
			Outcome: Rejected,
			Err:     fmt.Errorf("delete local id %d: %w", localID, ErrNotPending),
		})
	}

	m.pending.Remove(ctx, localID)
	m.s.bus.Publish(Event{Kind: EventPendingChanged, Count: m.pending.Count(ctx)})
	return m.done(record.DedupKey{}, localID, Mutation{Outcome: Applied})
}

func (m *Mutator) done(key record.DedupKey, localID int64, res Mutation) Mutation {
	attrs := []any{"outcome", res.Outcome}
	if !key.IsZero() {
		attrs = append(attrs, "key", key.String())
	}
	if localID != 0 {
		attrs = append(attrs, "local_id", localID)
	}

	if res.Err != nil {
		m.s.logger.Warn("mutation not fully applied", append(attrs, "error", res.Err)...)
	} else {
		m.s.logger.Info("mutation applied", attrs...)
	}
	if res.Outcome != Rejected {
		m.s.bus.Publish(Event{Kind: EventRecordMutated, Key: key, LocalID: localID, Outcome: res.Outcome})
	}
	return res
}
