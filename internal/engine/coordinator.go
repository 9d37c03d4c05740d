package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/roach88/herdsync/internal/backend"
	"github.com/roach88/herdsync/internal/record"
	"github.com/roach88/herdsync/internal/store"
)

// Backend is the remote surface the engine needs. *backend.Client
// implements it.
type Backend interface {
	Create(ctx context.Context, rec record.Pending) (int64, error)
	Update(ctx context.Context, key record.DedupKey, f record.Fields) error
	Delete(ctx context.Context, key record.DedupKey) error
	FetchSnapshot(ctx context.Context) ([]record.Cached, error)
}

var _ Backend = (*backend.Client)(nil)

// Trigger says why a sync pass ran.
type Trigger string

const (
	TriggerReconnect Trigger = "reconnect"
	TriggerManual    Trigger = "manual"
	TriggerMutation  Trigger = "mutation"
)

// Result summarizes one pass.
type Result struct {
	RunID   string
	Trigger Trigger

	// Pushed and Failed count PUSH outcomes. Failed records stay queued.
	Pushed int
	Failed int

	// Fetched is the snapshot size when Refreshed is true.
	Fetched   int
	Refreshed bool

	// FetchErr is why FETCH did not refresh the cache, if it did not.
	FetchErr error

	Started  time.Time
	Finished time.Time
}

// Coordinator runs sync passes. The zero value is not usable; use
// NewCoordinator.
type Coordinator struct {
	pending *store.PendingStore
	cache   *store.ServerCache
	backend Backend
	s       settings

	busy atomic.Bool
}

// NewCoordinator wires a coordinator to its stores and backend.
func NewCoordinator(pending *store.PendingStore, cache *store.ServerCache, b Backend, opts ...Option) *Coordinator {
	return &Coordinator{pending: pending, cache: cache, backend: b, s: newSettings(opts)}
}

// Bus returns the bus the coordinator publishes on.
func (c *Coordinator) Bus() *Bus { return c.s.bus }

// Busy reports whether a pass is running.
func (c *Coordinator) Busy() bool { return c.busy.Load() }

// PendingCount is the number of records waiting to be pushed.
func (c *Coordinator) PendingCount(ctx context.Context) int {
	return c.pending.Count(ctx)
}

// SyncLease names the lease a pass holds when the coordinator was built
// WithLease.
const SyncLease = "herdsync.sync"

// Sync runs one PUSH then FETCH pass.
//
// Per-record push failures and fetch failures are reported in Result, not
// as an error. The returned error is ErrSyncInProgress when another pass is
// running, in this process or, with WithLease, in another one sharing the
// key space. A *SyncError means the pass stopped early because credentials
// were refused, ctx ended or the lease was lost. Records not pushed stay
// queued in every case.
func (c *Coordinator) Sync(ctx context.Context, trigger Trigger) (Result, error) {
	if !c.busy.CompareAndSwap(false, true) {
		c.s.logger.Debug("sync skipped, pass in flight", "trigger", trigger)
		return Result{Trigger: trigger}, ErrSyncInProgress
	}
	defer c.busy.Store(false)

	runID := c.s.ids.Generate()
	if c.s.lease != nil {
		ok, err := c.s.lease.Acquire(ctx, SyncLease, runID, c.s.leaseTTL)
		if err != nil {
			return Result{RunID: runID, Trigger: trigger}, fmt.Errorf("acquire sync lease: %w", err)
		}
		if !ok {
			c.s.logger.Debug("sync skipped, lease held elsewhere", "trigger", trigger, "run_id", runID)
			return Result{RunID: runID, Trigger: trigger}, ErrSyncInProgress
		}
		defer func() {
			if err := c.s.lease.Release(context.WithoutCancel(ctx), SyncLease, runID); err != nil {
				c.s.logger.Warn("sync lease not released; it expires on its own", "run_id", runID, "error", err)
			}
		}()
	}
	return c.run(ctx, trigger, runID)
}

// run is one pass without the busy latch or the lease.
func (c *Coordinator) run(ctx context.Context, trigger Trigger, runID string) (Result, error) {
	res := Result{
		RunID:   runID,
		Trigger: trigger,
		Started: c.s.now(),
	}
	log := c.s.logger.With("run_id", res.RunID)
	log.Info("sync started", "trigger", trigger)
	c.s.bus.Publish(Event{Kind: EventSyncStarted, RunID: res.RunID, Trigger: trigger})

	err := c.push(ctx, &res)
	if err == nil {
		err = c.renew(ctx, res.RunID)
	}
	if err == nil {
		c.fetch(ctx, &res)
	}
	res.Finished = c.s.now()

	c.s.bus.Publish(Event{Kind: EventPendingChanged, RunID: res.RunID, Count: c.pending.Count(ctx)})
	c.s.bus.Publish(Event{Kind: EventSyncFinished, RunID: res.RunID, Trigger: trigger, Result: &res})

	if err != nil {
		log.Warn("sync aborted", "pushed", res.Pushed, "failed", res.Failed, "error", err)
		return res, err
	}
	log.Info("sync finished",
		"pushed", res.Pushed, "failed", res.Failed,
		"refreshed", res.Refreshed, "fetched", res.Fetched)
	return res, nil
}

// renew extends the pass's lease. Without a lease it does nothing.
func (c *Coordinator) renew(ctx context.Context, runID string) error {
	if c.s.lease == nil {
		return nil
	}
	ok, err := c.s.lease.Acquire(ctx, SyncLease, runID, c.s.leaseTTL)
	if err != nil {
		if ctx.Err() != nil {
			return newCanceledError(runID, ctx.Err())
		}
		return newLeaseLostError(runID, err)
	}
	if !ok {
		return newLeaseLostError(runID, ErrSyncInProgress)
	}
	return nil
}

func (c *Coordinator) push(ctx context.Context, res *Result) error {
	log := c.s.logger.With("run_id", res.RunID)

	for _, rec := range c.pending.List(ctx) {
		if err := ctx.Err(); err != nil {
			return newCanceledError(res.RunID, err)
		}
		if err := c.renew(ctx, res.RunID); err != nil {
			return err
		}

		id, err := c.backend.Create(ctx, rec)
		if err != nil {
			if backend.IsAuthError(err) {
				return newAuthError(res.RunID, rec.LocalID, err)
			}
			if ctx.Err() != nil {
				return newCanceledError(res.RunID, ctx.Err())
			}
			res.Failed++
			log.Warn("push failed, record stays queued",
				"local_id", rec.LocalID, "animal_number", rec.AnimalNumber,
				"transient", backend.IsTransient(err), "error", err)
			continue
		}

		c.pending.Remove(ctx, rec.LocalID)
		res.Pushed++
		log.Debug("record pushed", "local_id", rec.LocalID, "id", id, "animal_number", rec.AnimalNumber)
	}
	return nil
}

func (c *Coordinator) fetch(ctx context.Context, res *Result) {
	log := c.s.logger.With("run_id", res.RunID)

	snap, err := c.backend.FetchSnapshot(ctx)
	if err != nil {
		res.FetchErr = err
		log.Warn("fetch failed, keeping cached snapshot", "error", err)
		return
	}
	if err := c.cache.Set(ctx, snap); err != nil {
		res.FetchErr = err
		return
	}
	res.Fetched = len(snap)
	res.Refreshed = true
	c.s.bus.Publish(Event{Kind: EventCacheRefreshed, RunID: res.RunID, Count: len(snap)})
}
