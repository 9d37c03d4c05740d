package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultInterval is how often Monitor pings when no interval is given.
const DefaultInterval = 30 * time.Second

// Pinger reports whether the backend host is reachable.
// *backend.Client implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Syncer runs a pass and reports the queue length. *Coordinator
// implements it.
type Syncer interface {
	Sync(ctx context.Context, trigger Trigger) (Result, error)
	PendingCount(ctx context.Context) int
}

// Monitor watches connectivity and runs a reconnect pass on every
// offline to online transition. It starts offline, so the first successful
// ping syncs.
//
// While the host stays reachable it syncs again when the last reconnect pass
// did not complete (busy, refused credentials, lost lease) or when records
// are waiting, whether they failed to push or another process queued them.
type Monitor struct {
	pinger   Pinger
	syncer   Syncer
	interval time.Duration
	logger   *slog.Logger

	online atomic.Bool
	owed   atomic.Bool
}

// NewMonitor creates a monitor. A non-positive interval means
// DefaultInterval; a nil logger means slog.Default().
func NewMonitor(p Pinger, s Syncer, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{pinger: p, syncer: s, interval: interval, logger: logger}
}

// Online is the state seen by the latest ping.
func (m *Monitor) Online() bool { return m.online.Load() }

// Check pings once and syncs when a pass is due. It reports the new state
// and whether a pass completed.
func (m *Monitor) Check(ctx context.Context) (online, synced bool) {
	online = m.pinger.Ping(ctx) == nil
	was := m.online.Swap(online)

	switch {
	case !online:
		if was {
			m.logger.Warn("backend unreachable, working offline")
		}
		return false, false
	case !was:
		m.logger.Info("backend reachable")
		m.owed.Store(true)
	case m.owed.Load():
		m.logger.Debug("retrying reconnect sync")
	default:
		n := m.syncer.PendingCount(ctx)
		if n == 0 {
			return true, false
		}
		m.logger.Debug("records waiting, syncing", "pending", n)
	}

	res, err := m.syncer.Sync(ctx, TriggerReconnect)
	if errors.Is(err, ErrSyncInProgress) {
		m.logger.Debug("reconnect sync skipped, pass in flight")
		return true, false
	}
	if err != nil {
		m.logger.Warn("reconnect sync failed, retrying next check", "run_id", res.RunID, "error", err)
		return true, false
	}
	m.owed.Store(false)
	return true, true
}

// Run pings immediately and then every interval until ctx ends.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Check(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
