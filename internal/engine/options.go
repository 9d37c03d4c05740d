package engine

import (
	"log/slog"
	"time"

	"github.com/roach88/herdsync/internal/kv"
)

// DefaultLeaseTTL bounds how long a crashed pass can block others. A live
// pass renews its lease before every backend call.
const DefaultLeaseTTL = 2 * time.Minute

// Option configures a Coordinator or Mutator.
type Option func(*settings)

type settings struct {
	logger *slog.Logger
	bus    *Bus
	ids    RunIDGenerator
	now    func() time.Time

	lease    kv.Leaser
	leaseTTL time.Duration
}

func newSettings(opts []Option) settings {
	s := settings{
		logger: slog.Default(),
		ids:    UUIDv7Generator{},
		now:    time.Now,

		leaseTTL: DefaultLeaseTTL,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.bus == nil {
		s.bus = NewBus()
	}
	return s
}

// WithLogger sets the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBus shares one event bus between components. Without it each
// component publishes on a private bus.
func WithBus(b *Bus) Option {
	return func(s *settings) { s.bus = b }
}

// WithRunIDs overrides the run id generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(s *settings) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithClock overrides the wall clock used for result timing.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLease makes the coordinator hold the sync lease in l for every pass,
// so coordinators in other processes sharing the key space back off. ttl
// <= 0 means DefaultLeaseTTL.
func WithLease(l kv.Leaser, ttl time.Duration) Option {
	return func(s *settings) {
		s.lease = l
		if ttl > 0 {
			s.leaseTTL = ttl
		}
	}
}
