package store

import (
	"log/slog"
	"time"
)

// Local key space layout. Each key is independently clearable.
const (
	KeyPending          = "herdsync.pending"
	KeyCache            = "herdsync.cache"
	KeyCacheRefreshedAt = "herdsync.cache.refreshedAt"
	KeyLegacy           = "animals"
)

// Option configures a store component.
type Option func(*options)

type options struct {
	logger *slog.Logger
	now    func() time.Time
}

func newOptions(opts []Option) options {
	o := options{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used to report swallowed storage failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
