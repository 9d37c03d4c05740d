package engine

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/roach88/herdsync/internal/kv"
	"github.com/roach88/herdsync/internal/record"
	"github.com/roach88/herdsync/internal/store"
	"github.com/roach88/herdsync/internal/testutil"
)

type fixture struct {
	kv      *kv.Memory
	pending *store.PendingStore
	cache   *store.ServerCache
	backend *testutil.FakeBackend
	bus     *Bus
	coord   *Coordinator
	mut     *Mutator
	logs    *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mem := kv.NewMemory(kv.Options{})
	logger, logs := captureLogger()
	clock := testutil.NewSteppingClock()

	f := &fixture{
		kv:      mem,
		pending: store.NewPendingStore(mem, store.WithLogger(logger), store.WithClock(clock.Now)),
		cache:   store.NewServerCache(mem, store.WithLogger(logger), store.WithClock(clock.Now)),
		backend: testutil.NewFakeBackend(),
		bus:     NewBus(),
		logs:    logs,
	}
	opts := []Option{WithLogger(logger), WithBus(f.bus), WithClock(clock.Now), WithLease(mem, 0)}
	f.coord = NewCoordinator(f.pending, f.cache, f.backend, opts...)
	f.mut = NewMutator(f.pending, f.cache, f.backend, opts...)
	return f
}

func captureLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func animal(n string) record.Fields {
	return record.Fields{AnimalNumber: n, Status: record.StatusActive}
}

func cachedRow(id int64, n, createdAt string) record.Cached {
	return record.Cached{ID: id, CreatedAt: createdAt, Fields: animal(n)}
}

// drain collects whatever is buffered on ch without blocking.
func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}
