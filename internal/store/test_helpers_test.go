package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/roach88/herdsync/internal/kv"
	"github.com/roach88/herdsync/internal/record"
)

var errDiskFull = errors.New("disk full")

// flakyKV wraps an in-memory key space and fails writes on demand.
type flakyKV struct {
	*kv.Memory

	mu        sync.Mutex
	failPuts  bool
	failReads bool
}

func newFlakyKV() *flakyKV {
	return &flakyKV{Memory: kv.NewMemory(kv.Options{})}
}

func (f *flakyKV) setFailPuts(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPuts = v
}

func (f *flakyKV) setFailReads(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReads = v
}

func (f *flakyKV) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	fail := f.failReads
	f.mu.Unlock()
	if fail {
		return nil, errDiskFull
	}
	return f.Memory.Get(ctx, key)
}

func (f *flakyKV) Put(ctx context.Context, key string, value []byte) error {
	return f.PutAll(ctx, kv.Entry{Key: key, Value: value})
}

func (f *flakyKV) PutAll(ctx context.Context, entries ...kv.Entry) error {
	f.mu.Lock()
	fail := f.failPuts
	f.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return f.Memory.PutAll(ctx, entries...)
}

// captureLogger returns a logger writing text records into the returned buffer.
func captureLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// steppingClock advances one second per call, starting at 2025-03-10 12:00 UTC.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestPending(t *testing.T, s kv.Store) *PendingStore {
	t.Helper()
	logger, _ := captureLogger()
	return NewPendingStore(s, WithLogger(logger), WithClock(steppingClock()))
}

func fields(animal string) record.Fields {
	return record.Fields{AnimalNumber: animal, Status: record.StatusActive}
}
