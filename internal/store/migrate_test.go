package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/herdsync/internal/kv"
)

type migratorFixture struct {
	kv       *kv.Memory
	pending  *PendingStore
	cache    *ServerCache
	migrator *Migrator
}

func newMigratorFixture(t *testing.T) migratorFixture {
	t.Helper()
	s := kv.NewMemory(kv.Options{})
	logger, _ := captureLogger()
	opts := []Option{WithLogger(logger), WithClock(steppingClock())}
	p := NewPendingStore(s, opts...)
	c := NewServerCache(s, opts...)
	return migratorFixture{kv: s, pending: p, cache: c, migrator: NewMigrator(s, p, c, opts...)}
}

func (f migratorFixture) putLegacy(t *testing.T, rows []map[string]any) {
	t.Helper()
	raw, err := json.Marshal(rows)
	require.NoError(t, err)
	require.NoError(t, f.kv.Put(context.Background(), KeyLegacy, raw))
}

func TestMigrator_NoLegacyKeyIsSkipped(t *testing.T) {
	f := newMigratorFixture(t)
	report, err := f.migrator.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.False(t, f.cache.IsPopulated(context.Background()))
}

func TestMigrator_SplitsBySyncedFlag(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct{ n, k int }{{0, 0}, {1, 1}, {5, 2}, {6, 0}, {4, 4}} {
		t.Run(fmt.Sprintf("n=%d,k=%d", tc.n, tc.k), func(t *testing.T) {
			f := newMigratorFixture(t)

			rows := make([]map[string]any, 0, tc.n)
			for i := 0; i < tc.n; i++ {
				rows = append(rows, map[string]any{
					"id":           i + 1,
					"animalNumber": fmt.Sprintf("L%d", i),
					"synced":       i >= tc.k,
					"createdAt":    fmt.Sprintf("2024-01-01T00:00:%02d.000Z", i),
				})
			}
			f.putLegacy(t, rows)

			report, err := f.migrator.Run(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.k, report.Pending)
			assert.Equal(t, tc.n-tc.k, report.Cached)

			assert.Len(t, f.pending.List(ctx), tc.k)
			assert.Len(t, f.cache.Get(ctx), tc.n-tc.k)

			_, err = f.kv.Get(ctx, KeyLegacy)
			assert.True(t, kv.IsNotFound(err), "legacy key must be removed")

			second, err := f.migrator.Run(ctx)
			require.NoError(t, err)
			assert.True(t, second.Skipped)
			assert.Len(t, f.pending.List(ctx), tc.k)
			assert.Len(t, f.cache.Get(ctx), tc.n-tc.k)
		})
	}
}

func TestMigrator_LocalIDAssignment(t *testing.T) {
	ctx := context.Background()
	f := newMigratorFixture(t)

	existing := f.pending.Add(ctx, fields("E1")) // takes LocalID 1

	f.putLegacy(t, []map[string]any{
		{"id": 7, "animalNumber": "KEEP", "synced": false},
		{"id": "12", "animalNumber": "STRING", "synced": false},
		{"id": 1, "animalNumber": "TAKEN", "synced": false},
		{"animalNumber": "NOID", "synced": false},
		{"id": "abc", "animalNumber": "BAD", "synced": false},
	})

	_, err := f.migrator.Run(ctx)
	require.NoError(t, err)

	ids := map[string]int64{}
	for _, rec := range f.pending.List(ctx) {
		ids[rec.AnimalNumber] = rec.LocalID
		assert.NotEmpty(t, rec.CreatedAt)
	}
	assert.Equal(t, existing.LocalID, ids["E1"])
	assert.Equal(t, int64(7), ids["KEEP"])
	assert.Equal(t, int64(12), ids["STRING"])
	assert.Equal(t, int64(13), ids["TAKEN"])
	assert.Equal(t, int64(14), ids["NOID"])
	assert.Equal(t, int64(15), ids["BAD"])

	next := f.pending.Add(ctx, fields("AFTER"))
	assert.Equal(t, int64(16), next.LocalID)
}

func TestMigrator_CachedRowsKeepBackendID(t *testing.T) {
	ctx := context.Background()
	f := newMigratorFixture(t)
	f.putLegacy(t, []map[string]any{
		{"id": 41, "animalNumber": "S1", "synced": true, "createdAt": "2024-02-02T02:02:02.000Z", "color": "Red"},
		{"id": 1.7e12, "animalNumber": "S2", "synced": true},
	})

	_, err := f.migrator.Run(ctx)
	require.NoError(t, err)

	got := f.cache.Get(ctx)
	require.Len(t, got, 2)
	assert.Equal(t, int64(41), got[0].ID)
	assert.Equal(t, "2024-02-02T02:02:02.000Z", got[0].CreatedAt)
	assert.Equal(t, "Red", got[0].Color)
	assert.Equal(t, int64(1_700_000_000_000), got[1].ID)
	assert.True(t, f.cache.IsPopulated(ctx))
}

func TestMigrator_CorruptLegacyKeepsKey(t *testing.T) {
	ctx := context.Background()
	f := newMigratorFixture(t)
	require.NoError(t, f.kv.Put(ctx, KeyLegacy, []byte("not json")))

	_, err := f.migrator.Run(ctx)
	require.Error(t, err)

	raw, err := f.kv.Get(ctx, KeyLegacy)
	require.NoError(t, err)
	assert.Equal(t, "not json", string(raw))
}

func TestMigrator_FailedWriteChangesNothing(t *testing.T) {
	ctx := context.Background()
	s := newFlakyKV()
	logger, _ := captureLogger()
	pending := NewPendingStore(s, WithLogger(logger), WithClock(steppingClock()))
	cache := NewServerCache(s, WithLogger(logger), WithClock(steppingClock()))
	migrator := NewMigrator(s, pending, cache, WithLogger(logger), WithClock(steppingClock()))

	legacy := `[
		{"id": 3, "animalNumber": "U1", "synced": false},
		{"id": 40, "animalNumber": "S1", "synced": true}
	]`
	require.NoError(t, s.Put(ctx, KeyLegacy, []byte(legacy)))

	s.setFailPuts(true)
	_, err := migrator.Run(ctx)
	require.ErrorIs(t, err, errDiskFull)

	assert.Empty(t, pending.List(ctx))
	assert.False(t, cache.IsPopulated(ctx))
	raw, err := s.Get(ctx, KeyLegacy)
	require.NoError(t, err)
	assert.JSONEq(t, legacy, string(raw))

	// The retry stamps U1 afresh, but nothing from the failed attempt is
	// left to duplicate.
	s.setFailPuts(false)
	report, err := migrator.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, MigrationReport{Pending: 1, Cached: 1}, report)
	require.Len(t, pending.List(ctx), 1)
	assert.Equal(t, int64(3), pending.List(ctx)[0].LocalID)

	_, err = s.Get(ctx, KeyLegacy)
	assert.True(t, kv.IsNotFound(err))
}
