package cli

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/herdsync/internal/backend"
	"github.com/roach88/herdsync/internal/config"
	"github.com/roach88/herdsync/internal/engine"
	"github.com/roach88/herdsync/internal/kv"
	"github.com/roach88/herdsync/internal/record"
	"github.com/roach88/herdsync/internal/store"
)

func TestAdd_QueuesNormalizedRecord(t *testing.T) {
	e := newEnv(t)

	var out addOutput
	resp, err := e.runJSON(&out, "add", "--animal", " a1 ", "--weight", "31,5", "--gender", "hembra", "--color", "light brown")
	require.NoError(t, err)

	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(1), out.Record.LocalID)
	assert.Equal(t, "A1", out.Record.AnimalNumber)
	assert.Equal(t, record.GenderFemale, out.Record.Gender)
	assert.Equal(t, "Light Brown", out.Record.Color)
	require.NotNil(t, out.Record.Weight)
	assert.InDelta(t, 31.5, *out.Record.Weight, 1e-9)
	assert.Equal(t, 1, out.Pending)
	assert.Nil(t, out.Sync)

	var pend pendingOutput
	_, err = e.runJSON(&pend, "pending")
	require.NoError(t, err)
	assert.Equal(t, 1, pend.Count)
}

func TestAdd_InvalidInput(t *testing.T) {
	e := newEnv(t)

	resp, err := e.runJSON(nil, "add", "--animal", "A1", "--weight", "heavy")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "weight")
}

func TestAdd_RequiresAnimal(t *testing.T) {
	res := newEnv(t).run("add", "--mother", "M1")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "animal")
}

func TestSync_EndToEnd(t *testing.T) {
	e := newEnv(t).withRegistry()
	e.srv.Seed(record.Cached{ID: 6, CreatedAt: "2025-01-01T00:00:00.000Z", Fields: record.Fields{AnimalNumber: "OLD", Status: record.StatusActive}})

	require.NoError(t, e.run("add", "-a", "A1").err)
	require.NoError(t, e.run("add", "-a", "B2").err)

	var so syncOutput
	resp, err := e.runJSON(&so, "sync")
	require.NoError(t, err)

	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, resp.RunID, so.RunID)
	assert.Equal(t, "manual", so.Trigger)
	assert.Equal(t, 2, so.Pushed)
	assert.Equal(t, 0, so.Failed)
	assert.True(t, so.Refreshed)
	assert.Equal(t, 3, so.Fetched)
	assert.Equal(t, 0, so.Pending)

	var list listOutput
	_, err = e.runJSON(&list, "list")
	require.NoError(t, err)
	require.Len(t, list.Items, 3)
	for _, it := range list.Items {
		assert.Equal(t, engine.SourceSynced, it.Source)
	}
	assert.Equal(t, int64(7), list.Items[1].ID)
	assert.NotEmpty(t, list.LastRefreshed)
}

func TestAdd_WithSyncFlag(t *testing.T) {
	e := newEnv(t).withRegistry()

	var out addOutput
	_, err := e.runJSON(&out, "add", "-a", "A1", "--sync")
	require.NoError(t, err)

	require.NotNil(t, out.Sync)
	assert.Equal(t, "mutation", out.Sync.Trigger)
	assert.Equal(t, 1, out.Sync.Pushed)
	assert.Equal(t, 0, out.Pending)
	assert.Len(t, e.srv.Rows(), 1)
}

func TestSync_PartialFailureExitsOne(t *testing.T) {
	e := newEnv(t).withRegistry()
	require.NoError(t, e.run("add", "-a", "A1").err)
	require.NoError(t, e.run("add", "-a", "B2").err)
	e.srv.FailNext(http.MethodPost, backend.PathRegister, http.StatusInternalServerError)

	var so syncOutput
	_, err := e.runJSON(&so, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, 1, so.Pushed)
	assert.Equal(t, 1, so.Failed)
	assert.Equal(t, 1, so.Pending)

	_, err = e.runJSON(&so, "sync")
	require.NoError(t, err, "the failed record goes out on the next pass")
	assert.Equal(t, 0, so.Pending)
	assert.Len(t, e.srv.Rows(), 2)
}

func TestSync_RefusedTokenKeepsQueue(t *testing.T) {
	e := newEnv(t).withRegistry()
	e.vars["HERDSYNC_TOKEN"] = "wrong"
	require.NoError(t, e.run("add", "-a", "A1").err)

	resp, err := e.runJSON(nil, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeUnauthenticated, resp.Error.Code)
	assert.Empty(t, e.srv.Rows())
	assert.Equal(t, 0, e.srv.Calls(http.MethodGet, backend.PathSnapshot), "fetch skipped")

	var pend pendingOutput
	_, err = e.runJSON(&pend, "pending")
	require.NoError(t, err)
	assert.Equal(t, 1, pend.Count)
}

func TestSync_LeaseHeldByAnotherProcess(t *testing.T) {
	e := newEnv(t).withRegistry()
	require.NoError(t, e.run("add", "-a", "A1").err)

	db, err := kv.Open(e.vars[config.EnvDB], kv.Options{})
	require.NoError(t, err)
	defer db.Close()
	ok, err := db.Acquire(context.Background(), engine.SyncLease, "watch-process", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	resp, err := e.runJSON(nil, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeBusy, resp.Error.Code)
	assert.Empty(t, e.srv.Rows())

	require.NoError(t, db.Release(context.Background(), engine.SyncLease, "watch-process"))
	require.NoError(t, e.run("sync").err)
	assert.Len(t, e.srv.Rows(), 1)
}

func TestSync_WithoutBackend(t *testing.T) {
	e := newEnv(t)

	resp, err := e.runJSON(nil, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotConfigured, resp.Error.Code)
}

func TestEdit_PendingRecordIsRequeued(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.run("add", "-a", "A1", "--weight", "30", "--mother", "M1").err)
	require.NoError(t, e.run("add", "-a", "B2").err)

	var out mutationOutput
	_, err := e.runJSON(&out, "edit", "a1", "--weight", "40")
	require.NoError(t, err)

	assert.Equal(t, engine.SourcePending, out.Source)
	assert.Equal(t, engine.AppliedLocalOnly, out.Outcome)
	assert.Equal(t, int64(3), out.LocalID)

	var pend pendingOutput
	_, err = e.runJSON(&pend, "pending")
	require.NoError(t, err)
	require.Len(t, pend.Records, 2)
	edited := pend.Records[1]
	assert.Equal(t, "A1", edited.AnimalNumber)
	assert.Equal(t, "M1", edited.MotherNumber)
	assert.InDelta(t, 40, *edited.Weight, 1e-9)
}

func TestEdit_SyncedRecordUpdatesRegistry(t *testing.T) {
	e := newEnv(t).withRegistry()
	require.NoError(t, e.run("add", "-a", "A1", "--mother", "M1").err)
	require.NoError(t, e.run("sync").err)

	var out mutationOutput
	_, err := e.runJSON(&out, "edit", "A1", "--color", "black")
	require.NoError(t, err)
	assert.Equal(t, engine.SourceSynced, out.Source)
	assert.Equal(t, engine.Applied, out.Outcome)

	rows := e.srv.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "Black", rows[0].Color)
	assert.Equal(t, "M1", rows[0].MotherNumber, "flags not given keep their values")
}

func TestEdit_SyncedRecordRegistryDown(t *testing.T) {
	e := newEnv(t).withRegistry()
	require.NoError(t, e.run("add", "-a", "A1").err)
	require.NoError(t, e.run("sync").err)
	e.srv.FailNext(http.MethodPut, backend.PathRegisterUpdate, http.StatusBadGateway)

	var out mutationOutput
	_, err := e.runJSON(&out, "edit", "A1", "--color", "black")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, engine.AppliedLocalOnly, out.Outcome)

	var pend pendingOutput
	_, err = e.runJSON(&pend, "pending")
	require.NoError(t, err)
	assert.Equal(t, 0, pend.Count, "failed edits are not queued")
}

func TestEdit_UnknownAnimal(t *testing.T) {
	resp, err := newEnv(t).runJSON(nil, "edit", "NOPE", "--color", "red")
	require.Error(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestDelete_SyncedIsOptimistic(t *testing.T) {
	e := newEnv(t).withRegistry()
	require.NoError(t, e.run("add", "-a", "A1").err)
	require.NoError(t, e.run("add", "-a", "B2").err)
	require.NoError(t, e.run("sync").err)

	var out mutationOutput
	_, err := e.runJSON(&out, "delete", "A1")
	require.NoError(t, err)
	assert.Equal(t, engine.Applied, out.Outcome)
	assert.Len(t, e.srv.Rows(), 1)

	e.srv.FailNext(http.MethodDelete, backend.PathRegister, http.StatusServiceUnavailable)
	_, err = e.runJSON(&out, "delete", "B2")
	require.NoError(t, err)
	assert.Equal(t, engine.AppliedLocalOnly, out.Outcome)
	assert.Len(t, e.srv.Rows(), 1, "registry still has the row")

	var list listOutput
	_, err = e.runJSON(&list, "list")
	require.NoError(t, err)
	assert.Empty(t, list.Items, "gone locally either way")
}

func TestDelete_PendingByLocalID(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.run("add", "-a", "A1").err)
	require.NoError(t, e.run("add", "-a", "A1").err)

	var out mutationOutput
	_, err := e.runJSON(&out, "delete", "--local-id", "2")
	require.NoError(t, err)
	assert.Equal(t, engine.Applied, out.Outcome)

	var pend pendingOutput
	_, err = e.runJSON(&pend, "pending")
	require.NoError(t, err)
	require.Len(t, pend.Records, 1)
	assert.Equal(t, int64(1), pend.Records[0].LocalID)
}

func TestPending_Clear(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.run("add", "-a", "A1").err)
	require.NoError(t, e.run("add", "-a", "B2").err)

	var pend pendingOutput
	_, err := e.runJSON(&pend, "pending", "--clear")
	require.NoError(t, err)
	assert.Equal(t, 2, pend.Cleared)
	assert.Equal(t, 0, pend.Count)
}

func TestMigrate_LegacyStore(t *testing.T) {
	e := newEnv(t)
	e.seed(map[string]string{
		store.KeyLegacy: `[
			{"id": 3, "synced": false, "createdAt": "2024-05-01T10:00:00.000Z", "animalNumber": "P1"},
			{"id": 40, "synced": true, "createdAt": "2024-05-02T10:00:00.000Z", "animalNumber": "S1"},
			{"id": 41, "synced": true, "createdAt": "2024-05-03T10:00:00.000Z", "animalNumber": "S2"}
		]`,
	})

	var rep store.MigrationReport
	_, err := e.runJSON(&rep, "migrate")
	require.NoError(t, err)
	assert.False(t, rep.Skipped)
	assert.Equal(t, 1, rep.Pending)
	assert.Equal(t, 2, rep.Cached)

	_, err = e.runJSON(&rep, "migrate")
	require.NoError(t, err)
	assert.True(t, rep.Skipped)

	var list listOutput
	_, err = e.runJSON(&list, "list")
	require.NoError(t, err)
	require.Len(t, list.Items, 3)
	assert.Equal(t, int64(3), list.Items[0].LocalID)
	assert.Equal(t, int64(40), list.Items[1].ID)
}

func TestList_TextGolden(t *testing.T) {
	e := newEnv(t)
	e.seed(map[string]string{
		store.KeyPending: `[{"localId":1,"createdAt":"2025-03-10T12:00:00.000Z","animalNumber":"A1","motherNumber":"M7","weight":31.5,"gender":"female","status":"active"}]`,
		store.KeyCache: `[
			{"id":7,"createdAt":"2025-01-01T00:00:00.000Z","animalNumber":"A1","status":"active"},
			{"id":8,"createdAt":"2025-01-02T00:00:00.000Z","animalNumber":"B2","fatherNumber":"T1","birthDate":"2024-12-30","gender":"male","status":"sold"}
		]`,
		store.KeyCacheRefreshedAt: "2025-03-10T13:00:00.000Z",
	})

	res := e.run("list")
	require.NoError(t, res.err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "list_text", []byte(res.stdout))
}

func TestList_BadConfig(t *testing.T) {
	e := newEnv(t)
	e.vars["HERDSYNC_LOG_LEVEL"] = "loud"

	res := e.run("list")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.stdout, "Error [E002]")
}
