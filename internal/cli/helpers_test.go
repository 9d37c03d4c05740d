package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/herdsync/internal/backend/devserver"
	"github.com/roach88/herdsync/internal/config"
	"github.com/roach88/herdsync/internal/kv"
)

const testToken = "tok"

// env is one isolated herdsync installation: its own database and,
// optionally, its own registry.
type env struct {
	t    *testing.T
	dir  string
	vars map[string]string
	srv  *devserver.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	return &env{
		t:   t,
		dir: dir,
		vars: map[string]string{
			config.EnvDB: filepath.Join(dir, "herd.db"),
		},
	}
}

// withRegistry starts a devserver and points the installation at it.
func (e *env) withRegistry() *env {
	e.t.Helper()
	e.srv = devserver.New(devserver.Options{Token: testToken})
	ts := httptest.NewServer(e.srv.Handler())
	e.t.Cleanup(ts.Close)
	e.vars[config.EnvBackendURL] = ts.URL
	e.vars[config.EnvToken] = testToken
	return e
}

type result struct {
	stdout string
	stderr string
	err    error
}

func (e *env) run(args ...string) result {
	e.t.Helper()
	opts := &RootOptions{Getenv: func(k string) string { return e.vars[k] }}
	cmd := newRootCommand(opts)

	out, errb := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errb)
	cmd.SetArgs(append([]string{"--config", filepath.Join(e.dir, "none.yaml")}, args...))

	err := cmd.ExecuteContext(context.Background())
	return result{stdout: out.String(), stderr: errb.String(), err: err}
}

// runJSON runs with --format json and decodes the response data into v.
func (e *env) runJSON(v any, args ...string) (CLIResponse, error) {
	e.t.Helper()
	res := e.run(append([]string{"--format", "json"}, args...)...)

	var resp CLIResponse
	raw := struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(e.t, json.Unmarshal([]byte(res.stdout), &raw), "stdout: %s\nstderr: %s", res.stdout, res.stderr)
	resp = raw.CLIResponse
	if v != nil && len(raw.Data) > 0 {
		require.NoError(e.t, json.Unmarshal(raw.Data, v))
	}
	return resp, res.err
}

// seed writes raw values into the installation's key space.
func (e *env) seed(entries map[string]string) {
	e.t.Helper()
	db, err := kv.Open(e.vars[config.EnvDB], kv.Options{})
	require.NoError(e.t, err)
	defer db.Close()
	for k, v := range entries {
		require.NoError(e.t, db.Put(context.Background(), k, []byte(v)))
	}
}
