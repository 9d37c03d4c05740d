package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/herdsync/internal/engine"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push pending records and refresh the cache",
		Long: `Run one sync pass: push every pending record to the registry, then
replace the local cache with the registry's snapshot.

Records that fail to push stay pending for the next pass. A failed refresh
keeps the previous cache.

Exit status is 1 when records are left pending or credentials were refused.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts)
		},
	}
}

// syncOutput is the rendered form of engine.Result.
type syncOutput struct {
	RunID      string `json:"run_id"`
	Trigger    string `json:"trigger"`
	Pushed     int    `json:"pushed"`
	Failed     int    `json:"failed"`
	Refreshed  bool   `json:"refreshed"`
	Fetched    int    `json:"fetched"`
	FetchError string `json:"fetch_error,omitempty"`
	Pending    int    `json:"pending"`
}

func newSyncOutput(r engine.Result, pending int) syncOutput {
	so := syncOutput{
		RunID:     r.RunID,
		Trigger:   string(r.Trigger),
		Pushed:    r.Pushed,
		Failed:    r.Failed,
		Refreshed: r.Refreshed,
		Fetched:   r.Fetched,
		Pending:   pending,
	}
	if r.FetchErr != nil {
		so.FetchError = r.FetchErr.Error()
	}
	return so
}

func writeSyncText(w io.Writer, so syncOutput) {
	fmt.Fprintf(w, "Pushed %d, failed %d, %d pending\n", so.Pushed, so.Failed, so.Pending)
	if so.Refreshed {
		fmt.Fprintf(w, "Cache refreshed: %d records\n", so.Fetched)
	} else if so.FetchError != "" {
		fmt.Fprintf(w, "Cache kept (refresh failed: %s)\n", so.FetchError)
	}
}

func runSync(cmd *cobra.Command, opts *RootOptions) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.requireBackend(); err != nil {
		return err
	}
	ctx := cmd.Context()

	res, err := a.coord.Sync(ctx, engine.TriggerManual)
	switch {
	case engine.IsBusy(err):
		_ = a.out.Error(ErrCodeBusy, err.Error(), nil)
		return WrapExitError(ExitFailure, "sync skipped", err)
	case engine.IsAuthError(err):
		_ = a.out.Error(ErrCodeUnauthenticated, err.Error(), map[string]int{"pending": a.pending.Count(ctx)})
		return WrapExitError(ExitFailure, "sync aborted", err)
	case err != nil:
		_ = a.out.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "sync aborted", err)
	}

	so := newSyncOutput(res, a.pending.Count(ctx))
	if err := a.out.Render(so.RunID, so, func(w io.Writer) error {
		writeSyncText(w, so)
		return nil
	}); err != nil {
		return err
	}
	if so.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d records left pending", so.Failed))
	}
	return nil
}
