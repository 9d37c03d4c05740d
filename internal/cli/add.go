package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/herdsync/internal/engine"
	"github.com/roach88/herdsync/internal/record"
)

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	fields fieldFlags
	Sync   bool
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Queue a new animal record",
		Long: `Validate and queue a new animal record locally.

The record stays pending until a sync pushes it to the registry. With --sync
a pass runs right away when a backend is configured.

Example:
  herdsync add --animal A1 --mother M7 --birth 2025-03-01 --weight 31,5 --gender f
  herdsync add -a B12 --status vendido --sync`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, opts)
		},
	}
	opts.fields.register(cmd, true)
	cmd.Flags().BoolVar(&opts.Sync, "sync", false, "sync immediately after queueing")
	_ = cmd.MarkFlagRequired("animal")

	return cmd
}

type addOutput struct {
	Record  record.Pending `json:"record"`
	Pending int            `json:"pending"`
	Sync    *syncOutput    `json:"sync,omitempty"`
}

func runAdd(cmd *cobra.Command, opts *AddOptions) error {
	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	f, err := record.NewCodec().Normalize(opts.fields.draft)
	if err != nil {
		return validationFailure(a.out, err)
	}
	rec := a.pending.Add(ctx, f)
	res := addOutput{Record: rec, Pending: a.pending.Count(ctx)}

	var syncErr error
	if opts.Sync && a.coord != nil {
		r, err := a.coord.Sync(ctx, engine.TriggerMutation)
		so := newSyncOutput(r, a.pending.Count(ctx))
		res.Sync, res.Pending, syncErr = &so, so.Pending, err
	}

	runID := ""
	if res.Sync != nil {
		runID = res.Sync.RunID
	}
	err = a.out.Render(runID, res, func(w io.Writer) error {
		fmt.Fprintf(w, "Queued %s (local id %d, %s)\n", rec.AnimalNumber, rec.LocalID, rec.CreatedAt)
		if res.Sync != nil {
			writeSyncText(w, *res.Sync)
		} else {
			fmt.Fprintf(w, "%d pending\n", res.Pending)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if syncErr != nil && !errors.Is(syncErr, engine.ErrSyncInProgress) {
		return WrapExitError(ExitFailure, "sync failed", syncErr)
	}
	return nil
}
