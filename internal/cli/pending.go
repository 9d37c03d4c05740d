package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/herdsync/internal/engine"
	"github.com/roach88/herdsync/internal/record"
)

// PendingOptions holds flags for the pending command.
type PendingOptions struct {
	*RootOptions
	Clear bool
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PendingOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Show records waiting to be pushed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPending(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Clear, "clear", false, "discard every pending record")

	return cmd
}

type pendingOutput struct {
	Records []record.Pending `json:"records"`
	Count   int              `json:"count"`
	Cleared int              `json:"cleared,omitempty"`
}

func runPending(cmd *cobra.Command, opts *PendingOptions) error {
	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	var res pendingOutput
	if opts.Clear {
		res.Cleared = a.pending.Count(ctx)
		a.pending.ClearAll(ctx)
		a.logger.Info("pending queue cleared", "records", res.Cleared)
	}
	res.Records = a.pending.List(ctx)
	res.Count = len(res.Records)

	return a.out.Render("", res, func(w io.Writer) error {
		if opts.Clear {
			fmt.Fprintf(w, "Discarded %d pending records\n", res.Cleared)
			return nil
		}
		if res.Count == 0 {
			fmt.Fprintln(w, "Nothing pending")
			return nil
		}
		if err := writeItems(w, engine.Assemble(res.Records, nil)); err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%d pending\n", res.Count)
		return nil
	})
}
