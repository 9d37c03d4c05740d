package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/herdsync/internal/engine"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Interval time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync whenever the registry becomes reachable",
		Long: `Ping the registry periodically and run a sync pass each time it goes
from unreachable to reachable. The first successful ping syncs.

Runs until interrupted.

Example:
  herdsync watch --interval 15s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "ping interval (default from config watch.interval)")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.requireBackend(); err != nil {
		return err
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = a.cfg.Watch.Interval
	}

	ctx, cancel := signalContext(cmd, a.logger)
	defer cancel()

	events, unsubscribe := a.bus.Subscribe(32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events {
			if e.Kind != engine.EventSyncFinished || e.Result == nil {
				continue
			}
			so := newSyncOutput(*e.Result, a.pending.Count(ctx))
			_ = a.out.Render(so.RunID, so, func(w io.Writer) error {
				fmt.Fprintf(w, "[%s] ", so.Trigger)
				writeSyncText(w, so)
				return nil
			})
		}
	}()

	a.logger.Info("watching registry", "url", a.cfg.Backend.BaseURL, "interval", interval)
	err = engine.NewMonitor(a.client, a.coord, interval, a.logger).Run(ctx)

	unsubscribe()
	<-done
	if !isShutdown(err) {
		return WrapExitError(ExitFailure, "watch stopped", err)
	}
	a.logger.Info("watch stopped")
	return nil
}
