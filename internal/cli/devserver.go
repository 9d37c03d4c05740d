package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/herdsync/internal/backend/devserver"
	"github.com/roach88/herdsync/internal/config"
)

// DevServerOptions holds flags for the devserver command.
type DevServerOptions struct {
	*RootOptions
	Addr  string
	Token string
}

// NewDevServerCommand creates the devserver command.
func NewDevServerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DevServerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Serve an in-memory registry for local trials",
		Long: `Serve the registry's REST surface from memory. Nothing is persisted.

Point herdsync at it with backend.base_url or HERDSYNC_BACKEND_URL.

Example:
  herdsync devserver --addr 127.0.0.1:8080 --token dev
  HERDSYNC_BACKEND_URL=http://127.0.0.1:8080 HERDSYNC_TOKEN=dev herdsync sync`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevServer(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&opts.Token, "token", "", "required bearer token (empty accepts any request)")

	return cmd
}

func runDevServer(cmd *cobra.Command, opts *DevServerOptions) error {
	cfg, err := config.Load(opts.ConfigPath, opts.Getenv)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.RootOptions, cfg)

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           devserver.New(devserver.Options{Token: opts.Token, Logger: logger}).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	logger.Info("devserver listening", "addr", opts.Addr, "auth", opts.Token != "")
	fmt.Fprintf(cmd.OutOrStdout(), "Registry listening on http://%s\n", opts.Addr)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	select {
	case err := <-errc:
		return WrapExitError(ExitCommandError, "devserver failed", err)
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "devserver shutdown", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "devserver failed", err)
	}
	logger.Info("devserver stopped")
	return nil
}
