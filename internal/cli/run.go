package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/herdsync/internal/backend"
	"github.com/roach88/herdsync/internal/config"
	"github.com/roach88/herdsync/internal/engine"
	"github.com/roach88/herdsync/internal/kv"
	"github.com/roach88/herdsync/internal/store"
)

// app is everything a command needs, opened from config.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	out    *OutputFormatter

	db        *kv.SQLite
	pending   *store.PendingStore
	cache     *store.ServerCache
	assembler *engine.Assembler
	migration store.MigrationReport

	// client and coord are nil when no backend URL is configured. mut is
	// always set; its synced-record operations need a backend.
	client *backend.Client
	coord  *engine.Coordinator
	mut    *engine.Mutator
	bus    *engine.Bus
}

// openApp loads config, sets up logging, opens the local database and runs
// the legacy migration. Callers must Close the app.
func openApp(cmd *cobra.Command, opts *RootOptions) (*app, error) {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(opts.ConfigPath, opts.Getenv)
	if err != nil {
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), opts, cfg)

	logger.Debug("opening database", "path", cfg.Storage.Path)
	db, err := kv.Open(cfg.Storage.Path, kv.Options{QuotaBytes: cfg.Storage.QuotaBytes})
	if err != nil {
		_ = out.Error(ErrCodeStorage, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		out:     out,
		db:      db,
		pending: store.NewPendingStore(db, store.WithLogger(logger)),
		cache:   store.NewServerCache(db, store.WithLogger(logger)),
		bus:     engine.NewBus(),
	}
	a.assembler = engine.NewAssembler(a.pending, a.cache)

	a.migration, err = store.NewMigrator(db, a.pending, a.cache, store.WithLogger(logger)).Run(cmd.Context())
	if err != nil {
		// The legacy key is kept; everything else still works.
		logger.Error("legacy migration failed", "error", err)
	}

	if cfg.Backend.BaseURL != "" {
		a.client, err = backend.NewClient(backend.Config{
			BaseURL: cfg.Backend.BaseURL,
			Tokens:  backend.StaticToken(cfg.Auth.Token),
			Timeout: cfg.Backend.Timeout,
			Logger:  logger,
		})
		if err != nil {
			_ = a.Close()
			_ = out.Error(ErrCodeConfig, err.Error(), nil)
			return nil, WrapExitError(ExitCommandError, "invalid backend config", err)
		}
	}

	// A pass renews its lease before each request, so the lease only has to
	// outlast one request.
	var leaseTTL time.Duration
	if t := 2 * cfg.Backend.Timeout; t > engine.DefaultLeaseTTL {
		leaseTTL = t
	}
	engOpts := []engine.Option{engine.WithLogger(logger), engine.WithBus(a.bus), engine.WithLease(db, leaseTTL)}
	var remote engine.Backend
	if a.client != nil {
		remote = a.client
		a.coord = engine.NewCoordinator(a.pending, a.cache, remote, engOpts...)
	}
	a.mut = engine.NewMutator(a.pending, a.cache, remote, engOpts...)
	return a, nil
}

// requireBackend fails commands that need the registry when none is
// configured.
func (a *app) requireBackend() error {
	if a.coord != nil {
		return nil
	}
	_ = a.out.Error(ErrCodeNotConfigured,
		"no backend configured; set backend.base_url or "+config.EnvBackendURL, nil)
	return WrapExitError(ExitCommandError, "backend not configured", backend.ErrNotConfigured)
}

func (a *app) Close() error {
	if a.db == nil {
		return nil
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// newLogger writes text records to w, or JSON records when the command
// output is JSON. --verbose forces debug.
func newLogger(w io.Writer, opts *RootOptions, cfg config.Config) *slog.Logger {
	level := cfg.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if opts.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// signalContext is cmd's context, cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// isShutdown reports whether err is only the result of a cancelled context.
func isShutdown(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
