// Package app wires the Ferdi sync service and implements its commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/proimagery/ferdi-app-sub000/internal/config"
	"github.com/proimagery/ferdi-app-sub000/internal/db"
	"github.com/proimagery/ferdi-app-sub000/internal/handlers"
	"github.com/proimagery/ferdi-app-sub000/internal/httpserver"
	"github.com/proimagery/ferdi-app-sub000/internal/logging"
)

// Run bootstraps the Ferdi sync service.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, seed, or catalog")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	ctx = logging.WithLogger(ctx, logger)

	switch args[0] {
	case "serve":
		return serve(ctx, cfg, logger)
	case "migrate":
		return runMigrations(ctx, cfg, args[1:], os.Stdout)
	case "seed":
		return runSeed(ctx, cfg, os.Stdout)
	case "catalog":
		return runCatalog(ctx, cfg, logger, args[1:], os.Stdout)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     cfg.Level(),
	})).With(slog.String("environment", cfg.Environment))
}

// connect opens the Postgres pool, or returns nil for the memory backend.
func connect(ctx context.Context, cfg config.Config) (db.Pool, error) {
	if cfg.StorageBackend == config.BackendMemory {
		return nil, nil
	}
	return db.Connect(ctx, cfg.DatabaseURL)
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	rt, cleanup, err := buildDependencies(ctx, pool, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), httpserver.ShutdownTimeout)
		defer cancel()
		if err := cleanup(shutdownCtx); err != nil {
			logger.Error("shutdown cleanup failed", "error", err)
		}
	}()

	rt.start(ctx)

	srv := httpserver.New(cfg.AppPort, handlers.NewRouter(rt.deps, logger))
	logger.Info("starting http server", "port", cfg.AppPort, "backend", cfg.StorageBackend, "guest", cfg.Guest())

	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("http server stopped")
	return nil
}
