package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/recordimport/internal/config"
	"github.com/JonMunkholm/recordimport/internal/core"
	"github.com/JonMunkholm/recordimport/internal/logging"
	"github.com/JonMunkholm/recordimport/internal/store"
	"github.com/JonMunkholm/recordimport/internal/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded", "config", cfg.String())

	policy, err := core.ParseCommitPolicy(cfg.Import.CommitPolicy)
	if err != nil {
		logger.Error("invalid commit policy", "error", err)
		os.Exit(1)
	}

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(cfg.Database.URL, logger); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	ctx := context.Background()
	pool, err := store.Connect(ctx, cfg.Database.URL,
		int32(cfg.Database.MaxConns),
		int32(cfg.Database.MinConns),
		cfg.Database.MaxConnLifetime,
		cfg.Database.MaxConnIdleTime,
	)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	records := store.New(pool)
	service := core.NewService(records, records, core.Options{
		MaxPreflightRows: cfg.Import.MaxPreflightRows,
		MaxCommitRows:    cfg.Import.MaxCommitRows,
		Timeout:          cfg.Import.Timeout,
		Policy:           policy,
		MaxConcurrent:    cfg.Import.MaxConcurrent,
		MaxWait:          cfg.Import.MaxWaitTime,
		Logger:           logger,
	})

	server := web.NewServer(cfg, service, records)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down", "active_imports", service.Limiter().Active())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-stopped
	logger.Info("server stopped")
}
