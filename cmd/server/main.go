package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/wardwatch/internal/adapter/httpserver"
	"github.com/pscheid92/wardwatch/internal/adapter/metrics"
	"github.com/pscheid92/wardwatch/internal/platform/config"
	"github.com/pscheid92/wardwatch/internal/platform/logging"
	"github.com/pscheid92/wardwatch/internal/platform/version"
	"github.com/pscheid92/wardwatch/internal/presence"
	"github.com/pscheid92/wardwatch/internal/registry"
	"github.com/pscheid92/wardwatch/internal/storage"
)

func runGracefulShutdown(cfg *config.Config, srv *httpserver.Server, tracker *presence.Tracker, logCloser io.Closer) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// websocket connections outlive the HTTP shutdown; the tracker closes them
		tracker.Stop()

		slog.Info("Shutdown complete")
		_ = logCloser.Close()
		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func healthChecks(store *storage.DiskStore, tracker *presence.Tracker) []httpserver.HealthCheck {
	return []httpserver.HealthCheck{
		{
			Name: "uploads",
			Check: func(context.Context) error {
				info, err := os.Stat(store.Root())
				if err != nil {
					return err
				}
				if !info.IsDir() {
					return fmt.Errorf("%s is not a directory", store.Root())
				}
				return nil
			},
		},
		{
			Name: "presence",
			Check: func(ctx context.Context) error {
				_, err := tracker.Producers(ctx)
				return err
			},
		},
	}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logCloser, err := logging.InitLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Version)

	promRegistry := metrics.NewRegistry()
	metricSet := metrics.NewSet(promRegistry)

	tracker := presence.NewTracker(registry.New(), clock, metricSet.Presence, metricSet.Fanout)

	store, err := storage.NewDiskStore(cfg.UploadDir, clock, metricSet.Upload)
	if err != nil {
		slog.Error("Failed to prepare upload directory", "error", err)
		os.Exit(1)
	}

	srv := httpserver.NewServer(cfg, httpserver.Deps{
		Presence:     tracker,
		Store:        store,
		Metrics:      metricSet,
		Registry:     promRegistry,
		Clock:        clock,
		HealthChecks: healthChecks(store, tracker),
	})

	done := runGracefulShutdown(cfg, srv, tracker, logCloser)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
