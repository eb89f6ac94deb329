package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/moduletrack/internal/annotator"
	"github.com/JonMunkholm/moduletrack/internal/config"
	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/JonMunkholm/moduletrack/internal/logging"
	"github.com/JonMunkholm/moduletrack/internal/metrics"
	"github.com/JonMunkholm/moduletrack/internal/store"
	"github.com/JonMunkholm/moduletrack/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store_driver", cfg.Store.Driver,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"annotator_active", cfg.Annotator.Active(),
	)

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Ping(ctx); err != nil {
		slog.Error("failed to ping store", "error", err)
		os.Exit(1)
	}

	ann, err := annotator.New(ctx, cfg.Annotator)
	if err != nil {
		slog.Error("failed to create annotator", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	service := core.NewService(
		m.InstrumentStore(st),
		m.InstrumentAnnotator(ann),
		cfg,
		core.WithImportObserver(m.ObserveImport),
	)

	server := web.NewServer(service, cfg,
		web.WithMetricsHandler(m.Handler()),
		web.WithHealthCheck(st.Ping),
	)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active imports to complete (with timeout)
		importStatus := service.ImportLimiterStatus()
		if importStatus.Active > 0 {
			slog.Info("waiting for imports to complete", "active", importStatus.Active)
			if err := service.WaitForImports(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server (uses addr from config internally)
	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
