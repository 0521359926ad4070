// mynx-file-hive server
//
// Presents folders and files over a flat object store:
// - upload, download, rename, move and delete of files and whole folders
// - one-level listings and full folder hierarchies
// - asynchronous audit log (memory, PostgreSQL or Badger)
// - S3, local filesystem or in-memory storage
// - optional JWT identity, per-caller rate limiting
// - Prometheus metrics & structured logging (zap)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/manishnupt/mynx-file-hive/internal/api"
	"github.com/manishnupt/mynx-file-hive/internal/audit"
	auditbadger "github.com/manishnupt/mynx-file-hive/internal/audit/badger"
	auditmem "github.com/manishnupt/mynx-file-hive/internal/audit/memory"
	auditpg "github.com/manishnupt/mynx-file-hive/internal/audit/postgres"
	"github.com/manishnupt/mynx-file-hive/internal/auth"
	"github.com/manishnupt/mynx-file-hive/internal/config"
	"github.com/manishnupt/mynx-file-hive/internal/logging"
	"github.com/manishnupt/mynx-file-hive/internal/metrics"
	"github.com/manishnupt/mynx-file-hive/internal/quota"
	"github.com/manishnupt/mynx-file-hive/internal/retry"
	"github.com/manishnupt/mynx-file-hive/internal/storage/factory"
	"github.com/manishnupt/mynx-file-hive/internal/vfs"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: $MYNX_CONFIG or ./config.yaml)")
	flag.Parse()

	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Can't use structured logging yet
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	if err := logging.Init(cfg.Logging); err != nil {
		fmt.Fprintln(os.Stderr, "logging init error:", err)
		os.Exit(1)
	}
	defer logging.Sync()

	logging.Info("mynx-file-hive starting...",
		zap.String("listen", cfg.Server.ListenAddr),
		zap.String("metrics", cfg.Server.MetricsAddr),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("audit", cfg.Audit.Sink))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := factory.New(ctx, cfg.Storage.Backend, cfg.Storage.Options())
	if err != nil {
		logging.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()

	sink, err := openAuditSink(ctx, cfg.Audit)
	if err != nil {
		logging.Fatal("audit sink init failed", zap.Error(err))
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Audit.RetryAttempts
	emitter := audit.NewEmitter(sink, audit.Options{
		QueueSize: cfg.Audit.QueueSize,
		Workers:   cfg.Audit.Workers,
		Retry:     retryCfg,
	})

	svc := vfs.NewService(store, emitter, vfs.Options{Concurrency: cfg.Folders.Concurrency})

	var authHandler *auth.Auth
	if cfg.Auth.JWTSecret != "" || cfg.Auth.JWKSURL != "" || cfg.Auth.Required {
		authHandler, err = auth.New(ctx, cfg.Auth)
		if err != nil {
			logging.Fatal("auth init failed", zap.Error(err))
		}
		logging.Info("JWT authentication enabled", zap.Bool("required", cfg.Auth.Required))
	}

	rateLimiter := quota.NewRateLimiter()
	srv := api.NewServer(svc, emitter, authHandler, rateLimiter, api.Options{
		MaxUploadSize:     cfg.Server.MaxUploadSize,
		CORSOrigins:       cfg.Server.CORSOrigins,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		StorageType:       store.Type(),
	})

	var metricsServer *http.Server
	if cfg.Server.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logging.Info("metrics server listening", zap.String("addr", cfg.Server.MetricsAddr))
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Periodic metrics update and rate limiter cleanup
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		cleanup := time.NewTicker(time.Hour)
		defer cleanup.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if pg, ok := sink.(*auditpg.Sink); ok {
					pg.UpdateConnectionMetrics()
				}
			case <-cleanup.C:
				rateLimiter.Cleanup(24 * time.Hour)
			}
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		logging.Info("server listening (HTTP)", zap.String("addr", cfg.Server.ListenAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logging.Info("shutting down...", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			logging.Error("server error", zap.Error(err))
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn("http shutdown incomplete", zap.Error(err))
	}
	if metricsServer != nil {
		metricsServer.Close()
	}
	// In-flight operations have emitted their records; flush them.
	if err := emitter.Close(shutdownCtx); err != nil {
		logging.Warn("audit queue not fully drained", zap.Error(err))
	}
	if err := sink.Close(); err != nil {
		logging.Warn("audit sink close failed", zap.Error(err))
	}
	logging.Info("shutdown complete")
}

func openAuditSink(ctx context.Context, cfg config.AuditConfig) (audit.Sink, error) {
	switch cfg.Sink {
	case "postgres":
		logging.Info("connecting to PostgreSQL...")
		sink, err := auditpg.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logging.Info("running audit migrations...")
		if err := sink.Migrate(ctx); err != nil {
			sink.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return sink, nil
	case "badger":
		logging.Info("opening badger audit store", zap.String("dir", cfg.BadgerDir))
		sink, err := auditbadger.New(cfg.BadgerDir)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case "memory":
		logging.Warn("audit log is in memory and will not survive a restart")
		return auditmem.New(), nil
	default:
		return nil, fmt.Errorf("unknown audit sink: %s", cfg.Sink)
	}
}
