package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/roamly/xpledger/internal/adapters/docstore"
	"github.com/roamly/xpledger/internal/adapters/docstore/memstore"
	"github.com/roamly/xpledger/internal/adapters/docstore/redisstore"
	"github.com/roamly/xpledger/internal/adapters/http/api"
	"github.com/roamly/xpledger/internal/app"
	"github.com/roamly/xpledger/internal/config"
	"github.com/roamly/xpledger/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Disable default Go metrics collection; the engine registry carries
	// its own metrics.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env).
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	docs, err := newDocStore(ctx, cfg, log)
	if err != nil {
		os.Stderr.WriteString("failed to open document store: " + err.Error() + "\n")
		return
	}
	defer docs.Close()

	svc := app.New(
		app.WithLogger(log),
		app.WithDocStore(docs),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithReconcileQueueSize(cfg.ReconcileQueueSize),
		app.WithReconcileWorkers(cfg.ReconcileWorkers),
		app.WithReconcileMaxAttempts(cfg.ReconcileMaxAttempts),
		app.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		app.WithConflictRetries(cfg.AwardConflictRetries),
		app.WithTransientRetries(cfg.AwardTransientRetries),
		app.WithRetryBackoff(time.Duration(cfg.AwardRetryBackoffMS)*time.Millisecond),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start engine: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	mux := http.NewServeMux()
	api.NewServer(svc, cfg.MaxLeaderboardLimit).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("backend", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
}

// newDocStore opens the configured document store backend.
func newDocStore(ctx context.Context, cfg *config.Config, log logger.Logger) (docstore.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			DB:       cfg.RedisDB,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		return redisstore.New(client, redisstore.WithLogger(log)), nil
	default:
		return memstore.New(), nil
	}
}
