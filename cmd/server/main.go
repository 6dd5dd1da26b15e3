package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/langcham/mapquiz/internal/config"
	"github.com/langcham/mapquiz/internal/database"
	"github.com/langcham/mapquiz/internal/docstore"
	"github.com/langcham/mapquiz/internal/handler/health"
	"github.com/langcham/mapquiz/internal/identity"
	"github.com/langcham/mapquiz/internal/mapquiz"
	"github.com/langcham/mapquiz/internal/migrations"
	"github.com/langcham/mapquiz/internal/progress"
	"github.com/langcham/mapquiz/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- libSQL ---
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to libsql: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to libsql", "path", cfg.DBPath)

	store := docstore.New(db)
	checks := map[string]health.Checker{
		"libsql": health.CheckerFunc(store.Ping),
	}

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := progress.NewMetrics()
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("registering progress metrics: %w", err)
	}

	// --- Events ---
	var broker server.Broker = server.NewMemBroker()
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis, sharing progress events")
		broker = server.NewRedisBroker(rdb, logger)
		checks["redis"] = health.CheckerFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	// --- Domain ---
	ids := identity.NewService(db, cfg.JWTSecret, cfg.SessionTTL)
	if cfg.SeedDemo {
		if err := server.SeedDemo(ctx, logger, ids); err != nil {
			return fmt.Errorf("seeding demo account: %w", err)
		}
	}
	client := progress.NewClient(store.Collection(progress.Collection), logger, metrics)
	tracker := progress.NewTracker(client, logger, metrics)

	// --- HTTP Server ---
	srv, err := server.New(cfg.HTTPAddr, logger, server.Deps{
		Catalog:       mapquiz.DefaultCatalog(),
		Identity:      ids,
		Tracker:       tracker,
		Broker:        broker,
		Registry:      reg,
		CORSOrigins:   cfg.CORSOrigins,
		AuthRateLimit: cfg.AuthRateLimit,
		SPADir:        cfg.SPADir,
	}, func(r chi.Router) {
		r.Mount("/healthz", health.NewHandler(logger, checks).Routes())
	})
	if err != nil {
		return fmt.Errorf("building http server: %w", err)
	}

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		return sweep(gctx, logger, ids, tracker)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		if err := srv.Shutdown(context.Background()); err != nil {
			return err
		}
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Drain(drainCtx); err != nil {
			logger.Warn("progress writes still pending at exit", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// sweep deletes expired sessions and drops idle progress caches hourly
// until ctx ends.
func sweep(ctx context.Context, logger *slog.Logger, ids *identity.Service, tracker *progress.Tracker) error {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := tracker.Evict(time.Hour); n > 0 {
				logger.Info("evicted idle progress sessions", "count", n)
			}
			n, err := ids.DeleteExpiredSessions(ctx)
			if err != nil {
				logger.Warn("deleting expired sessions failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("deleted expired sessions", "count", n)
			}
		}
	}
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
