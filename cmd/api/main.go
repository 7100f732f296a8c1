// Package main is the entry point for the planguard enforcement API.
//
// It loads configuration, builds the plan-limit manager (authority client +
// snapshot cache + emergency fallback), optionally opens the tenant database
// for usage counters and the snapshot mirror, mounts the HTTP surface, and
// starts the maintenance scheduler. Graceful shutdown is handled via OS
// signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"planguard/internal/api/handlers"
	"planguard/internal/config"
	"planguard/internal/core"
	"planguard/internal/db"
	"planguard/internal/jobs"
	"planguard/internal/limits"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("planguard starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"tenant", cfg.TenantID,
		"port", cfg.Server.Port,
	)

	// Optional tenant database: usage counters and the snapshot mirror are
	// disabled when no DATABASE_URL is configured, in which case check
	// requests must carry their own usage counts.
	var pool *pgxpool.Pool
	var usageDB *db.UsageDB
	var mirror *db.MirrorRepo
	if cfg.Database.URL.Unmask() != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err = db.NewPool(ctx, cfg.Database)
		cancel()
		if err != nil {
			return fmt.Errorf("opening database pool: %w", err)
		}
		defer pool.Close()
		usageDB = db.NewUsageDB(pool)
		mirror = db.NewMirrorRepo(pool)
		logger.Info("tenant database connected")
	} else {
		logger.Warn("no database configured; usage counts must be supplied by callers")
	}

	// Plan-limit core.
	cache, err := limits.NewSnapshotCache(cfg.Cache.MaxTenants, cfg.Cache.TTL, cfg.Cache.EmergencyTTL)
	if err != nil {
		return fmt.Errorf("creating snapshot cache: %w", err)
	}
	client := limits.NewClient(limits.ClientConfig{
		URL:       cfg.Authority.URL,
		Timeout:   cfg.Authority.Timeout,
		UserAgent: cfg.Authority.UserAgent,
		Logger:    logger,
	})

	managerOpts := []limits.ManagerOption{
		limits.WithMetrics(limits.NewMetrics(prometheus.DefaultRegisterer)),
	}
	if mirror != nil {
		managerOpts = append(managerOpts, limits.WithMirror(mirror))
	}
	manager := limits.NewManager(client, cache, logger, managerOpts...)

	// HTTP surface.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	if pool != nil {
		srv.HealthProbes = append(srv.HealthProbes, dbProbe{pool: pool})
	}

	apiMetrics := handlers.NewMetrics(prometheus.DefaultRegisterer)

	checksOpts := []handlers.ChecksHandlerOption{handlers.WithMetrics(apiMetrics)}
	planOpts := []handlers.PlanHandlerOption{}
	if usageDB != nil {
		checksOpts = append(checksOpts, handlers.WithUsageSource(usageDB))
		planOpts = append(planOpts, handlers.WithPlanUsageSource(usageDB))
	}
	checksHandler := handlers.NewChecksHandler(manager, logger, checksOpts...)
	planHandler := handlers.NewPlanHandler(manager, logger, planOpts...)

	srv.MountRoutes(
		[]core.RouteRegistrar{
			checksHandler.RegisterRoutes,
			planHandler.RegisterRoutes,
		},
		[]core.RouteRegistrar{
			planHandler.RegisterOpsRoutes,
		},
	)

	// Maintenance jobs: nightly limits sync, daily counter purge.
	var purger jobs.CounterPurger
	if usageDB != nil {
		purger = usageDB
	}
	scheduler := jobs.NewScheduler(cfg.Jobs, cfg.TenantID, manager, purger, logger)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer scheduler.Stop()

	return runHTTPServer(srv, cfg, logger)
}

// dbProbe reports database connectivity for the health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p dbProbe) Name() string { return "database" }

func (p dbProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
