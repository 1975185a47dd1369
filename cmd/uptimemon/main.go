package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemon/internal/config"
	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/events"
	"github.com/hamed0406/uptimemon/internal/httpapi"
	apimw "github.com/hamed0406/uptimemon/internal/httpapi/middleware"
	"github.com/hamed0406/uptimemon/internal/incident"
	"github.com/hamed0406/uptimemon/internal/logging"
	"github.com/hamed0406/uptimemon/internal/metrics"
	"github.com/hamed0406/uptimemon/internal/notify"
	"github.com/hamed0406/uptimemon/internal/probe"
	"github.com/hamed0406/uptimemon/internal/repo"
	"github.com/hamed0406/uptimemon/internal/repo/bolt"
	"github.com/hamed0406/uptimemon/internal/repo/memory"
	"github.com/hamed0406/uptimemon/internal/repo/postgres"
	"github.com/hamed0406/uptimemon/internal/repo/sqlite"
	"github.com/hamed0406/uptimemon/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// .env is optional; real env vars win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(logging.Options{Dir: cfg.Log.Dir, Level: cfg.Log.Level, Stdout: cfg.Log.Stdout})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("store_close_error", zap.Error(err))
		}
	}()
	logger.Info("store_ready", zap.String("driver", cfg.Storage.Driver))

	var windows []domain.MaintenanceWindow
	if cfg.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			return err
		}
		if err := seed.Apply(ctx, store); err != nil {
			return fmt.Errorf("apply seed: %w", err)
		}
		windows = seed.Maintenance
		logger.Info("seed_applied",
			zap.String("file", cfg.SeedFile),
			zap.Int("monitors", len(seed.Monitors)),
			zap.Int("channels", len(seed.Channels)),
			zap.Int("maintenance_windows", len(seed.Maintenance)),
		)
	}

	m := metrics.New()

	var sink events.Sink = events.Nop{}
	if cfg.Redis.Addr != "" {
		rs, err := events.NewRedisSink(ctx, events.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
			MaxLen:   cfg.Redis.MaxLen,
		})
		if err != nil {
			return err
		}
		defer rs.Close()
		sink = rs
		logger.Info("events_redis", zap.String("addr", cfg.Redis.Addr), zap.String("key", cfg.Redis.Key))
	}

	sched := scheduler.New(scheduler.Deps{
		Store:     store,
		Prober:    probe.NewRegistry(cfg.Engine.ProbeGrace),
		Incidents: incident.NewManager(store, logger, m),
		Notifier:  notify.NewDispatcher(logger, m, cfg.Engine.DispatchTimeout).Defaults(),
		Events:    sink,
		Metrics:   m,
		Logger:    logger,
		Calendar:  scheduler.NewWindows(windows...),
	}, scheduler.Options{
		RetryBackoff:    cfg.Engine.RetryBackoff,
		StoreTimeout:    cfg.Engine.StoreTimeout,
		NotifyOnFirstUp: cfg.Engine.NotifyOnFirstUp,
	})

	syncer := scheduler.NewSyncer(logger, sched, store, cfg.Engine.SyncInterval)
	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		syncer.Run(ctx)
	}()

	api := httpapi.NewServer(logger, sched, store, m)
	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.Router(
			apimw.Keys{Public: cfg.Server.PublicAPIKeys, Admin: cfg.Server.AdminAPIKeys},
			cfg.Server.AllowedOrigins,
			cfg.Server.PublicRPM, cfg.Server.PublicBurst,
			cfg.Server.AdminRPM, cfg.Server.AdminBurst,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-serveErr:
		if err != nil {
			stop()
			<-syncDone
			_ = sched.Shutdown(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_error", zap.Error(err))
	}
	<-syncDone
	if err := sched.Shutdown(shutdownCtx); err != nil {
		logger.Warn("scheduler_shutdown_error", zap.Error(err))
	}
	logger.Info("shutdown_complete")
	return nil
}

func openStore(ctx context.Context, c config.StorageConfig, logger *zap.Logger) (repo.Store, error) {
	switch c.Driver {
	case config.DriverPostgres:
		return postgres.New(ctx, c.DatabaseURL, logger)
	case config.DriverSQLite:
		return sqlite.New(ctx, c.SQLitePath)
	case config.DriverBolt:
		return bolt.New(c.BoltPath)
	case config.DriverMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", c.Driver)
}
