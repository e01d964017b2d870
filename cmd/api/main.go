package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"gridwatch/internal/api"
	"gridwatch/internal/buildinfo"
	"gridwatch/internal/config"
	"gridwatch/internal/logger"
	"gridwatch/internal/metrics"
	"gridwatch/internal/query"
	"gridwatch/internal/seed"
	"gridwatch/internal/store"
	"gridwatch/internal/webhooks"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("")
	if err != nil {
		_ = logger.Init("info", "json")
		logger.Fatal(ctx, err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		_ = logger.Init("info", "json")
		logger.Fatal(ctx, err)
	}
	defer logger.Sync()
	metrics.RegisterDefault()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, err)
	}
	defer closeStore()

	var broker api.EventBroker
	var cache store.Cache = store.NewLocalCache()
	if cfg.RedisURL != "" {
		rc, err := store.NewRedisCache(cfg.RedisURL)
		if err != nil {
			logger.Fatal(ctx, err)
		}
		cache = rc
		broker = api.NewRedisBroker(rc.Client())
		logger.Infof(ctx, "using redis for reference cache and events")
	}
	st = store.NewCached(st, cache, cfg.CacheTTL, query.Regions, query.Districts, query.Roles)

	if cfg.SeedFile != "" {
		f, err := seed.Load(cfg.SeedFile)
		if err != nil {
			logger.Fatal(ctx, err)
		}
		if err := seed.Apply(ctx, st, validator.New(), f); err != nil {
			logger.Fatal(ctx, err)
		}
		logger.Info(ctx, "reference data seeded", zap.String("file", cfg.SeedFile),
			zap.Int("regions", len(f.Regions)), zap.Int("roles", len(f.Roles)))
	}

	srvDeps := api.NewServer(cfg, st, broker)
	if len(cfg.WebhookURLs) > 0 {
		worker := webhooks.NewWorker(st, api.WebhookEndpoints(cfg), cfg.WebhookMaxAttempts)
		go worker.Run(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srvDeps.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf(shutdownCtx, "shutdown: %v", err)
		}
	}()

	logger.Info(ctx, "API listening", zap.String("addr", cfg.Addr), zap.String("auth", cfg.AuthMode),
		zap.String("version", buildinfo.Version))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal(ctx, err)
	}
}

// openStore picks Postgres when DATABASE_URL is set and the in-memory store
// otherwise.
func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warnf(ctx, "DATABASE_URL not set, records are kept in memory")
		return store.NewMemory(), func() {}, nil
	}
	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DBMigrate {
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
	}
	return pg, func() { _ = pg.Close() }, nil
}
