package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/adapters/cache"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/adapters/fx"
	server "github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/adapters/http_server"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/adapters/observability"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/app"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/resilience"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/shared"
	mysqlrepo "github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/storage/mysql"
	redisindex "github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/storage/redis"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")
	repo := mysqlrepo.New(db)

	// index store, caches and FX mirror share one connection pool
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB})
	exec := resilience.NewExecutor(cfg.OpTimeout, 5, 30*time.Second)

	rates, err := fx.New(cfg.FXRatesPath, rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("fx rates load failed")
	}
	if cfg.FXRatesPath != "" {
		go func() {
			if err := rates.Watch(ctx); err != nil {
				log.Warn().Err(err).Msg("fx rates watcher stopped")
			}
		}()
	}

	store := redisindex.NewStore(rdb, exec, rates, redisindex.Options{
		Workers:       cfg.IndexWorkers,
		Retries:       cfg.OpMaxRetries,
		MaxResults:    cfg.MaxSearchResults,
		ServerScripts: cfg.ServerScripts,
	})

	var remote *cache.Redis
	if cfg.RedisEnabled {
		remote = cache.NewRedis(rdb)
	}
	tiers := cache.NewMultilevel(cache.NewLocal(0), remote, cfg.LocalCacheTTL)

	svc := app.NewService(app.ServiceOptions{
		Repo:     repo,
		Index:    store,
		Searcher: store,
		Maint:    store,
		Quoter:   store,
		Cache:    tiers,
		Exec:     exec,
		Health:   resilience.NewHealthMonitor(cfg.HealthInterval, store.Ping, exec.AnyOpen),
		Rebuild:  app.NewRebuilder(repo, store, store, cfg.RebuildPageSize, cfg.RebuildScanRPS, cfg.IndexWorkers),

		SearchTTL:         cfg.RedisCacheTTL,
		ResetStatsOnStart: cfg.ResetStatsOnStart,
		Disabled:          !cfg.RedisEnabled,
	})
	defer svc.Close()

	if cfg.MaintenanceEnabled && cfg.RedisEnabled {
		go maintenanceLoop(ctx, svc, cfg.MaintenanceInterval)
	}

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Svc: svc})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("searchd listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
}

// maintenanceLoop runs the cleanup sweep on a fixed schedule until ctx ends.
func maintenanceLoop(ctx context.Context, svc *app.Service, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rep, err := svc.OptimizeStore(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("scheduled maintenance failed")
				continue
			}
			log.Info().
				Int64("expired_ranges", rep.ExpiredRanges).
				Int64("orphaned_keys", rep.OrphanedKeys).
				Msg("scheduled maintenance done")
		}
	}
}
