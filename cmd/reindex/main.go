package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/adapters/fx"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/adapters/observability"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/app"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/resilience"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/shared"
	mysqlrepo "github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/storage/mysql"
	redisindex "github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/storage/redis"
)

func main() {
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	if !cfg.RedisEnabled {
		log.Fatal().Msg("REDIS_INDEX_ENABLED is false, nothing to rebuild")
	}

	log.Info().
		Int("page_size", cfg.RebuildPageSize).
		Int("scan_rps", cfg.RebuildScanRPS).
		Int("workers", cfg.IndexWorkers).
		Msg("reindex starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")
	repo := mysqlrepo.New(db)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB})
	exec := resilience.NewExecutor(cfg.OpTimeout, 5, 30*time.Second)
	rates, err := fx.New(cfg.FXRatesPath, rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("fx rates load failed")
	}
	store := redisindex.NewStore(rdb, exec, rates, redisindex.Options{
		Workers:       cfg.IndexWorkers,
		Retries:       cfg.OpMaxRetries,
		MaxResults:    cfg.MaxSearchResults,
		ServerScripts: cfg.ServerScripts,
	})

	svc := app.NewService(app.ServiceOptions{
		Repo:     repo,
		Index:    store,
		Searcher: store,
		Maint:    store,
		Quoter:   store,
		Exec:     exec,
		Rebuild:  app.NewRebuilder(repo, store, store, cfg.RebuildPageSize, cfg.RebuildScanRPS, cfg.IndexWorkers),
	})

	rep, err := svc.RebuildIndex(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("rebuild failed")
	}
	log.Info().
		Str("run_id", rep.RunID).
		Int("total", rep.Total).
		Int("processed", rep.Processed).
		Int("failed", rep.Failed).
		Float64("success_rate", rep.SuccessRate).
		Dur("duration", rep.Duration).
		Msg("rebuild completed")

	if rep.Failed > 0 {
		os.Exit(1)
	}
}
