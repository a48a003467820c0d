package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string

	MySQLDSN string

	RedisEnabled bool
	RedisAddr    string
	RedisDB      int
	RedisPass    string

	// Per-call ceiling for every trip to the backing store; a timeout counts
	// as a failure for breakers and statistics.
	OpTimeout    time.Duration
	OpMaxRetries int

	LocalCacheTTL time.Duration
	RedisCacheTTL time.Duration

	MaxSearchResults int

	// Width of the index-mutation gate. Same-id serialization stays with the
	// caller.
	IndexWorkers int

	RebuildPageSize int
	RebuildScanRPS  int

	HealthInterval      time.Duration
	MaintenanceEnabled  bool
	MaintenanceInterval time.Duration
	ResetStatsOnStart   bool
	ServerScripts       bool

	FXRatesPath string
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	abool := func(k string, def bool) bool {
		if v := os.Getenv(k); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),

		MySQLDSN: env("MYSQL_DSN", "root:root@tcp(localhost:3306)/bookn?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),

		RedisEnabled: abool("REDIS_INDEX_ENABLED", true),
		RedisAddr:    env("REDIS_ADDR", "localhost:6379"),
		RedisPass:    env("REDIS_PASSWORD", ""),
		RedisDB:      atoi("REDIS_DB", 0),

		OpTimeout:    time.Duration(atoi("OP_TIMEOUT_MS", 3000)) * time.Millisecond,
		OpMaxRetries: atoi("OP_MAX_RETRIES", 2),

		LocalCacheTTL: time.Duration(atoi("CACHE_LOCAL_TTL_SECONDS", 60)) * time.Second,
		RedisCacheTTL: time.Duration(atoi("CACHE_REDIS_TTL_SECONDS", 300)) * time.Second,

		MaxSearchResults: atoi("SEARCH_MAX_RESULTS", 1000),

		IndexWorkers: atoi("INDEX_WORKERS", 5),

		RebuildPageSize: atoi("REBUILD_PAGE_SIZE", 100),
		RebuildScanRPS:  atoi("REBUILD_SCAN_RPS", 10),

		HealthInterval:      time.Duration(atoi("HEALTH_INTERVAL_SECONDS", 300)) * time.Second,
		MaintenanceEnabled:  abool("MAINTENANCE_ENABLED", true),
		MaintenanceInterval: time.Duration(atoi("MAINTENANCE_INTERVAL_MINUTES", 1440)) * time.Minute,
		ResetStatsOnStart:   abool("RESET_STATS_ON_START", false),
		ServerScripts:       abool("SERVER_SCRIPTS_ENABLED", true),

		FXRatesPath: env("FX_RATES_PATH", ""),
	}
	if !c.RedisEnabled {
		log.Warn().Msg("REDIS_INDEX_ENABLED is false; search index is off")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
