package domain

import "time"

// Health is the tri-state outcome of the periodic background probe.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// BreakerState mirrors the circuit breaker per operation class.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// OpStats is the rolling telemetry snapshot for one operation class.
type OpStats struct {
	Count       int64   `json:"count"`
	Failures    int64   `json:"failures"`
	SuccessRate float64 `json:"success_rate"`
	AvgMillis   float64 `json:"avg_ms"`
	P95Millis   float64 `json:"p95_ms"`
	P99Millis   float64 `json:"p99_ms"`
}

// CacheCounters exposes per-tier hit/miss counts.
type CacheCounters struct {
	LocalHits   int64 `json:"local_hits"`
	LocalMisses int64 `json:"local_misses"`
	RedisHits   int64 `json:"redis_hits"`
	RedisMisses int64 `json:"redis_misses"`
	Degraded    int64 `json:"degraded_writes"`
}

// Statistics is the aggregate observability snapshot returned by the facade.
type Statistics struct {
	Health         Health                  `json:"health"`
	Operations     map[string]OpStats      `json:"operations"`
	Breakers       map[string]BreakerState `json:"breakers"`
	Cache          CacheCounters           `json:"cache"`
	IndexedCount   int64                   `json:"indexed_properties"`
	CollectedAt    time.Time               `json:"collected_at"`
	StoreReachable bool                    `json:"store_reachable"`
}

// RebuildReport summarizes one full index rebuild run.
type RebuildReport struct {
	RunID       string        `json:"run_id"`
	Total       int           `json:"total"`
	Processed   int           `json:"processed"`
	Failed      int           `json:"failed"`
	SuccessRate float64       `json:"success_rate"`
	Duration    time.Duration `json:"duration"`
}

// CleanupReport summarizes one maintenance sweep.
type CleanupReport struct {
	ExpiredRanges  int64 `json:"expired_ranges"`
	OrphanedKeys   int64 `json:"orphaned_keys"`
	UnexpiredCache int64 `json:"ttl_less_cache_entries"`
}
