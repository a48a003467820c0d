package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/adapters/observability"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
)

// Redis is the shared distributed tier. It reuses the index store's client
// so cache traffic and index traffic ride the same pool.
type Redis struct {
	c *redis.Client

	hits     atomic.Int64
	misses   atomic.Int64
	degraded atomic.Int64
}

func NewRedis(c *redis.Client) *Redis {
	return &Redis{c: c}
}

func (r *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	v, err := r.c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		r.misses.Add(1)
		observability.ObserveCache("redis", "miss")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	r.hits.Add(1)
	observability.ObserveCache("redis", "hit")
	return true, json.Unmarshal(v, dst)
}

func (r *Redis) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	observability.ObserveCache("redis", "set")
	return r.c.Set(ctx, key, b, ttl).Err()
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	observability.ObserveCache("redis", "del")
	return r.c.Del(ctx, key).Err()
}

func (r *Redis) Counters() domain.CacheCounters {
	return domain.CacheCounters{
		RedisHits:   r.hits.Load(),
		RedisMisses: r.misses.Load(),
		Degraded:    r.degraded.Load(),
	}
}

// markDegraded is called by the layered tier when this tier errors and the
// request is served without it.
func (r *Redis) markDegraded() {
	r.degraded.Add(1)
	observability.ObserveCache("redis", "degraded")
}
