package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
)

var (
	_ domain.Cache = (*Local)(nil)
	_ domain.Cache = (*Redis)(nil)
	_ domain.Cache = (*Multilevel)(nil)
)

// Multilevel layers the in-process tier over the distributed one. Reads try
// local, then Redis with a local backfill; a Redis outage degrades reads to
// misses and writes to local-only instead of failing the request.
type Multilevel struct {
	local    *Local
	remote   *Redis
	localTTL time.Duration
}

func NewMultilevel(local *Local, remote *Redis, localTTL time.Duration) *Multilevel {
	if localTTL <= 0 {
		localTTL = time.Minute
	}
	return &Multilevel{local: local, remote: remote, localTTL: localTTL}
}

func (m *Multilevel) Get(ctx context.Context, key string, dst any) (bool, error) {
	if ok, err := m.local.Get(ctx, key, dst); err != nil || ok {
		return ok, err
	}
	if m.remote == nil {
		return false, nil
	}
	ok, err := m.remote.Get(ctx, key, dst)
	if err != nil {
		m.remote.markDegraded()
		log.Warn().Err(err).Str("key", key).Msg("redis cache read failed, serving without it")
		return false, nil
	}
	if ok {
		if err := m.local.Set(ctx, key, dst, m.localTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("local cache backfill failed")
		}
	}
	return ok, nil
}

// Set writes both tiers. The given ttl governs Redis; the local copy lives
// at most the configured local TTL so process memory turns over quickly.
func (m *Multilevel) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	localTTL := m.localTTL
	if ttl > 0 && ttl < localTTL {
		localTTL = ttl
	}
	if err := m.local.Set(ctx, key, v, localTTL); err != nil {
		return err
	}
	if m.remote == nil {
		return nil
	}
	if err := m.remote.Set(ctx, key, v, ttl); err != nil {
		m.remote.markDegraded()
		log.Warn().Err(err).Str("key", key).Msg("redis cache write failed, entry kept locally")
	}
	return nil
}

func (m *Multilevel) Remove(ctx context.Context, key string) error {
	if err := m.local.Remove(ctx, key); err != nil {
		return err
	}
	if m.remote == nil {
		return nil
	}
	if err := m.remote.Remove(ctx, key); err != nil {
		m.remote.markDegraded()
		log.Warn().Err(err).Str("key", key).Msg("redis cache delete failed")
	}
	return nil
}

func (m *Multilevel) Counters() domain.CacheCounters {
	out := m.local.Counters()
	if m.remote != nil {
		r := m.remote.Counters()
		out.RedisHits = r.RedisHits
		out.RedisMisses = r.RedisMisses
		out.Degraded = r.Degraded
	}
	return out
}
