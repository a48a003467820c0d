package cache

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/adapters/observability"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
)

// DefaultLocalCapacity bounds the in-process tier so a burst of distinct
// search pages cannot grow the heap without limit.
const DefaultLocalCapacity = 1024

type localEntry struct {
	data    []byte
	expires time.Time
}

// Local is the in-process tier: a bounded TTL map holding JSON-encoded
// values. Entries are dropped lazily on read and by eviction on write.
type Local struct {
	mu       sync.RWMutex
	entries  map[string]localEntry
	capacity int

	hits   atomic.Int64
	misses atomic.Int64
}

func NewLocal(capacity int) *Local {
	if capacity <= 0 {
		capacity = DefaultLocalCapacity
	}
	return &Local{entries: make(map[string]localEntry), capacity: capacity}
}

func (l *Local) Get(_ context.Context, key string, dst any) (bool, error) {
	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()
	if ok && time.Now().After(e.expires) {
		l.mu.Lock()
		delete(l.entries, key)
		l.mu.Unlock()
		ok = false
	}
	if !ok {
		l.misses.Add(1)
		observability.ObserveCache("local", "miss")
		return false, nil
	}
	l.hits.Add(1)
	observability.ObserveCache("local", "hit")
	return true, json.Unmarshal(e.data, dst)
}

func (l *Local) Set(_ context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.entries[key]; !exists && len(l.entries) >= l.capacity {
		l.evictLocked(now)
	}
	l.entries[key] = localEntry{data: b, expires: now.Add(ttl)}
	observability.ObserveCache("local", "set")
	return nil
}

// evictLocked drops every expired entry, and if none were expired the entry
// closest to expiry. Called with the write lock held.
func (l *Local) evictLocked(now time.Time) {
	var victim string
	var victimExp time.Time
	dropped := false
	for k, e := range l.entries {
		if now.After(e.expires) {
			delete(l.entries, k)
			dropped = true
			continue
		}
		if victim == "" || e.expires.Before(victimExp) {
			victim, victimExp = k, e.expires
		}
	}
	if !dropped && victim != "" {
		delete(l.entries, victim)
	}
}

func (l *Local) Remove(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
	observability.ObserveCache("local", "del")
	return nil
}

func (l *Local) Counters() domain.CacheCounters {
	return domain.CacheCounters{
		LocalHits:   l.hits.Load(),
		LocalMisses: l.misses.Load(),
	}
}

// Len is used by tests and the maintenance snapshot.
func (l *Local) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
