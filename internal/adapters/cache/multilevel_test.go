package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/adapters/cache"
)

type payload struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func newTiers(t *testing.T) (*miniredis.Miniredis, *cache.Local, *cache.Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, cache.NewLocal(64), cache.NewRedis(client)
}

func TestLocal_TTLExpiry(t *testing.T) {
	l := cache.NewLocal(4)
	ctx := context.Background()

	if err := l.Set(ctx, "cache:property:1", payload{Name: "Dar Azal"}, 30*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got payload
	ok, err := l.Get(ctx, "cache:property:1", &got)
	if err != nil || !ok || got.Name != "Dar Azal" {
		t.Fatalf("expected fresh hit, ok=%v err=%v got=%+v", ok, err, got)
	}

	time.Sleep(50 * time.Millisecond)
	ok, err = l.Get(ctx, "cache:property:1", &got)
	if err != nil || ok {
		t.Fatalf("expected expiry miss, ok=%v err=%v", ok, err)
	}
}

func TestLocal_CapacityEviction(t *testing.T) {
	l := cache.NewLocal(2)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		if err := l.Set(ctx, k, payload{Name: k}, time.Minute); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	if l.Len() != 2 {
		t.Fatalf("expected capacity respected, len=%d", l.Len())
	}
}

func TestMultilevel_ReadThroughAndBackfill(t *testing.T) {
	_, local, remote := newTiers(t)
	ml := cache.NewMultilevel(local, remote, time.Minute)
	ctx := context.Background()

	if err := ml.Set(ctx, "cache:property:9", payload{Name: "Sanaa Rooftop", Score: 5}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	// drop the local copy, forcing the next read through Redis
	if err := local.Remove(ctx, "cache:property:9"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	var got payload
	ok, err := ml.Get(ctx, "cache:property:9", &got)
	if err != nil || !ok || got.Score != 5 {
		t.Fatalf("expected redis hit, ok=%v err=%v got=%+v", ok, err, got)
	}
	if remote.Counters().RedisHits != 1 {
		t.Fatalf("expected one redis hit, got %+v", remote.Counters())
	}

	// backfill means the second read is local
	before := local.Counters().LocalHits
	if ok, _ := ml.Get(ctx, "cache:property:9", &got); !ok {
		t.Fatalf("expected backfilled hit")
	}
	if local.Counters().LocalHits != before+1 {
		t.Fatalf("expected local hit after backfill, got %+v", local.Counters())
	}
}

func TestMultilevel_RedisOutageDegradesNotFails(t *testing.T) {
	mr, local, remote := newTiers(t)
	ml := cache.NewMultilevel(local, remote, time.Minute)
	ctx := context.Background()

	mr.Close()

	if err := ml.Set(ctx, "cache:search:abc", payload{Name: "page"}, time.Minute); err != nil {
		t.Fatalf("set should degrade to local, got %v", err)
	}
	var got payload
	ok, err := ml.Get(ctx, "cache:search:abc", &got)
	if err != nil || !ok {
		t.Fatalf("local copy should still serve, ok=%v err=%v", ok, err)
	}

	// a key the local tier never saw: redis error must read as a miss
	ok, err = ml.Get(ctx, "cache:search:other", &got)
	if err != nil || ok {
		t.Fatalf("expected degraded miss, ok=%v err=%v", ok, err)
	}
	if ml.Counters().Degraded == 0 {
		t.Fatalf("expected degraded counter to move: %+v", ml.Counters())
	}
}

func TestMultilevel_RemoveClearsBothTiers(t *testing.T) {
	mr, local, remote := newTiers(t)
	ml := cache.NewMultilevel(local, remote, time.Minute)
	ctx := context.Background()

	if err := ml.Set(ctx, "cache:property:7", payload{Name: "x"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := ml.Remove(ctx, "cache:property:7"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	var got payload
	if ok, _ := ml.Get(ctx, "cache:property:7", &got); ok {
		t.Fatalf("expected miss after remove")
	}
	if mr.Exists("cache:property:7") {
		t.Fatalf("redis copy survived remove")
	}
}
