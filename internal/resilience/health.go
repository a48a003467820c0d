package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
)

const probeTimeout = 5 * time.Second

// HealthMonitor owns a background loop that probes the backing store on a
// fixed interval and folds breaker positions into a tri-state verdict.
type HealthMonitor struct {
	interval time.Duration
	probe    func(context.Context) error
	degraded func() bool

	status atomic.Value // domain.Health

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewHealthMonitor builds a monitor around probe (a cheap liveness round
// trip) and degraded (typically Executor.AnyOpen).
func NewHealthMonitor(interval time.Duration, probe func(context.Context) error, degraded func() bool) *HealthMonitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	m := &HealthMonitor{interval: interval, probe: probe, degraded: degraded}
	m.status.Store(domain.HealthHealthy)
	return m
}

// Start launches the loop. The first probe runs immediately so /healthz is
// meaningful right after boot. Safe to call once; Stop tears it down.
func (m *HealthMonitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		ctx, m.cancel = context.WithCancel(ctx)
		m.done = make(chan struct{})
		go m.loop(ctx)
	})
}

func (m *HealthMonitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *HealthMonitor) Status() domain.Health {
	return m.status.Load().(domain.Health)
}

func (m *HealthMonitor) loop(ctx context.Context) {
	defer close(m.done)
	m.check(ctx)
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.check(ctx)
		}
	}
}

// check never lets a panicking probe kill the loop.
func (m *HealthMonitor) check(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("health probe panicked")
			m.transition(domain.HealthUnhealthy)
		}
	}()

	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	err := m.probe(pctx)
	cancel()
	if ctx.Err() != nil {
		// shutting down, keep the last verdict
		return
	}

	switch {
	case err != nil:
		m.transition(domain.HealthUnhealthy)
	case m.degraded != nil && m.degraded():
		m.transition(domain.HealthDegraded)
	default:
		m.transition(domain.HealthHealthy)
	}
}

func (m *HealthMonitor) transition(next domain.Health) {
	prev := m.status.Swap(next).(domain.Health)
	if prev != next {
		log.Info().
			Str("from", string(prev)).
			Str("to", string(next)).
			Msg("health status changed")
	}
}
