package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/adapters/observability"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
)

// Executor wraps every store round trip with a per-operation-class circuit
// breaker, a call timeout, and latency accounting. One executor is shared by
// all adapters that talk to the backing store.
type Executor struct {
	mu        sync.Mutex
	breakers  map[string]*Breaker
	stats     *StatsRegistry
	timeout   time.Duration
	threshold int
	reset     time.Duration
}

func NewExecutor(timeout time.Duration, threshold int, reset time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Executor{
		breakers:  make(map[string]*Breaker),
		stats:     NewStatsRegistry(),
		timeout:   timeout,
		threshold: threshold,
		reset:     reset,
	}
}

func (e *Executor) breaker(op string) *Breaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.breakers[op]
	if !ok {
		b = NewBreaker(e.threshold, e.reset)
		e.breakers[op] = b
	}
	return b
}

// Do runs fn under the operation's breaker with the configured timeout.
// Sentinel outcomes (not found, unit mismatch) mean the store answered, so
// they close rather than trip the breaker.
func (e *Executor) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	b := e.breaker(op)
	if err := b.Allow(); err != nil {
		observability.ObserveRejected(op)
		return fmt.Errorf("%s: %w", op, err)
	}

	opCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	err := fn(opCtx)
	dur := time.Since(start)

	if err != nil && !isBusinessOutcome(err) {
		e.stats.Record(op, dur, true)
		observability.ObserveOperation(op, err, dur)
		b.OnFailure()
		observability.SetBreakerState(op, b.stateNum())
		log.Warn().
			Str("operation", op).
			Dur("duration", dur).
			Int("consecutive_failures", b.ConsecutiveFailures()).
			Err(err).
			Msg("store operation failed")
		return err
	}

	e.stats.Record(op, dur, false)
	observability.ObserveOperation(op, nil, dur)
	b.OnSuccess()
	observability.SetBreakerState(op, b.stateNum())
	return err
}

// isBusinessOutcome reports whether the error is a definitive answer from
// the store rather than an infrastructure failure.
func isBusinessOutcome(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrUnitMismatch)
}

// Stats exposes the shared registry for snapshots and resets.
func (e *Executor) Stats() *StatsRegistry {
	return e.stats
}

// BreakerStates snapshots the current position of every known breaker.
func (e *Executor) BreakerStates() map[string]domain.BreakerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]domain.BreakerState, len(e.breakers))
	for op, b := range e.breakers {
		out[op] = b.State()
	}
	return out
}

// AnyOpen reports whether at least one breaker is not closed, which folds
// into the health probe as a degraded signal.
func (e *Executor) AnyOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, b := range e.breakers {
		if b.State() != domain.BreakerClosed {
			return true
		}
	}
	return false
}
