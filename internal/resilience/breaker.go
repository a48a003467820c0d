package resilience

import (
	"sync"
	"time"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
)

const (
	// DefaultFailureThreshold is the number of consecutive failures that
	// opens a breaker.
	DefaultFailureThreshold = 3
	// DefaultResetTimeout is how long an open breaker fails fast before
	// allowing a single half-open trial.
	DefaultResetTimeout = 30 * time.Second
)

// Breaker is a per-operation-class circuit breaker. Open breakers fail fast;
// after the reset timeout exactly one trial call runs half-open, and its
// outcome closes or reopens the circuit.
type Breaker struct {
	mu            sync.Mutex
	threshold     int
	resetTimeout  time.Duration
	state         domain.BreakerState
	consecutive   int
	openedAt      time.Time
	trialInFlight bool
}

func NewBreaker(threshold int, resetTimeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = DefaultResetTimeout
	}
	return &Breaker{threshold: threshold, resetTimeout: resetTimeout, state: domain.BreakerClosed}
}

// Allow reports whether a call may proceed. While half-open only the single
// trial call passes; everyone else keeps failing fast.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case domain.BreakerClosed:
		return nil
	case domain.BreakerOpen:
		if time.Since(b.openedAt) >= b.resetTimeout {
			b.state = domain.BreakerHalfOpen
			b.trialInFlight = true
			return nil
		}
		return domain.ErrCircuitOpen
	default: // half-open
		if b.trialInFlight {
			return domain.ErrCircuitOpen
		}
		b.trialInFlight = true
		return nil
	}
}

func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
	b.state = domain.BreakerClosed
	b.trialInFlight = false
}

func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive++
	wasTrial := b.state == domain.BreakerHalfOpen
	b.trialInFlight = false
	if wasTrial || b.consecutive >= b.threshold {
		b.state = domain.BreakerOpen
		b.openedAt = time.Now()
	}
}

func (b *Breaker) State() domain.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures is exposed for failure logging.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutive
}

// stateNum maps the breaker position onto the exported gauge scale.
func (b *Breaker) stateNum() int {
	switch b.State() {
	case domain.BreakerOpen:
		return 2
	case domain.BreakerHalfOpen:
		return 1
	default:
		return 0
	}
}
