package resilience

import (
	"context"
	crand "crypto/rand"
	"errors"
	"time"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
)

// Retry runs fn up to retries+1 times with exponential backoff between
// attempts. Context cancellation and domain sentinels (not found, unit
// mismatch) stop retrying immediately since another attempt cannot change
// the answer.
func Retry(ctx context.Context, retries int, fn func(context.Context) error) error {
	var lastErr error
	for i := 0; ; i++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrUnitMismatch) {
			return err
		}
		lastErr = err
		if i >= retries {
			return lastErr
		}
		if !sleepCtx(ctx, backoff(i)) {
			return ctx.Err()
		}
	}
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoff returns an exponential backoff delay with concurrency-safe jitter.
// i = retry attempt (0,1,2,...). Base doubles each attempt (50ms, 100ms, 200ms...),
// with up to +50% random jitter to avoid thundering herds.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 50 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0                  // 0..1
	j := time.Duration(0.5 * f * float64(base)) // up to +50%
	return base + j
}
