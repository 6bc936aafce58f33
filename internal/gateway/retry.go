package gateway

import (
	"context"
	"math/rand"
	"time"
)

// backoff policy constants from spec §4.4: base 1s, cap 30s, 5 attempts.
const (
	retryBase       = time.Second
	retryCap        = 30 * time.Second
	maxRetryAttempt = 5
)

// backoffDelay computes delay = min(base*2^attempt, cap) + uniform(0, base),
// attempt starting at 0 for the first retry.
func backoffDelay(attempt int, rnd *rand.Rand) time.Duration {
	mult := time.Duration(1) << uint(attempt)
	d := retryBase * mult
	if d > retryCap || d <= 0 {
		d = retryCap
	}
	jitter := time.Duration(rnd.Int63n(int64(retryBase)))
	return d + jitter
}

// sleepOrCancel blocks for d unless ctx is cancelled first, returning ctx's
// error in that case.
func sleepOrCancel(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
