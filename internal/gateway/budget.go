package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/moduleforge/builder/internal/builderrors"
)

// Ledger tracks per-(provider, org) token spend over a rolling window and
// fails a call fast with BUDGET_EXHAUSTED before any provider is invoked,
// per spec §4.4.
type Ledger struct {
	rdb    *redis.Client
	window time.Duration
}

// NewLedger builds a Ledger against an already-configured redis client. The
// caller owns the client's lifecycle (pooling, TLS, auth).
func NewLedger(rdb *redis.Client, window time.Duration) *Ledger {
	if window <= 0 {
		window = time.Hour
	}
	return &Ledger{rdb: rdb, window: window}
}

func ledgerKey(provider, org string) string {
	return fmt.Sprintf("builder:budget:%s:%s", provider, org)
}

// CheckAndReserve atomically adds tokens to the rolling-window counter and
// rejects the call if the result exceeds limit. INCRBY is atomic in Redis;
// the window's TTL is armed only on the key's first write so the window
// doesn't get pushed out by every call.
func (l *Ledger) CheckAndReserve(ctx context.Context, provider, org string, tokens int, limit int) error {
	key := ledgerKey(provider, org)
	total, err := l.rdb.IncrBy(ctx, key, int64(tokens)).Result()
	if err != nil {
		return builderrors.Wrap(builderrors.KindBudgetExhausted, "budget ledger unavailable", err)
	}
	if total == int64(tokens) {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return builderrors.Wrap(builderrors.KindBudgetExhausted, "budget ledger unavailable", err)
		}
	}
	if total > int64(limit) {
		return builderrors.New(builderrors.KindBudgetExhausted,
			fmt.Sprintf("provider %q org %q exceeded budget: %d > %d in window", provider, org, total, limit))
	}
	return nil
}

// Release gives back reserved tokens when a call ultimately didn't consume
// them (e.g. a transient failure before any provider tokens were spent).
func (l *Ledger) Release(ctx context.Context, provider, org string, tokens int) error {
	if tokens <= 0 {
		return nil
	}
	key := ledgerKey(provider, org)
	if err := l.rdb.DecrBy(ctx, key, int64(tokens)).Err(); err != nil {
		return builderrors.Wrap(builderrors.KindBudgetExhausted, "budget ledger release failed", err)
	}
	return nil
}

// Spent reports the current window's usage for a (provider, org) pair.
func (l *Ledger) Spent(ctx context.Context, provider, org string) (int64, error) {
	v, err := l.rdb.Get(ctx, ledgerKey(provider, org)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, builderrors.Wrap(builderrors.KindBudgetExhausted, "budget ledger unavailable", err)
	}
	return v, nil
}
