package gateway

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/moduleforge/builder/internal/builderrors"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewLedger(rdb, 0)
}

func TestLedgerAllowsWithinBudget(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	if err := l.CheckAndReserve(ctx, "anthropic", "acme", 100, 1000); err != nil {
		t.Fatalf("expected reserve to succeed, got %v", err)
	}
	spent, err := l.Spent(ctx, "anthropic", "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spent != 100 {
		t.Fatalf("expected spent=100, got %d", spent)
	}
}

func TestLedgerRejectsOverBudget(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	if err := l.CheckAndReserve(ctx, "anthropic", "acme", 900, 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := l.CheckAndReserve(ctx, "anthropic", "acme", 200, 1000)
	if err == nil {
		t.Fatal("expected budget exhaustion error")
	}
	be, ok := err.(*builderrors.Error)
	if !ok || be.Kind != builderrors.KindBudgetExhausted {
		t.Fatalf("expected BUDGET_EXHAUSTED, got %v", err)
	}
}

func TestLedgerIsolatesProviderAndOrgKeys(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	if err := l.CheckAndReserve(ctx, "anthropic", "acme", 900, 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.CheckAndReserve(ctx, "bedrock", "acme", 900, 1000); err != nil {
		t.Fatalf("different provider should have independent budget: %v", err)
	}
	if err := l.CheckAndReserve(ctx, "anthropic", "other-org", 900, 1000); err != nil {
		t.Fatalf("different org should have independent budget: %v", err)
	}
}

func TestLedgerReleaseGivesBackTokens(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	if err := l.CheckAndReserve(ctx, "anthropic", "acme", 500, 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Release(ctx, "anthropic", "acme", 500); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}
	spent, err := l.Spent(ctx, "anthropic", "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spent != 0 {
		t.Fatalf("expected spent=0 after release, got %d", spent)
	}
}
