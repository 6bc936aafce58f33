// Package gateway implements the Builder's LLM Gateway: purpose-routed
// provider chains with budget enforcement, circuit breaking, bounded
// retry with jitter, and response-contract validation, per spec §4.4.
package gateway

import (
	"context"
	"math/rand"

	"github.com/moduleforge/builder/internal/builderrors"
)

// Gateway is the single entry point every Builder component uses to reach
// an LLM, regardless of stage or purpose.
type Gateway struct {
	router   *Router
	ledger   *Ledger
	breakers *BreakerBank
	org      string
	tokenCap int
	rnd      *rand.Rand
}

// Option configures a Gateway at construction time.
type Option func(*Gateway)

func WithLedger(l *Ledger, org string, tokenCap int) Option {
	return func(g *Gateway) {
		g.ledger = l
		g.org = org
		g.tokenCap = tokenCap
	}
}

func WithRandSource(rnd *rand.Rand) Option {
	return func(g *Gateway) { g.rnd = rnd }
}

func New(router *Router, opts ...Option) *Gateway {
	g := &Gateway{
		router:   router,
		breakers: NewBreakerBank(),
		rnd:      rand.New(rand.NewSource(1)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate runs the full budget -> breaker -> retry -> fallback -> schema
// pipeline for one request and returns a validated GenerateResponse, or a
// *builderrors.Error classified per spec §4.4 (BUDGET_EXHAUSTED,
// SCHEMA_INVALID, PROVIDER_AUTH, PROVIDER_TRANSIENT, PROVIDER_FATAL,
// CANCELLED).
func (g *Gateway) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	if err := structValidate(req); err != nil {
		return GenerateResponse{}, err
	}
	result, err := g.completeRaw(ctx, req)
	if err != nil {
		return GenerateResponse{}, err
	}
	return ParseResponse(result.RawJSON, req.ModuleID)
}

// completeRaw runs the provider-selection and retry pipeline without schema
// validation, so both Generate and the critic lane can share it.
func (g *Gateway) completeRaw(ctx context.Context, req GenerateRequest) (ProviderResult, error) {
	chain, err := g.router.ChainFor(req.Purpose)
	if err != nil {
		return ProviderResult{}, err
	}

	var lastErr error
	for _, provider := range chain {
		result, err := g.callWithRetry(ctx, provider, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		var be *builderrors.Error
		if asErr, ok := err.(*builderrors.Error); ok {
			be = asErr
		}
		if be != nil && be.Kind == builderrors.KindCancelled {
			return ProviderResult{}, err
		}
		if be != nil && be.Kind == builderrors.KindProviderAuth {
			// Auth failures advance the fallback chain without retrying
			// the same provider, per spec §8 scenario 6.
			continue
		}
		// Transient errors exhausted their retries inside callWithRetry
		// and fatal errors are not retried; advance to the next provider.
	}
	if lastErr != nil {
		return ProviderResult{}, lastErr
	}
	return ProviderResult{}, builderrors.New(builderrors.KindProviderFatal, "no providers available")
}

// callWithRetry drives one provider through the budget check and bounded
// retry loop. Auth errors never retry; transient errors retry with
// exponential backoff and jitter up to maxRetryAttempt.
func (g *Gateway) callWithRetry(ctx context.Context, provider Provider, req GenerateRequest) (ProviderResult, error) {
	for attempt := 0; attempt < maxRetryAttempt; attempt++ {
		if err := ctx.Err(); err != nil {
			return ProviderResult{}, builderrors.Wrap(builderrors.KindCancelled, "context cancelled", err)
		}
		if g.ledger != nil {
			hint := req.BudgetHintTokens
			if hint <= 0 {
				hint = 1
			}
			if err := g.ledger.CheckAndReserve(ctx, provider.Name(), g.org, hint, g.tokenCap); err != nil {
				return ProviderResult{}, err
			}
		}

		result, err := g.breakers.Call(provider.Name(), func() (ProviderResult, error) {
			return provider.Complete(ctx, req)
		})
		if err == nil && result.ErrorClass == ClassNone {
			return result, nil
		}

		switch result.ErrorClass {
		case ClassAuth:
			return result, builderrors.New(builderrors.KindProviderAuth, "provider "+provider.Name()+" rejected credentials")
		case ClassTransient:
			if attempt == maxRetryAttempt-1 {
				return result, builderrors.New(builderrors.KindProviderTransient, "provider "+provider.Name()+" exhausted retries")
			}
			if sleepErr := sleepOrCancel(ctx, backoffDelay(attempt, g.rnd)); sleepErr != nil {
				return ProviderResult{}, builderrors.Wrap(builderrors.KindCancelled, "context cancelled during backoff", sleepErr)
			}
			continue
		default:
			return result, builderrors.New(builderrors.KindProviderFatal, "provider "+provider.Name()+" failed: "+result.ErrorMessage)
		}
	}
	return ProviderResult{}, builderrors.New(builderrors.KindProviderTransient, "provider "+provider.Name()+" exhausted retries")
}
