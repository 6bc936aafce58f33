package gateway

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/moduleforge/builder/internal/builderrors"
)

// BreakerBank holds one circuit breaker per provider name so a provider
// that's down doesn't get hammered by every job's retry loop while other
// providers in the chain stay unaffected.
type BreakerBank struct {
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewBreakerBank() *BreakerBank {
	return &BreakerBank{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (b *BreakerBank) forProvider(name string) *gobreaker.CircuitBreaker {
	if cb, ok := b.breakers[name]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	b.breakers[name] = cb
	return cb
}

// Call runs fn through the named provider's breaker. An open breaker is
// surfaced as a transient provider failure so the Gateway's existing
// fallback-advancement logic handles it without a new code path.
func (b *BreakerBank) Call(name string, fn func() (ProviderResult, error)) (ProviderResult, error) {
	cb := b.forProvider(name)
	res, err := cb.Execute(func() (interface{}, error) {
		r, err := fn()
		if err != nil {
			return r, err
		}
		if r.ErrorClass == ClassTransient || r.ErrorClass == ClassFatal {
			return r, builderrors.New(builderrors.KindProviderTransient, "provider reported error class "+string(r.ErrorClass))
		}
		return r, nil
	})
	if pr, ok := res.(ProviderResult); ok {
		return pr, err
	}
	if err != nil {
		return ProviderResult{ErrorClass: ClassTransient, ErrorMessage: err.Error()}, err
	}
	return ProviderResult{}, nil
}
