package gateway

import "github.com/moduleforge/builder/internal/builderrors"

// Router holds the deterministic, per-purpose provider chains configured at
// process start, per spec §4.4. Chains never change shape mid-job; fallback
// advancement walks the same fixed ordering every attempt.
type Router struct {
	chains map[Purpose]ProviderChain
}

func NewRouter(chains ...ProviderChain) *Router {
	r := &Router{chains: make(map[Purpose]ProviderChain, len(chains))}
	for _, c := range chains {
		r.chains[c.Purpose] = c
	}
	return r
}

// ChainFor returns the ordered provider list for a purpose, or a
// PROVIDER_FATAL error if no chain was configured for it.
func (r *Router) ChainFor(p Purpose) ([]Provider, error) {
	c, ok := r.chains[p]
	if !ok || len(c.Providers) == 0 {
		return nil, builderrors.New(builderrors.KindProviderFatal, "no provider chain configured for purpose "+string(p))
	}
	return c.Providers, nil
}
