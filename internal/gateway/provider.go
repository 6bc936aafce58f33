package gateway

import "context"

// ProviderErrorClass classifies a provider call outcome into the subset of the
// Gateway's error taxonomy a provider call can itself produce, per spec
// §4.4: transient, auth, fatal, or none.
type ProviderErrorClass string

const (
	ClassNone      ProviderErrorClass = ""
	ClassTransient ProviderErrorClass = "transient" // 429/5xx/reset/timeout
	ClassAuth      ProviderErrorClass = "auth"      // 401/403
	ClassFatal     ProviderErrorClass = "fatal"     // anything else unrecoverable
)

// ProviderResult is one provider call's raw outcome before schema
// validation. RawJSON is the provider's completion text, expected to
// contain a GenerateResponse-shaped JSON document; a provider that cannot
// produce parseable JSON still returns RawJSON (possibly garbage) rather
// than erroring, so the Gateway's schema layer — not the provider — is the
// single place that classifies SCHEMA_INVALID (spec §9(c)).
type ProviderResult struct {
	RawJSON      string
	TokensUsed   int
	CostCents    int64
	ErrorClass   ProviderErrorClass
	ErrorMessage string
}

// Provider is one LLM backend in a purpose's fallback chain.
type Provider interface {
	// Name identifies the provider for routing, logging, and the budget
	// ledger's (provider, org) key.
	Name() string
	// Complete issues one generation call. It must return promptly with
	// ClassNone/err=nil on success, and must honor ctx cancellation.
	Complete(ctx context.Context, req GenerateRequest) (ProviderResult, error)
}

// ProviderChain is the deterministic, per-purpose ordered list of provider
// configurations from spec §4.4: primary, then deterministic fallbacks.
// The order is fixed at construction time so that repeated retries across
// a job produce reproducible behavior and thrash fingerprints stay stable.
type ProviderChain struct {
	Purpose   Purpose
	Providers []Provider
}
