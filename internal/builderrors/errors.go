// Package builderrors defines the single typed error taxonomy used across
// every Builder component, per spec §7. Components return *Error so callers
// can exhaustively switch on Kind instead of matching strings.
package builderrors

import "fmt"

// Kind is the closed set of error/failure classifications from spec §7.
type Kind string

const (
	KindPolicyViolation    Kind = "POLICY_VIOLATION"
	KindContractViolation  Kind = "CONTRACT_VIOLATION"
	KindTestFailure        Kind = "TEST_FAILURE"
	KindTimeout            Kind = "TIMEOUT"
	KindResourceExhausted  Kind = "RESOURCE_EXHAUSTED"
	KindProviderTransient  Kind = "PROVIDER_TRANSIENT"
	KindProviderAuth       Kind = "PROVIDER_AUTH"
	KindBudgetExhausted    Kind = "BUDGET_EXHAUSTED"
	KindSchemaInvalid      Kind = "SCHEMA_INVALID"
	KindThrash             Kind = "THRASH"
	KindCancelled          Kind = "CANCELLED"
	KindInvalidModuleID    Kind = "INVALID_MODULE_ID"
	KindQuotaExceeded      Kind = "QUOTA_EXCEEDED"
	KindPolicyProfileUnk   Kind = "POLICY_PROFILE_UNKNOWN"
	KindQueueFull          Kind = "QUEUE_FULL"
	KindProviderFatal      Kind = "PROVIDER_FATAL"
	KindInternal           Kind = "INTERNAL"
	KindNotFound           Kind = "NOT_FOUND"
)

// Error is the single error type every component returns.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is enables errors.Is(err, builderrors.New(KindX, "")) to compare by Kind
// alone; the sentinel's Message is never compared.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Terminal reports whether this error kind always ends a BuildJob without
// entering REPAIR, per spec §4.6 failure classification.
func (e *Error) Terminal() bool {
	switch e.Kind {
	case KindPolicyViolation, KindBudgetExhausted, KindProviderAuth, KindCancelled,
		KindInvalidModuleID, KindQuotaExceeded, KindPolicyProfileUnk, KindQueueFull,
		KindProviderFatal, KindInternal, KindNotFound:
		return true
	default:
		return false
	}
}

// Retryable reports whether this error kind should drive a REPAIR cycle.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindContractViolation, KindTestFailure, KindTimeout, KindSchemaInvalid:
		return true
	case KindResourceExhausted:
		// reported retryable on every call; no one-shot limit is tracked.
		return true
	default:
		return false
	}
}
