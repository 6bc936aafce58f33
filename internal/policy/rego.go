package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// importPolicyModule is the Rego source backing the prefix/exact-match
// decision for imports. Keeping the decision logic as data, evaluated by
// OPA, means a policy change is a module edit, not a Go code change,
// matching the "defined in exactly one place" invariant for the parts of
// the policy that are naturally rule-shaped (set membership and prefix
// matching) rather than numeric caps.
const importPolicyModule = `
package builder.importpolicy

default allow = false

allow {
	not forbidden
	allowed_baseline
}

allow {
	not forbidden
	allowed_extra
}

forbidden {
	some f
	f := input.forbidden[_]
	startswith(input.name, concat(".", [f, ""]))
}

forbidden {
	input.name == input.forbidden[_]
}

allowed_baseline {
	input.name == input.baseline[_]
}

allowed_baseline {
	some b
	b := input.baseline[_]
	startswith(input.name, concat(".", [b, ""]))
}

allowed_extra {
	input.name == input.extra[_]
}

allowed_extra {
	some e
	e := input.extra[_]
	startswith(input.name, concat(".", [e, ""]))
}
`

// RegoEvaluator evaluates the import-policy Rego module. It is prepared
// once at process start and reused for every analyzer invocation — a fresh
// rego.New per call would recompile the module on every file, which the
// Static Analyzer's hot path cannot afford.
type RegoEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewRegoEvaluator compiles importPolicyModule once.
func NewRegoEvaluator(ctx context.Context) (*RegoEvaluator, error) {
	query, err := rego.New(
		rego.Query("data.builder.importpolicy.allow"),
		rego.Module("importpolicy.rego", importPolicyModule),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare import policy: %w", err)
	}
	return &RegoEvaluator{query: query}, nil
}

// AllowImport evaluates whether name is permitted under profile via OPA,
// mirroring IsAllowedImport's Go-native decision for cross-checking and for
// callers that want a policy-as-data evaluation path.
func (r *RegoEvaluator) AllowImport(ctx context.Context, name string, profile Profile) (bool, error) {
	input := map[string]any{
		"name":      name,
		"forbidden": ForbiddenImports,
		"baseline":  baselineAllowedImports,
		"extra":     profile.AllowedImportPrefixes,
	}
	results, err := r.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval import policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	allowed, _ := results[0].Expressions[0].Value.(bool)
	return allowed, nil
}
