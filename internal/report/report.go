// Package report defines the ValidationReport union type shared by the
// Static Analyzer, Sandbox Runner, and Build Orchestrator: a closed finding
// taxonomy, severities, and the merge/sort/fingerprint operations spec §3
// and §4.6 require.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Severity is the closed severity set for a Finding.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
	SeverityFatal Severity = "fatal"
)

// Kind is the closed finding taxonomy from spec §3.
type Kind string

const (
	KindImportPolicy           Kind = "IMPORT_POLICY"
	KindSyntax                 Kind = "SYNTAX"
	KindContractMissingMethod  Kind = "CONTRACT_MISSING_METHOD"
	KindContractBadDecorator   Kind = "CONTRACT_BAD_DECORATOR"
	KindTestFailure            Kind = "TEST_FAILURE"
	KindAuth                   Kind = "AUTH"
	KindRateLimit              Kind = "RATE_LIMIT"
	KindSchemaMismatch         Kind = "SCHEMA_MISMATCH"
	KindRuntime                Kind = "RUNTIME"
	KindTimeout                Kind = "TIMEOUT"
	KindPolicyViolation        Kind = "POLICY_VIOLATION"
	KindResourceExhausted      Kind = "RESOURCE_EXHAUSTED"
)

// Location is an optional source position for a Finding.
type Location struct {
	Path   string `json:"path,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// FixHint is structured, per-finding guidance injected into the next
// repair prompt.
type FixHint struct {
	Signature   string `json:"signature"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion,omitempty"`
}

// Finding is one entry in a ValidationReport.
type Finding struct {
	Severity Severity  `json:"severity"`
	Kind     Kind      `json:"kind"`
	Message  string    `json:"message"`
	Location *Location `json:"location,omitempty"`
	FixHint  *FixHint  `json:"fix_hint,omitempty"`
	// TestID identifies the failing test case when Kind == KindTestFailure.
	TestID string `json:"test_id,omitempty"`
}

// Report is the merged union of static and dynamic findings for one
// attempt.
type Report struct {
	Findings []Finding `json:"findings"`
	// CapabilitySuiteResults maps a declared capability (spec §3's closed
	// set) to whether its required hard-gate suite passed.
	CapabilitySuiteResults map[string]bool `json:"capability_suite_results,omitempty"`
}

// Sort stably sorts findings by (path, line, kind), per spec §4.2's
// tie-break rule. Determinism of this ordering is a tested property.
func (r *Report) Sort() {
	sort.SliceStable(r.Findings, func(i, j int) bool {
		a, b := r.Findings[i], r.Findings[j]
		pa, pb := locPath(a.Location), locPath(b.Location)
		if pa != pb {
			return pa < pb
		}
		la, lb := locLine(a.Location), locLine(b.Location)
		if la != lb {
			return la < lb
		}
		return a.Kind < b.Kind
	})
}

func locPath(l *Location) string {
	if l == nil {
		return ""
	}
	return l.Path
}

func locLine(l *Location) int {
	if l == nil {
		return 0
	}
	return l.Line
}

// HasErrorOrFatal reports whether any finding is error or fatal severity.
func (r *Report) HasErrorOrFatal() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError || f.Severity == SeverityFatal {
			return true
		}
	}
	return false
}

// HasTerminalFinding reports whether any finding's Kind always ends the job
// without a repair attempt, per spec §4.6's TERMINAL classification.
func (r *Report) HasTerminalFinding() bool {
	for _, f := range r.Findings {
		if f.Kind == KindPolicyViolation {
			return true
		}
	}
	return false
}

// Validated reports whether this report qualifies for attestation: no
// error/fatal findings and every suite result recorded in
// CapabilitySuiteResults passed, not just a quorum (Open Question (a) per
// DESIGN.md). A declared capability with no recorded result is not
// detected here.
func (r *Report) Validated() bool {
	if r.HasErrorOrFatal() {
		return false
	}
	for _, passed := range r.CapabilitySuiteResults {
		if !passed {
			return false
		}
	}
	return true
}

// Merge combines static findings (first) with dynamic findings (second),
// de-duplicating by (kind, path, location, message) per spec §4.6 VALIDATE.
func Merge(static, dynamic Report) Report {
	merged := Report{CapabilitySuiteResults: map[string]bool{}}
	seen := map[string]bool{}
	add := func(f Finding) {
		key := dedupKey(f)
		if seen[key] {
			return
		}
		seen[key] = true
		merged.Findings = append(merged.Findings, f)
	}
	for _, f := range static.Findings {
		add(f)
	}
	for _, f := range dynamic.Findings {
		add(f)
	}
	for k, v := range static.CapabilitySuiteResults {
		merged.CapabilitySuiteResults[k] = v
	}
	for k, v := range dynamic.CapabilitySuiteResults {
		merged.CapabilitySuiteResults[k] = v
	}
	merged.Sort()
	return merged
}

func dedupKey(f Finding) string {
	var b strings.Builder
	b.WriteString(string(f.Kind))
	b.WriteByte('|')
	b.WriteString(locPath(f.Location))
	b.WriteByte('|')
	if f.Location != nil {
		b.WriteString(itoa(f.Location.Line))
		b.WriteByte(':')
		b.WriteString(itoa(f.Location.Column))
	}
	b.WriteByte('|')
	b.WriteString(f.Message)
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Fingerprint is a stable digest over (sorted error kinds, failing test
// ids, sorted top fix-hint signatures), per spec §3's FailureFingerprint.
// Two attempts with an equal Fingerprint are non-progressing.
func (r *Report) Fingerprint() string {
	kinds := map[Kind]bool{}
	tests := map[string]bool{}
	hints := map[string]bool{}
	for _, f := range r.Findings {
		if f.Severity == SeverityError || f.Severity == SeverityFatal {
			kinds[f.Kind] = true
		}
		if f.TestID != "" {
			tests[f.TestID] = true
		}
		if f.FixHint != nil {
			hints[f.FixHint.Signature] = true
		}
	}
	h := sha256.New()
	writeSortedSet(h, kinds)
	writeSortedStrings(h, tests)
	writeSortedStrings(h, hints)
	return hex.EncodeToString(h.Sum(nil))
}

func writeSortedSet(h interface{ Write([]byte) (int, error) }, set map[Kind]bool) {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	h.Write([]byte{0xff})
}

// repairPriority orders RETRYABLE finding kinds for prompt shaping, per
// spec §4.6: SCHEMA_MISMATCH > CONTRACT_MISSING_METHOD >
// CONTRACT_BAD_DECORATOR > IMPORT_POLICY > RUNTIME > TEST_FAILURE > SYNTAX.
var repairPriority = map[Kind]int{
	KindSchemaMismatch:        0,
	KindContractMissingMethod: 1,
	KindContractBadDecorator:  2,
	KindImportPolicy:          3,
	KindRuntime:               4,
	KindTestFailure:           5,
	KindSyntax:                6,
}

// PriorityFixHint returns the highest-priority finding's fix hint among
// this report's error/fatal findings, for emphasis in the next repair
// prompt. Returns nil if no finding carries a fix hint.
func (r *Report) PriorityFixHint() *FixHint {
	best := -1
	var bestHint *FixHint
	for _, f := range r.Findings {
		if f.Severity != SeverityError && f.Severity != SeverityFatal {
			continue
		}
		if f.FixHint == nil {
			continue
		}
		rank, ok := repairPriority[f.Kind]
		if !ok {
			rank = len(repairPriority)
		}
		if best == -1 || rank < best {
			best = rank
			bestHint = f.FixHint
		}
	}
	return bestHint
}

func writeSortedStrings(h interface{ Write([]byte) (int, error) }, set map[string]bool) {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	h.Write([]byte{0xff})
}
