package report

import "testing"

func TestSortStableByPathLineKind(t *testing.T) {
	r := Report{Findings: []Finding{
		{Kind: KindSyntax, Location: &Location{Path: "b.py", Line: 5}},
		{Kind: KindImportPolicy, Location: &Location{Path: "a.py", Line: 10}},
		{Kind: KindRuntime, Location: &Location{Path: "a.py", Line: 2}},
	}}
	r.Sort()
	want := []string{"a.py", "a.py", "b.py"}
	for i, w := range want {
		if r.Findings[i].Location.Path != w {
			t.Fatalf("index %d: got path %q, want %q", i, r.Findings[i].Location.Path, w)
		}
	}
	if r.Findings[0].Location.Line != 2 {
		t.Fatalf("expected a.py:2 to sort before a.py:10")
	}
}

func TestValidatedRequiresNoErrorsAndAllCapabilitiesPassing(t *testing.T) {
	r := Report{CapabilitySuiteResults: map[string]bool{"auth": true, "pagination": false}}
	if r.Validated() {
		t.Fatalf("expected Validated() false when a capability suite failed")
	}
	r.CapabilitySuiteResults["pagination"] = true
	if !r.Validated() {
		t.Fatalf("expected Validated() true when all capability suites pass and no errors")
	}
	r.Findings = append(r.Findings, Finding{Severity: SeverityWarn, Kind: KindRuntime})
	if !r.Validated() {
		t.Fatalf("warn findings must not block VALIDATED")
	}
	r.Findings = append(r.Findings, Finding{Severity: SeverityError, Kind: KindRuntime})
	if r.Validated() {
		t.Fatalf("an error finding must block VALIDATED")
	}
}

func TestMergeDeduplicatesByKindPathLocationMessage(t *testing.T) {
	loc := &Location{Path: "adapter.py", Line: 3}
	static := Report{Findings: []Finding{{Kind: KindImportPolicy, Location: loc, Message: "forbidden import"}}}
	dynamic := Report{Findings: []Finding{
		{Kind: KindImportPolicy, Location: loc, Message: "forbidden import"},
		{Kind: KindTestFailure, Message: "test_fetch failed", TestID: "test_fetch"},
	}}
	merged := Merge(static, dynamic)
	if len(merged.Findings) != 2 {
		t.Fatalf("expected dedup to 2 findings, got %d: %+v", len(merged.Findings), merged.Findings)
	}
}

func TestFingerprintStableAndSensitiveToContent(t *testing.T) {
	a := Report{Findings: []Finding{{Severity: SeverityError, Kind: KindTestFailure, TestID: "test_a"}}}
	b := Report{Findings: []Finding{{Severity: SeverityError, Kind: KindTestFailure, TestID: "test_a"}}}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("expected identical reports to fingerprint identically")
	}
	c := Report{Findings: []Finding{{Severity: SeverityError, Kind: KindTestFailure, TestID: "test_b"}}}
	if a.Fingerprint() == c.Fingerprint() {
		t.Fatalf("expected different failing tests to fingerprint differently")
	}
}

func TestPriorityFixHintPrefersSchemaMismatch(t *testing.T) {
	r := Report{Findings: []Finding{
		{Severity: SeverityError, Kind: KindSyntax, FixHint: &FixHint{Signature: "syntax"}},
		{Severity: SeverityError, Kind: KindSchemaMismatch, FixHint: &FixHint{Signature: "schema"}},
		{Severity: SeverityError, Kind: KindContractMissingMethod, FixHint: &FixHint{Signature: "method"}},
	}}
	hint := r.PriorityFixHint()
	if hint == nil || hint.Signature != "schema" {
		t.Fatalf("expected schema mismatch fix hint to win priority, got %+v", hint)
	}
}
