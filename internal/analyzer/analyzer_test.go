package analyzer

import (
	"testing"

	"github.com/moduleforge/builder/internal/bundle"
	"github.com/moduleforge/builder/internal/policy"
	"github.com/moduleforge/builder/internal/report"
)

const validAdapter = `from typing import Any

import requests


@register_adapter
class OpenWeatherAdapter:
    def fetch_raw(self):
        return requests.get("https://example.invalid")

    def transform(self, raw):
        return raw

    def get_schema(self):
        return {}
`

func TestAnalyzeValidAdapterHasNoErrors(t *testing.T) {
	b := bundle.Build(map[string][]byte{"modules/weather/openweather/adapter.py": []byte(validAdapter)})
	r := Analyze(b, policy.Default())
	if r.HasErrorOrFatal() {
		t.Fatalf("expected no errors for a valid adapter, got %+v", r.Findings)
	}
}

func TestAnalyzeForbiddenImport(t *testing.T) {
	src := "import subprocess\n\n@register_adapter\nclass A:\n    def fetch_raw(self):\n        pass\n    def transform(self, raw):\n        pass\n    def get_schema(self):\n        pass\n"
	b := bundle.Build(map[string][]byte{"modules/x/y/adapter.py": []byte(src)})
	r := Analyze(b, policy.Default())
	found := false
	for _, f := range r.Findings {
		if f.Kind == report.KindImportPolicy {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an IMPORT_POLICY finding, got %+v", r.Findings)
	}
}

func TestAnalyzeMissingDecorator(t *testing.T) {
	src := "class A:\n    def fetch_raw(self):\n        pass\n    def transform(self, raw):\n        pass\n    def get_schema(self):\n        pass\n"
	b := bundle.Build(map[string][]byte{"modules/x/y/adapter.py": []byte(src)})
	r := Analyze(b, policy.Default())
	found := false
	for _, f := range r.Findings {
		if f.Kind == report.KindContractBadDecorator {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a CONTRACT_BAD_DECORATOR finding, got %+v", r.Findings)
	}
}

func TestAnalyzeMissingMethod(t *testing.T) {
	src := "@register_adapter\nclass A:\n    def fetch_raw(self):\n        pass\n    def transform(self, raw):\n        pass\n"
	b := bundle.Build(map[string][]byte{"modules/x/y/adapter.py": []byte(src)})
	r := Analyze(b, policy.Default())
	found := false
	for _, f := range r.Findings {
		if f.Kind == report.KindContractMissingMethod {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a CONTRACT_MISSING_METHOD finding for missing get_schema, got %+v", r.Findings)
	}
}

func TestAnalyzeForbiddenCallPattern(t *testing.T) {
	src := "@register_adapter\nclass A:\n    def fetch_raw(self):\n        return eval(\"1\")\n    def transform(self, raw):\n        pass\n    def get_schema(self):\n        pass\n"
	b := bundle.Build(map[string][]byte{"modules/x/y/adapter.py": []byte(src)})
	r := Analyze(b, policy.Default())
	found := false
	for _, f := range r.Findings {
		if f.Kind == report.KindPolicyViolation {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a POLICY_VIOLATION finding for eval(, got %+v", r.Findings)
	}
}

func TestAnalyzeSyntaxError(t *testing.T) {
	src := "@register_adapter\nclass A:\n    def fetch_raw(self:\n        pass\n"
	b := bundle.Build(map[string][]byte{"modules/x/y/adapter.py": []byte(src)})
	r := Analyze(b, policy.Default())
	found := false
	for _, f := range r.Findings {
		if f.Kind == report.KindSyntax {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a SYNTAX finding for unbalanced parens, got %+v", r.Findings)
	}
}

func TestAnalyzeIsDeterministicallyOrdered(t *testing.T) {
	b := bundle.Build(map[string][]byte{
		"modules/x/y/adapter.py": []byte("import subprocess\nimport os\n"),
	})
	r1 := Analyze(b, policy.Default())
	r2 := Analyze(b, policy.Default())
	if len(r1.Findings) != len(r2.Findings) {
		t.Fatalf("expected deterministic finding count across runs")
	}
	for i := range r1.Findings {
		a, b := r1.Findings[i], r2.Findings[i]
		if a.Kind != b.Kind || a.Severity != b.Severity || a.Message != b.Message {
			t.Fatalf("expected deterministic finding order across runs, index %d: %+v vs %+v", i, a, b)
		}
	}
}
