package policy

import (
	"context"
	"testing"
)

func TestIsForbiddenImportExactAndPrefix(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"subprocess", true},
		{"subprocess.run", true},
		{"os", true},
		{"os.path", true},
		{"requests", false},
		{"typing", false},
		{"subprocessor", false}, // not a dotted prefix match
	}
	for _, tc := range cases {
		if got := IsForbiddenImport(tc.name); got != tc.want {
			t.Fatalf("IsForbiddenImport(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsAllowedImportBaselineAndExtra(t *testing.T) {
	profile := Default()
	if !IsAllowedImport("requests", profile) {
		t.Fatalf("expected baseline import requests to be allowed")
	}
	if IsAllowedImport("subprocess", profile) {
		t.Fatalf("expected forbidden import subprocess to be rejected regardless of allowlist")
	}
	profile.AllowedImportPrefixes = []string{"pandas"}
	if !IsAllowedImport("pandas.DataFrame", profile) {
		t.Fatalf("expected profile-extended prefix to be allowed")
	}
	if IsAllowedImport("numpy", profile) {
		t.Fatalf("expected import outside baseline+extra to be rejected")
	}
}

func TestHasForbiddenPathChar(t *testing.T) {
	cases := map[string]bool{
		"modules/weather/openweather/adapter.py": false,
		"modules/../etc/passwd":                  true,
		"~/secrets":                              true,
	}
	for path, want := range cases {
		if got := HasForbiddenPathChar(path); got != want {
			t.Fatalf("HasForbiddenPathChar(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestIsForbiddenCallPattern(t *testing.T) {
	if _, ok := IsForbiddenCallPattern("result = eval(user_input)"); !ok {
		t.Fatalf("expected eval( to be detected")
	}
	if _, ok := IsForbiddenCallPattern("return self.transform(raw)"); ok {
		t.Fatalf("did not expect transform( to be flagged")
	}
}

func TestRegoEvaluatorAgreesWithGoNativeDecision(t *testing.T) {
	ctx := context.Background()
	evaluator, err := NewRegoEvaluator(ctx)
	if err != nil {
		t.Fatalf("NewRegoEvaluator: %v", err)
	}
	profile := Default()
	profile.AllowedImportPrefixes = []string{"pandas"}

	names := []string{"subprocess", "requests", "pandas.DataFrame", "numpy", "os.path"}
	for _, name := range names {
		want := IsAllowedImport(name, profile)
		got, err := evaluator.AllowImport(ctx, name, profile)
		if err != nil {
			t.Fatalf("AllowImport(%q): %v", name, err)
		}
		if got != want {
			t.Fatalf("AllowImport(%q) = %v, want %v (go-native decision)", name, got, want)
		}
	}
}
