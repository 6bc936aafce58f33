package manifest

import "testing"

const validManifest = `{
  "module_id": "weather/openweather",
  "version": "1.0.0",
  "category": "weather",
  "platform": "openweather",
  "entrypoint": "adapter.py:OpenWeatherAdapter",
  "capabilities": ["auth", "rate_limits"]
}`

func TestParseValidManifest(t *testing.T) {
	m, err := Parse([]byte(validManifest))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.ModuleID != "weather/openweather" {
		t.Fatalf("unexpected module id %q", m.ModuleID)
	}
}

func TestParseRejectsUnknownField(t *testing.T) {
	raw := []byte(`{"module_id":"weather/openweather","version":"1.0.0","category":"weather","platform":"openweather","entrypoint":"a","capabilities":[],"bogus":true}`)
	if _, err := Parse(raw); err == nil {
		t.Fatalf("expected unknown top-level field to be rejected")
	}
}

func TestParseRejectsBadVersion(t *testing.T) {
	raw := []byte(`{"module_id":"weather/openweather","version":"1.0","category":"weather","platform":"openweather","entrypoint":"a","capabilities":[]}`)
	if _, err := Parse(raw); err == nil {
		t.Fatalf("expected non-semver version to be rejected")
	}
}

func TestParseRejectsModuleIDMismatch(t *testing.T) {
	raw := []byte(`{"module_id":"weather/wrongplatform","version":"1.0.0","category":"weather","platform":"openweather","entrypoint":"a","capabilities":[]}`)
	if _, err := Parse(raw); err == nil {
		t.Fatalf("expected module_id/category/platform mismatch to be rejected")
	}
}

func TestParseRejectsUnknownCapability(t *testing.T) {
	raw := []byte(`{"module_id":"weather/openweather","version":"1.0.0","category":"weather","platform":"openweather","entrypoint":"a","capabilities":["telemetry"]}`)
	if _, err := Parse(raw); err == nil {
		t.Fatalf("expected unknown capability to be rejected")
	}
}

func TestRequiredSuitesForIncludesContractAndCapabilities(t *testing.T) {
	m, err := Parse([]byte(validManifest))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	suites := m.RequiredSuitesFor()
	want := map[string]bool{"contract": true, "auth": true, "rate_limits": true}
	if len(suites) != len(want) {
		t.Fatalf("unexpected suite set %+v", suites)
	}
	for _, s := range suites {
		if !want[s] {
			t.Fatalf("unexpected suite %q", s)
		}
	}
}
