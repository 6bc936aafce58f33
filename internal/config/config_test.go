package config

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func noopLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zap.NewNop()
}

const validYAML = `
profiles:
  default:
    name: default
    network: none
    backend: docker
    cpu_seconds: 30
    memory_bytes: 536870912
    wall_clock_seconds: 120
    max_processes: 32
    max_open_files: 256
    max_changed_files: 10
    max_bytes_per_file: 102400
    max_repair_attempts: 10
routes:
  - purpose: codegen
    providers: [anthropic, bedrock]
  - purpose: repair
    providers: [anthropic, bedrock]
  - purpose: critic
    providers: [anthropic]
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTemp(t, validYAML)
	f, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Profiles) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(f.Profiles))
	}
	if len(f.Routes) != 3 {
		t.Fatalf("expected 3 routes, got %d", len(f.Routes))
	}
}

func TestLoadRejectsInvalidProfile(t *testing.T) {
	path := writeTemp(t, `
profiles:
  broken:
    name: broken
    network: none
    backend: docker
    cpu_seconds: -1
    memory_bytes: 1
    wall_clock_seconds: 1
    max_processes: 1
    max_open_files: 1
    max_changed_files: 1
    max_bytes_per_file: 1
    max_repair_attempts: 1
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for negative cpu_seconds")
	}
}

func TestLoadRejectsEmptyProfiles(t *testing.T) {
	path := writeTemp(t, "routes: []\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for no declared profiles")
	}
}

func TestWatcherReloadsOnDemand(t *testing.T) {
	path := writeTemp(t, validYAML)
	w, err := NewWatcher(path, noopLogger(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.Current().Profiles) != 1 {
		t.Fatalf("expected 1 profile after initial load")
	}

	updated := validYAML + `
  - purpose: extra
    providers: [anthropic]
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	w.reload()
	if len(w.Current().Routes) != 4 {
		t.Fatalf("expected reload to pick up new route, got %d routes", len(w.Current().Routes))
	}
}
