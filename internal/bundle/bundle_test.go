package bundle

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuildIsOrderIndependent(t *testing.T) {
	files := map[string][]byte{
		"modules/weather/openweather/adapter.py":      []byte("class Adapter: pass"),
		"modules/weather/openweather/manifest.json":   []byte(`{"module_id":"weather/openweather"}`),
		"modules/weather/openweather/test_adapter.py": []byte("def test_fetch(): pass"),
	}
	a := Build(files)
	b := Build(files)
	if a.Digest() != b.Digest() {
		t.Fatalf("expected identical digest for identical input map, got %s vs %s", a.Digest(), b.Digest())
	}
}

func TestVerifyDetectsTamper(t *testing.T) {
	b := Build(map[string][]byte{"modules/x/y/adapter.py": []byte("a")})
	if !Verify(b, b.Digest()) {
		t.Fatalf("expected Verify to accept the bundle's own digest")
	}
	if Verify(b, "deadbeef") {
		t.Fatalf("expected Verify to reject a mismatched digest")
	}
}

func TestMergeOverlaysAndDeletes(t *testing.T) {
	base := Build(map[string][]byte{
		"modules/x/y/adapter.py":  []byte("v1"),
		"modules/x/y/manifest.json": []byte("{}"),
	})
	merged := Merge(base, map[string][]byte{"modules/x/y/adapter.py": []byte("v2")}, []string{"modules/x/y/manifest.json"})
	entry, ok := merged.Get("modules/x/y/adapter.py")
	if !ok || string(entry.Content) != "v2" {
		t.Fatalf("expected overlay to apply, got %+v ok=%v", entry, ok)
	}
	if _, ok := merged.Get("modules/x/y/manifest.json"); ok {
		t.Fatalf("expected deleted file to be absent from merged bundle")
	}
}

func TestCompareBundles(t *testing.T) {
	a := Build(map[string][]byte{"a.py": []byte("1"), "b.py": []byte("1")})
	b := Build(map[string][]byte{"b.py": []byte("2"), "c.py": []byte("1")})
	d := CompareBundles(a, b)
	if len(d.Added) != 1 || d.Added[0] != "c.py" {
		t.Fatalf("expected c.py added, got %+v", d.Added)
	}
	if len(d.Deleted) != 1 || d.Deleted[0] != "a.py" {
		t.Fatalf("expected a.py deleted, got %+v", d.Deleted)
	}
	if len(d.Changed) != 1 || d.Changed[0] != "b.py" {
		t.Fatalf("expected b.py changed, got %+v", d.Changed)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	root := t.TempDir()
	b := Build(map[string][]byte{
		"modules/x/y/adapter.py": []byte("class Adapter: pass"),
	})
	idx, err := Write(root, "job-1", "attempt-1", b, "x/y", "implement")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if idx.BundleDigest != b.Digest() {
		t.Fatalf("index digest mismatch")
	}
	got, readIdx, err := Read(root, "attempt-1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Digest() != b.Digest() {
		t.Fatalf("round-tripped digest mismatch")
	}
	if readIdx.ModuleID != "x/y" {
		t.Fatalf("expected module id to round-trip")
	}
}

func TestReadRejectsTamperedFile(t *testing.T) {
	root := t.TempDir()
	b := Build(map[string][]byte{"modules/x/y/adapter.py": []byte("original")})
	if _, err := Write(root, "job-1", "attempt-1", b, "x/y", "implement"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	tampered := filepath.Join(root, "attempts", "attempt-1", "files", "modules", "x", "y", "adapter.py")
	if err := os.WriteFile(tampered, []byte("tampered"), 0o644); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, _, err := Read(root, "attempt-1"); err == nil {
		t.Fatalf("expected Read to reject a digest mismatch after tampering")
	}
}

func TestWriteRejectsPathTraversal(t *testing.T) {
	root := t.TempDir()
	b := Build(map[string][]byte{"../escape.py": []byte("x")})
	if _, err := Write(root, "job-1", "attempt-1", b, "x/y", "implement"); err == nil {
		t.Fatalf("expected Write to reject a traversal path")
	}
}
