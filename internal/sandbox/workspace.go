package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/moduleforge/builder/internal/bundle"
)

// materializeWorkspace writes a bundle's entries to a fresh temp directory
// under root, rejecting any path that would escape it — the same traversal
// guard internal/bundle/store.go applies on disk writes, re-checked here
// because the bundle may have been produced by an LLM response rather than
// loaded from trusted storage.
func materializeWorkspace(root string, b bundle.Bundle) (string, func(), error) {
	dir, err := os.MkdirTemp(root, "sandbox-*")
	if err != nil {
		return "", func() {}, fmt.Errorf("create workspace: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	for _, entry := range b.Entries() {
		cleaned := filepath.Clean(entry.Path)
		if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
			cleanup()
			return "", func() {}, fmt.Errorf("refusing to materialize unsafe path %q", entry.Path)
		}
		full := filepath.Join(dir, cleaned)
		if !strings.HasPrefix(full, dir+string(os.PathSeparator)) && full != dir {
			cleanup()
			return "", func() {}, fmt.Errorf("path %q escapes workspace", entry.Path)
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			cleanup()
			return "", func() {}, fmt.Errorf("create dir for %q: %w", entry.Path, err)
		}
		if err := os.WriteFile(full, entry.Content, 0o644); err != nil {
			cleanup()
			return "", func() {}, fmt.Errorf("write %q: %w", entry.Path, err)
		}
	}
	return dir, cleanup, nil
}
