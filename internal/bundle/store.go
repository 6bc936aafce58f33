package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// IndexFile is the on-disk metadata record for a bundle, written alongside
// its materialized files, per spec §6.4.
type IndexFile struct {
	JobID       string        `json:"job_id"`
	AttemptID   string        `json:"attempt_id"`
	BundleDigest string       `json:"bundle_digest"`
	Files       []IndexedFile `json:"files"`
	CreatedAt   time.Time     `json:"created_at"`
	ModuleID    string        `json:"module_id,omitempty"`
	Stage       string        `json:"stage,omitempty"`
}

// IndexedFile is one entry of IndexFile.Files.
type IndexedFile struct {
	Path   string `json:"path"`
	Digest string `json:"digest"`
	Bytes  int    `json:"bytes"`
}

// Write materializes b under root/attempts/<attemptID>/files/<path> and
// writes root/attempts/<attemptID>/index.json, per spec §6.4's layout.
// Each attempt writes to a unique path; callers never reuse an attemptID,
// so this is safe for concurrent attempts across BuildJobs without
// additional locking (single-writer per attempt, per spec §5).
func Write(root, jobID, attemptID string, b Bundle, moduleID, stage string) (IndexFile, error) {
	attemptRoot := filepath.Join(root, "attempts", attemptID)
	filesRoot := filepath.Join(attemptRoot, "files")

	idx := IndexFile{
		JobID:        jobID,
		AttemptID:    attemptID,
		BundleDigest: b.Digest(),
		ModuleID:     moduleID,
		Stage:        stage,
	}

	for _, e := range b.Entries() {
		cleaned := filepath.Clean(strings.TrimSpace(e.Path))
		if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
			return IndexFile{}, fmt.Errorf("bundle store: refusing unsafe path %q", e.Path)
		}
		dest := filepath.Join(filesRoot, cleaned)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return IndexFile{}, fmt.Errorf("bundle store: mkdir for %q: %w", e.Path, err)
		}
		if err := os.WriteFile(dest, e.Content, 0o644); err != nil {
			return IndexFile{}, fmt.Errorf("bundle store: write %q: %w", e.Path, err)
		}
		idx.Files = append(idx.Files, IndexedFile{Path: e.Path, Digest: e.Digest, Bytes: len(e.Content)})
	}
	sort.Slice(idx.Files, func(i, j int) bool { return idx.Files[i].Path < idx.Files[j].Path })
	idx.CreatedAt = timeNow()

	raw, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return IndexFile{}, fmt.Errorf("bundle store: marshal index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(attemptRoot, "index.json"), raw, 0o644); err != nil {
		return IndexFile{}, fmt.Errorf("bundle store: write index: %w", err)
	}
	return idx, nil
}

// Read loads a bundle from root/attempts/<attemptID> and recomputes
// digests, rejecting any mismatch against the stored index (spec §4.3
// "deserialization MUST recompute digests and reject mismatch").
func Read(root, attemptID string) (Bundle, IndexFile, error) {
	attemptRoot := filepath.Join(root, "attempts", attemptID)
	raw, err := os.ReadFile(filepath.Join(attemptRoot, "index.json"))
	if err != nil {
		return Bundle{}, IndexFile{}, fmt.Errorf("bundle store: read index: %w", err)
	}
	var idx IndexFile
	if err := json.Unmarshal(raw, &idx); err != nil {
		return Bundle{}, IndexFile{}, fmt.Errorf("bundle store: unmarshal index: %w", err)
	}

	files := make(map[string][]byte, len(idx.Files))
	for _, f := range idx.Files {
		content, err := os.ReadFile(filepath.Join(attemptRoot, "files", f.Path))
		if err != nil {
			return Bundle{}, IndexFile{}, fmt.Errorf("bundle store: read %q: %w", f.Path, err)
		}
		files[f.Path] = content
	}
	b := Build(files)
	if b.Digest() != idx.BundleDigest {
		return Bundle{}, IndexFile{}, fmt.Errorf("bundle store: digest mismatch for attempt %s: index says %s, recomputed %s",
			attemptID, idx.BundleDigest, b.Digest())
	}
	return b, idx, nil
}

// timeNow is a seam so tests can avoid relying on wall-clock time equality;
// production code always calls time.Now.
var timeNow = time.Now
