// Package bundle implements the Artifact Bundle: a deterministic mapping
// from file path to file content, with a per-file digest and a bundle
// digest, serializable to an on-disk layout plus an index record.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// FileEntry is one (relative path, content, digest) triple.
type FileEntry struct {
	Path    string
	Content []byte
	Digest  string
}

func digestOf(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Bundle is an ordered mapping of FileEntry indexed by canonical
// (lexicographic) path order. Construction from a file map always sorts
// paths before hashing, so bundle digest is independent of insertion order
// — determinism is a tested property (internal/bundle/property_test.go).
type Bundle struct {
	entries []FileEntry
	digest  string
}

// Build constructs a Bundle from a path->content map. Digests are computed
// per file, paths are sorted lexicographically, and the bundle digest is
// the digest of the concatenation of (path, file digest) pairs in that
// order.
func Build(files map[string][]byte) Bundle {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	entries := make([]FileEntry, 0, len(paths))
	h := sha256.New()
	for _, p := range paths {
		content := files[p]
		d := digestOf(content)
		entries = append(entries, FileEntry{Path: p, Content: content, Digest: d})
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write([]byte(d))
		h.Write([]byte{0xff})
	}
	return Bundle{entries: entries, digest: hex.EncodeToString(h.Sum(nil))}
}

// Entries returns the bundle's files in canonical path order. The returned
// slice must not be mutated by callers.
func (b Bundle) Entries() []FileEntry { return b.entries }

// Digest returns the bundle's content address.
func (b Bundle) Digest() string { return b.digest }

// Get returns the FileEntry at path, if present.
func (b Bundle) Get(path string) (FileEntry, bool) {
	for _, e := range b.entries {
		if e.Path == path {
			return e, true
		}
	}
	return FileEntry{}, false
}

// Len reports the number of files in the bundle.
func (b Bundle) Len() int { return len(b.entries) }

// Verify recomputes the bundle's digest and compares it against expected.
// An installer must call this immediately before accepting a bundle
// (spec §4.3, §8 "Install guard").
func Verify(b Bundle, expectedDigest string) bool {
	files := make(map[string][]byte, len(b.entries))
	for _, e := range b.entries {
		files[e.Path] = e.Content
	}
	return Build(files).Digest() == expectedDigest
}

// Merge overlays changed onto base, producing a new Bundle. deleted paths
// are removed from base before the overlay is applied. Used by the
// Orchestrator's IMPLEMENT stage to apply a GenerateResponse's
// changed_files/deleted_files onto the previous attempt's bundle.
func Merge(base Bundle, changed map[string][]byte, deleted []string) Bundle {
	files := make(map[string][]byte, base.Len()+len(changed))
	for _, e := range base.Entries() {
		files[e.Path] = e.Content
	}
	for _, p := range deleted {
		delete(files, p)
	}
	for p, content := range changed {
		files[p] = content
	}
	return Build(files)
}
