package bundle

// Diff is the human-readable preview a drafts/versioning consumer renders
// between two bundle revisions, per spec §4.3.
type Diff struct {
	Added   []string
	Deleted []string
	Changed []string
}

// CompareBundles returns the added, deleted, and changed (same path,
// different digest) paths between a and b.
func CompareBundles(a, b Bundle) Diff {
	aIndex := make(map[string]string, a.Len())
	for _, e := range a.Entries() {
		aIndex[e.Path] = e.Digest
	}
	bIndex := make(map[string]string, b.Len())
	for _, e := range b.Entries() {
		bIndex[e.Path] = e.Digest
	}

	var d Diff
	for path, digest := range bIndex {
		oldDigest, existed := aIndex[path]
		if !existed {
			d.Added = append(d.Added, path)
		} else if oldDigest != digest {
			d.Changed = append(d.Changed, path)
		}
	}
	for path := range aIndex {
		if _, stillPresent := bIndex[path]; !stillPresent {
			d.Deleted = append(d.Deleted, path)
		}
	}
	return d
}
