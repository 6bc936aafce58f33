package bundle

import (
	"math/rand"
	"testing"

	"pgregory.net/rapid"
)

// genFileMap draws a random path->content map for property tests.
func genFileMap(t *rapid.T) map[string][]byte {
	n := rapid.IntRange(0, 12).Draw(t, "n")
	files := make(map[string][]byte, n)
	for i := 0; i < n; i++ {
		path := rapid.StringMatching(`modules/[a-z]{3,8}/[a-z]{3,8}/[a-z_]{3,12}\.py`).Draw(t, "path")
		content := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "content")
		files[path] = content
	}
	return files
}

// TestPropertyBundleDigestDeterministic verifies spec §8's bundle
// determinism property: identical input always yields an identical digest.
func TestPropertyBundleDigestDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		files := genFileMap(t)
		a := Build(files)
		b := Build(files)
		if a.Digest() != b.Digest() {
			t.Fatalf("non-deterministic digest for identical input: %s vs %s", a.Digest(), b.Digest())
		}
	})
}

// TestPropertyBundleDigestOrderIndependent verifies that permuting the
// entries used to construct a bundle never changes the resulting digest —
// Build always sorts paths before hashing.
func TestPropertyBundleDigestOrderIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		files := genFileMap(t)
		if len(files) == 0 {
			return
		}
		paths := make([]string, 0, len(files))
		for p := range files {
			paths = append(paths, p)
		}
		seed := rapid.Int64().Draw(t, "seed")
		rnd := rand.New(rand.NewSource(seed))
		shuffled := make(map[string][]byte, len(files))
		order := rnd.Perm(len(paths))
		for _, i := range order {
			shuffled[paths[i]] = files[paths[i]]
		}
		if Build(files).Digest() != Build(shuffled).Digest() {
			t.Fatalf("digest depended on map iteration/build order")
		}
	})
}

// TestPropertyVerifyOnlyAcceptsExactDigest ensures the install-guard
// property from spec §8: Verify only ever returns true for the bundle's own
// recomputed digest.
func TestPropertyVerifyOnlyAcceptsExactDigest(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		files := genFileMap(t)
		b := Build(files)
		decoy := rapid.StringMatching(`[0-9a-f]{64}`).Draw(t, "decoy")
		if decoy == b.Digest() {
			return
		}
		if Verify(b, decoy) {
			t.Fatalf("Verify accepted a non-matching digest")
		}
		if !Verify(b, b.Digest()) {
			t.Fatalf("Verify rejected the bundle's own digest")
		}
	})
}
