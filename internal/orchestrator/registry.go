package orchestrator

import (
	"fmt"
	"sync"

	"github.com/moduleforge/builder/internal/idtypes"
)

// RegistryEntry is what the static module registry tracks about one
// built-and-attested module, keyed by ModuleID. Per spec §9's
// re-architecture direction, the registry is populated explicitly at
// process start from configuration/storage — never via decorator-style
// side-effect registration at import time.
type RegistryEntry struct {
	ModuleID      idtypes.ModuleID
	Version       string
	BundleDigest  string
	AttestationID string
}

// Registry is a read-mostly, concurrency-safe map from ModuleID to its
// latest attested entry. The module registry itself is an external
// collaborator the Builder only reads from (spec §4.6); this type is the
// Builder-local cache of that state, refreshed by Register calls the
// Orchestrator issues after a successful ATTEST.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]RegistryEntry
}

// NewRegistry builds a Registry, optionally seeded with entries loaded at
// startup (e.g. from the external module registry's current state).
func NewRegistry(seed ...RegistryEntry) *Registry {
	r := &Registry{entries: make(map[string]RegistryEntry, len(seed))}
	for _, e := range seed {
		r.entries[e.ModuleID.String()] = e
	}
	return r
}

// Register records or replaces a module's entry. Replacement is expected:
// a later attested version of the same module supersedes the prior entry.
func (r *Registry) Register(e RegistryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.ModuleID.String()] = e
}

// Lookup returns the current entry for a ModuleID, if any.
func (r *Registry) Lookup(id idtypes.ModuleID) (RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id.String()]
	return e, ok
}

// MustParseAndLookup is a convenience for callers holding a raw
// "category/platform" string rather than a parsed ModuleID.
func (r *Registry) MustParseAndLookup(raw string) (RegistryEntry, bool, error) {
	id, err := idtypes.ParseModuleID(raw)
	if err != nil {
		return RegistryEntry{}, false, fmt.Errorf("parse module id %q: %w", raw, err)
	}
	e, ok := r.Lookup(id)
	return e, ok, nil
}
