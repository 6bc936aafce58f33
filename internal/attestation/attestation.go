// Package attestation implements the append-only attestation record a
// BuildJob produces on a successful ATTEST stage, per spec §3/§6.5.
package attestation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Attestation is the closed record set per spec §4.6 ATTEST: job_id,
// module_id, version, bundle_digest, report_ref, validator_build_id.
type Attestation struct {
	ID               string    `json:"id"`
	JobID            string    `json:"job_id"`
	ModuleID         string    `json:"module_id"`
	Version          string    `json:"version"`
	BundleDigest     string    `json:"bundle_digest"`
	ReportRef        string    `json:"report_ref,omitempty"`
	ValidatorBuildID string    `json:"validator_build_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// Input is what the Orchestrator supplies to mint an Attestation.
type Input struct {
	JobID            string
	ModuleID         string
	Version          string
	BundleDigest     string
	ReportRef        string
	ValidatorBuildID string
	CreatedAt        time.Time
}

// New mints an Attestation, deriving its ID from the fields that must stay
// stable across re-attestation of the same bundle: (module_id, version,
// bundle_digest, validator_build_id). JobID and timestamp do not
// participate in the ID, so re-running ATTEST for the same bundle under a
// different job still yields the same attestation identity.
func New(in Input) Attestation {
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	h := sha256.New()
	h.Write([]byte(in.ModuleID))
	h.Write([]byte{0})
	h.Write([]byte(in.Version))
	h.Write([]byte{0})
	h.Write([]byte(in.BundleDigest))
	h.Write([]byte{0})
	h.Write([]byte(in.ValidatorBuildID))
	return Attestation{
		ID:               hex.EncodeToString(h.Sum(nil)),
		JobID:            in.JobID,
		ModuleID:         in.ModuleID,
		Version:          in.Version,
		BundleDigest:     in.BundleDigest,
		ReportRef:        in.ReportRef,
		ValidatorBuildID: in.ValidatorBuildID,
		CreatedAt:        createdAt,
	}
}

// Store is an append-only attestation log: one JSON file per attestation
// ID, written once and never overwritten.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

// Append writes att to the store. It refuses to overwrite an existing
// attestation with the same ID, since an attestation is a historical
// record of a specific (module, version, digest, validator) combination.
func (s *Store) Append(att Attestation) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create attestation store: %w", err)
	}
	path := filepath.Join(s.root, att.ID+".json")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("attestation %s already recorded", att.ID)
	}
	data, err := json.MarshalIndent(att, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal attestation: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write attestation: %w", err)
	}
	return nil
}

// Get loads a previously recorded attestation by ID.
func (s *Store) Get(id string) (Attestation, error) {
	data, err := os.ReadFile(filepath.Join(s.root, id+".json"))
	if err != nil {
		return Attestation{}, fmt.Errorf("read attestation %s: %w", id, err)
	}
	var att Attestation
	if err := json.Unmarshal(data, &att); err != nil {
		return Attestation{}, fmt.Errorf("unmarshal attestation %s: %w", id, err)
	}
	return att, nil
}
