// Package manifest implements the Manifest schema (spec §3, §6.2): the
// declared capabilities of a module, validated against a versioned schema
// with unknown top-level fields rejected.
package manifest

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// SchemaID is the manifest schema's versioned $id.
const SchemaID = "https://schemas.moduleforge.dev/manifest/v1.0.0"

// Capability is one of the closed set of declarable adapter capabilities.
type Capability string

const (
	CapabilityAuth        Capability = "auth"
	CapabilityPagination  Capability = "pagination"
	CapabilityRateLimits  Capability = "rate_limits"
	CapabilityCharts      Capability = "charts"
	CapabilityCredentials Capability = "credentials"
)

var validCapabilities = map[Capability]bool{
	CapabilityAuth:        true,
	CapabilityPagination:  true,
	CapabilityRateLimits:  true,
	CapabilityCharts:      true,
	CapabilityCredentials: true,
}

var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Manifest is the declared capabilities of a module, per spec §3/§6.2.
type Manifest struct {
	ModuleID     string       `json:"module_id" validate:"required"`
	Version      string       `json:"version" validate:"required"`
	Category     string       `json:"category" validate:"required,lowercase"`
	Platform     string       `json:"platform" validate:"required,lowercase"`
	Entrypoint   string       `json:"entrypoint" validate:"required"`
	Capabilities []Capability `json:"capabilities" validate:"required,min=0,dive"`

	Auth         json.RawMessage `json:"auth,omitempty"`
	Pagination   json.RawMessage `json:"pagination,omitempty"`
	RateLimits   json.RawMessage `json:"rate_limits,omitempty"`
	Outputs      json.RawMessage `json:"outputs,omitempty"`
	Artifacts    json.RawMessage `json:"artifacts,omitempty"`
	Description  string          `json:"description,omitempty"`
	Dependencies []string        `json:"dependencies,omitempty"`
}

var validate = validator.New()

// Parse unmarshals and validates raw against the manifest schema. Unknown
// top-level fields are rejected by decoding into a strict field set first.
func Parse(raw []byte) (Manifest, error) {
	if err := rejectUnknownFields(raw); err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("manifest: invalid json: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

var knownTopLevelFields = map[string]bool{
	"module_id": true, "version": true, "category": true, "platform": true,
	"entrypoint": true, "capabilities": true, "auth": true, "pagination": true,
	"rate_limits": true, "outputs": true, "artifacts": true, "description": true,
	"dependencies": true,
}

func rejectUnknownFields(raw []byte) error {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("manifest: invalid json: %w", err)
	}
	for key := range generic {
		if !knownTopLevelFields[key] {
			return fmt.Errorf("manifest: unknown top-level field %q", key)
		}
	}
	return nil
}

// Validate checks struct-tag constraints plus the manifest-specific
// invariants that validator tags can't express cleanly: version format,
// module_id agreement with category/platform, and capability closure.
func (m Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	if !semverPattern.MatchString(m.Version) {
		return fmt.Errorf("manifest: version %q must match MAJOR.MINOR.PATCH", m.Version)
	}
	if want := m.Category + "/" + m.Platform; m.ModuleID != want {
		return fmt.Errorf("manifest: module_id %q must equal category/platform (%q)", m.ModuleID, want)
	}
	for _, c := range m.Capabilities {
		if !validCapabilities[c] {
			return fmt.Errorf("manifest: unknown capability %q", c)
		}
	}
	return nil
}

// RequiredSuitesFor returns the hard-gate suite names a validated bundle
// must pass for each declared capability, per spec §3 "Hard gate".
func (m Manifest) RequiredSuitesFor() []string {
	suites := make([]string, 0, len(m.Capabilities)+1)
	suites = append(suites, "contract") // fetch_raw/transform/get_schema always required
	for _, c := range m.Capabilities {
		suites = append(suites, string(c))
	}
	return suites
}
