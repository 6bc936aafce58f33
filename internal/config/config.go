// Package config loads the Builder's PolicyProfile and provider routing
// table from a checked-in YAML file, generalizing the teacher's single-
// source-of-truth config-struct pattern
// (agents/manager/cmd/manager/policy.go's loadDyadPolicy) from env vars to
// file-based YAML, since a PolicyProfile is a declarative artifact meant to
// be reviewed and versioned (spec §6.6), not a per-deploy env var set.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/moduleforge/builder/internal/policy"
)

// ProviderRoute is one entry in the routing table: which provider names,
// in fallback order, serve a given Purpose.
type ProviderRoute struct {
	Purpose   string   `yaml:"purpose"`
	Providers []string `yaml:"providers"`
}

// File is the on-disk shape of the Builder's config file.
type File struct {
	Profiles map[string]policy.Profile `yaml:"profiles"`
	Routes   []ProviderRoute           `yaml:"routes"`
}

// Load reads and parses path into a File, validating every embedded
// PolicyProfile via its struct tags.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(f.Profiles) == 0 {
		return File{}, fmt.Errorf("config %s: no profiles declared", path)
	}
	for name, p := range f.Profiles {
		if err := p.Validate(); err != nil {
			return File{}, fmt.Errorf("config %s: profile %q: %w", path, name, err)
		}
	}
	return f, nil
}
