// Package idtypes defines the identity types shared across every Builder
// component: module identity, job/attempt/correlation ids.
package idtypes

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// JobID identifies one BuildJob end to end.
type JobID uuid.UUID

func NewJobID() JobID { return JobID(uuid.New()) }

func (id JobID) String() string { return uuid.UUID(id).String() }

// AttemptID identifies one IMPLEMENT+VALIDATE cycle inside a BuildJob.
type AttemptID uuid.UUID

func NewAttemptID() AttemptID { return AttemptID(uuid.New()) }

func (id AttemptID) String() string { return uuid.UUID(id).String() }

// CorrelationID threads a BuildJob through logs, events, and provider calls.
type CorrelationID uuid.UUID

func NewCorrelationID() CorrelationID { return CorrelationID(uuid.New()) }

func (id CorrelationID) String() string { return uuid.UUID(id).String() }

var slugPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// ModuleID is the (category, platform) tuple identifying a module.
type ModuleID struct {
	Category string
	Platform string
}

// ParseModuleID parses the canonical "category/platform" form.
func ParseModuleID(s string) (ModuleID, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return ModuleID{}, fmt.Errorf("module id %q: want category/platform", s)
	}
	id := ModuleID{Category: parts[0], Platform: parts[1]}
	if err := id.Validate(); err != nil {
		return ModuleID{}, err
	}
	return id, nil
}

// Validate checks both slugs are lowercase [a-z0-9_]+.
func (id ModuleID) Validate() error {
	if !slugPattern.MatchString(id.Category) {
		return fmt.Errorf("module id: invalid category slug %q", id.Category)
	}
	if !slugPattern.MatchString(id.Platform) {
		return fmt.Errorf("module id: invalid platform slug %q", id.Platform)
	}
	return nil
}

// String returns the canonical "category/platform" form.
func (id ModuleID) String() string {
	return id.Category + "/" + id.Platform
}

// BasePath returns the canonical filesystem root for this module's files.
func (id ModuleID) BasePath() string {
	return "modules/" + id.Category + "/" + id.Platform + "/"
}
