// Package sandbox implements hermetic execution of a candidate module bundle
// against its declared capability test suites, per spec §4.3/§5.
package sandbox

import (
	"context"
	"time"

	"github.com/moduleforge/builder/internal/bundle"
	"github.com/moduleforge/builder/internal/policy"
	"github.com/moduleforge/builder/internal/report"
)

// State is one point in a single execution's lifecycle, per spec §5.
type State string

const (
	StateIdle       State = "IDLE"
	StateAcquiring  State = "ACQUIRING"
	StatePrepared   State = "PREPARED"
	StateExecuting  State = "EXECUTING"
	StateCollecting State = "COLLECTING"
	StateReleased   State = "RELEASED"
	StateAborted    State = "ABORTED"
)

// Request is one sandbox execution request: the bundle under test, the
// policy profile governing its resource caps and import allowlist, and the
// capability suites the orchestrator expects to run.
type Request struct {
	JobID       string
	AttemptID   string
	Bundle      bundle.Bundle
	Profile     policy.Profile
	EntryPoint  string
	Suites      []string
	Timeout     time.Duration
}

// ResourceUsage is per-attempt telemetry captured alongside the report, used
// for the resource usage telemetry supplement (SPEC_FULL.md, Supplemented
// features). Only WallClock is filled in by the runners.
type ResourceUsage struct {
	WallClock   time.Duration
	CPUSeconds  float64
	MemoryBytes int64
}

// Result is everything a sandbox execution produces.
type Result struct {
	Report report.Report
	Usage  ResourceUsage
	State  State
}

// Runner executes one candidate bundle's test suites inside an isolated
// environment and returns a structured report. Implementations never mutate
// the host beyond their own ephemeral workspace, and must tear that
// workspace down on every exit path, including cancellation.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}
