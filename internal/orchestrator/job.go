// Package orchestrator implements the Build Orchestrator: the
// INIT→SCAFFOLD→IMPLEMENT→VALIDATE→(ATTEST|REPAIR) saga that owns a
// BuildJob end to end, per spec §4.6.
package orchestrator

import (
	"time"

	"github.com/moduleforge/builder/internal/bundle"
	"github.com/moduleforge/builder/internal/idtypes"
	"github.com/moduleforge/builder/internal/policy"
	"github.com/moduleforge/builder/internal/report"
)

// Stage is one point in a BuildJob's lifecycle, per spec §4.6.
type Stage string

const (
	StageInit      Stage = "INIT"
	StageScaffold  Stage = "SCAFFOLD"
	StageImplement Stage = "IMPLEMENT"
	StageValidate  Stage = "VALIDATE"
	StageRepair    Stage = "REPAIR"
	StageAttest    Stage = "ATTEST"
	StageFailed    Stage = "FAILED"
	StageAborted   Stage = "ABORTED"
)

// BuildJob is the Orchestrator's exclusively-owned unit of work.
type BuildJob struct {
	JobID         idtypes.JobID
	CorrelationID idtypes.CorrelationID
	ModuleID      idtypes.ModuleID
	Intent        string
	Profile       policy.Profile
	Stage         Stage
	Attempts      []Attempt
	CreatedAt     time.Time
	Deadline      time.Time
}

// Attempt is one IMPLEMENT+VALIDATE cycle of a BuildJob.
type Attempt struct {
	Number      int
	Bundle      bundle.Bundle
	Report      report.Report
	Fingerprint string
	Class       FailureClass
	StartedAt   time.Time
	FinishedAt  time.Time
}

// LatestAttempt returns the most recent attempt, or the zero value if none
// has run yet.
func (j *BuildJob) LatestAttempt() (Attempt, bool) {
	if len(j.Attempts) == 0 {
		return Attempt{}, false
	}
	return j.Attempts[len(j.Attempts)-1], true
}

// AttemptCount reports how many attempts have run so far.
func (j *BuildJob) AttemptCount() int { return len(j.Attempts) }
