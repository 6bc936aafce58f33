package orchestrator

import (
	"github.com/moduleforge/builder/internal/bundle"
	"github.com/moduleforge/builder/internal/report"
)

// RecordAttempt appends a completed attempt to a job's history. Callers read
// the attempt's own Class to decide whether to repair, attest, or fail.
func RecordAttempt(job *BuildJob, a Attempt) {
	job.Attempts = append(job.Attempts, a)
}

// PreviousFingerprint returns the fingerprint of the most recently recorded
// attempt, or "" if none has been recorded yet. Callers invoke this before
// RecordAttempt appends the attempt currently being classified, so the last
// entry in job.Attempts is the one immediately preceding it, not two behind.
func PreviousFingerprint(job *BuildJob) string {
	if len(job.Attempts) < 1 {
		return ""
	}
	return job.Attempts[len(job.Attempts)-1].Fingerprint
}

// nextAttemptNumber returns the 1-based number the next attempt should use.
func nextAttemptNumber(job *BuildJob) int {
	return job.AttemptCount() + 1
}

// buildAttempt assembles an Attempt record from a VALIDATE result.
func buildAttempt(number int, b bundle.Bundle, rep report.Report, prevFingerprint string) Attempt {
	return Attempt{
		Number:      number,
		Bundle:      b,
		Report:      rep,
		Fingerprint: rep.Fingerprint(),
		Class:       ClassifyReport(rep, prevFingerprint),
	}
}
