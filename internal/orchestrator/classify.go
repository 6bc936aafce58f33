package orchestrator

import (
	"github.com/moduleforge/builder/internal/builderrors"
	"github.com/moduleforge/builder/internal/report"
)

// FailureClass is the outcome of classifying one attempt's failure, per
// spec §4.6's tie-break: TERMINAL wins over NON_PROGRESSING, which wins
// over RETRYABLE.
type FailureClass string

const (
	ClassNone           FailureClass = ""
	ClassTerminal       FailureClass = "TERMINAL"
	ClassNonProgressing FailureClass = "NON_PROGRESSING"
	ClassRetryable      FailureClass = "RETRYABLE"
)

// ClassifyReport determines an attempt's failure class from its merged
// report and the job's attempt history. prevFingerprint is the immediately
// preceding attempt's report fingerprint, or "" if this is the first.
func ClassifyReport(rep report.Report, prevFingerprint string) FailureClass {
	if rep.Validated() {
		return ClassNone
	}
	if rep.HasTerminalFinding() {
		return ClassTerminal
	}
	fp := rep.Fingerprint()
	if prevFingerprint != "" && fp == prevFingerprint {
		return ClassNonProgressing
	}
	return ClassRetryable
}

// ClassifyError determines an attempt's failure class from a component
// error (Gateway/Sandbox), independent of any report — e.g. BUDGET_EXHAUSTED
// never produces a report at all.
func ClassifyError(err error) FailureClass {
	be, ok := err.(*builderrors.Error)
	if !ok {
		return ClassRetryable
	}
	if be.Terminal() {
		return ClassTerminal
	}
	if be.Retryable() {
		return ClassRetryable
	}
	return ClassTerminal
}

// thrashThreshold is the number of consecutive NON_PROGRESSING
// classifications that converts the failure into a terminal THRASH, per
// spec §3's FailureFingerprint-based thrash detection. A NON_PROGRESSING
// classification already means the current attempt's fingerprint repeats
// the immediately preceding one, so a single occurrence is itself two
// consecutive identical fingerprints — the threshold trips on the first one.
const thrashThreshold = 1

// IsThrashing reports whether the job's recent attempt history has hit the
// repeated-fingerprint threshold that ends a job without further repair.
func IsThrashing(attempts []Attempt) bool {
	consecutive := 0
	for i := len(attempts) - 1; i >= 0; i-- {
		if attempts[i].Class != ClassNonProgressing {
			break
		}
		consecutive++
		if consecutive >= thrashThreshold {
			return true
		}
	}
	return false
}
