package orchestrator

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/moduleforge/builder/internal/bundle"
	"github.com/moduleforge/builder/internal/gateway"
	"github.com/moduleforge/builder/internal/manifest"
	"github.com/moduleforge/builder/internal/report"
)

// BuildWorkflowRequest is the Temporal workflow's input: everything needed
// to run a BuildJob from INIT to ATTEST/FAILED without further external
// input (spec §4.6's saga is self-contained once started).
type BuildWorkflowRequest struct {
	Job        BuildJob
	Prompt     string
	SchemaID   string
	EntryPoint string
	Manifest   manifest.Manifest
	ValidatorBuildID string
}

// BuildWorkflowResult is what BuildWorkflow returns on completion, success
// or otherwise.
type BuildWorkflowResult struct {
	FinalStage  Stage
	Bundle      bundle.Bundle
	Report      report.Report
	AttestedID  string
	FailureKind string
}

const (
	activityScaffold  = "ScaffoldActivity"
	activityImplement = "ImplementActivity"
	activityValidate  = "ValidateActivity"
	activityAttest    = "AttestActivity"
)

// generateActivityOptions bounds every Gateway-calling activity with the
// retry policy appropriate for network calls to an LLM provider; the
// Gateway does its own provider-level retry/backoff, so the workflow layer
// only needs a conservative outer bound against an activity worker crash.
func generateActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	}
}

// validateActivityOptions bounds the sandbox-invoking activity; no
// workflow-level retry, because a failed validation is meaningful data for
// the next repair attempt rather than a transient fault to retry blindly.
func validateActivityOptions(timeout time.Duration) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout + time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
}

func attestActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
}

// BuildWorkflow drives one BuildJob through
// INIT→SCAFFOLD→IMPLEMENT→VALIDATE→(ATTEST|REPAIR), bound by the job's
// policy profile's MaxRepairAttempts, per spec §4.6.
func BuildWorkflow(ctx workflow.Context, req BuildWorkflowRequest) (BuildWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	job := req.Job
	job.Stage = StageScaffold

	baseReq := gateway.GenerateRequest{
		Prompt:           req.Prompt,
		SchemaID:         req.SchemaID,
		ModuleID:         job.ModuleID,
		CorrelationID:    job.CorrelationID,
		BudgetHintTokens: 4096,
	}

	var scaffold ScaffoldOutput
	if err := workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, generateActivityOptions()),
		activityScaffold, ScaffoldInput{Job: baseReq}, job.Profile).Get(ctx, &scaffold); err != nil {
		logger.Error("scaffold failed", "error", err)
		return BuildWorkflowResult{FinalStage: StageFailed, FailureKind: err.Error()}, nil
	}

	base := bundle.Build(scaffold.Files)
	job.Stage = StageImplement

	for attemptNum := 1; attemptNum <= job.Profile.MaxRepairAttempts; attemptNum++ {
		implReq := baseReq
		var implOut ImplementOutput
		implErr := workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, generateActivityOptions()),
			activityImplement, ImplementInput{Job: implReq, Base: base, First: attemptNum == 1}).Get(ctx, &implOut)
		if implErr != nil {
			class := classifyWorkflowError(implErr)
			if class == ClassTerminal {
				return BuildWorkflowResult{FinalStage: StageFailed, FailureKind: implErr.Error()}, nil
			}
			continue
		}

		job.Stage = StageValidate
		timeout := time.Duration(job.Profile.WallClockSec) * time.Second
		var valOut ValidateOutput
		valErr := workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, validateActivityOptions(timeout)),
			activityValidate, ValidateInput{
				JobID:      job.JobID.String(),
				AttemptID:  fmt.Sprintf("%s-%d", job.JobID.String(), attemptNum),
				Bundle:     implOut.Bundle,
				Profile:    job.Profile,
				Manifest:   req.Manifest,
				EntryPoint: req.EntryPoint,
				Timeout:    timeout,
			}).Get(ctx, &valOut)
		if valErr != nil {
			class := classifyWorkflowError(valErr)
			if class == ClassTerminal {
				return BuildWorkflowResult{FinalStage: StageFailed, FailureKind: valErr.Error()}, nil
			}
			continue
		}

		prevFP := PreviousFingerprint(&job)
		attempt := buildAttempt(attemptNum, implOut.Bundle, valOut.Report, prevFP)
		RecordAttempt(&job, attempt)

		if attempt.Class == ClassNone {
			job.Stage = StageAttest
			var attOut AttestOutput
			if err := workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, attestActivityOptions()),
				activityAttest, AttestInput{
					JobID:            job.JobID.String(),
					ModuleID:         job.ModuleID.String(),
					Version:          req.Manifest.Version,
					Bundle:           implOut.Bundle,
					Report:           valOut.Report,
					ValidatorBuildID: req.ValidatorBuildID,
				}).Get(ctx, &attOut); err != nil {
				return BuildWorkflowResult{FinalStage: StageFailed, FailureKind: err.Error()}, nil
			}
			return BuildWorkflowResult{
				FinalStage: StageAttest,
				Bundle:     implOut.Bundle,
				Report:     valOut.Report,
				AttestedID: attOut.Attestation.ID,
			}, nil
		}

		if attempt.Class == ClassTerminal {
			return BuildWorkflowResult{FinalStage: StageFailed, Bundle: implOut.Bundle, Report: valOut.Report}, nil
		}
		if IsThrashing(job.Attempts) {
			return BuildWorkflowResult{FinalStage: StageFailed, Bundle: implOut.Bundle, Report: valOut.Report, FailureKind: "THRASH"}, nil
		}

		base = implOut.Bundle
		job.Stage = StageRepair
		repairPrompt := req.Prompt
		if hint := valOut.Report.PriorityFixHint(); hint != nil {
			repairPrompt = fmt.Sprintf("%s\n\nPrevious attempt failed: %s\nSuggested fix: %s", req.Prompt, hint.Description, hint.Suggestion)
		}
		baseReq.Prompt = repairPrompt
	}

	return BuildWorkflowResult{FinalStage: StageFailed, FailureKind: "max repair attempts exhausted"}, nil
}

// classifyWorkflowError turns an activity error into a FailureClass using
// the same component-error classification the VALIDATE path uses, so a
// PROVIDER_AUTH failure from the Gateway ends the job the same way a
// POLICY_VIOLATION finding would.
func classifyWorkflowError(err error) FailureClass {
	return ClassifyError(unwrapActivityError(err))
}

// unwrapActivityError best-effort extracts the original *builderrors.Error
// from a Temporal ActivityError wrapper so classification logic doesn't
// need to know about Temporal's error types.
func unwrapActivityError(err error) error {
	type causer interface{ Unwrap() error }
	for err != nil {
		if c, ok := err.(causer); ok {
			if next := c.Unwrap(); next != nil {
				err = next
				continue
			}
		}
		break
	}
	return err
}
