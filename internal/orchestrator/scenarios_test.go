package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"go.temporal.io/sdk/testsuite"

	"github.com/moduleforge/builder/internal/bundle"
	"github.com/moduleforge/builder/internal/policy"
	"github.com/moduleforge/builder/internal/report"
	"github.com/moduleforge/builder/internal/sandbox"
)

func baseTestRequest() BuildWorkflowRequest {
	return BuildWorkflowRequest{
		Job: BuildJob{
			Profile: policy.Profile{MaxRepairAttempts: 3, WallClockSec: 30},
		},
		Prompt:   "build a crm adapter",
		SchemaID: "scaffold/v1",
	}
}

func validatedReport() report.Report {
	return report.Report{CapabilitySuiteResults: map[string]bool{"auth": true}}
}

func failingReport(message string) report.Report {
	return report.Report{
		Findings: []report.Finding{{
			Severity: report.SeverityError,
			Kind:     report.KindTestFailure,
			Message:  message,
			TestID:   "test_fetch_raw",
		}},
	}
}

// TestHappyPathAttestsWithinBudget covers the scenario where the first
// attempt validates cleanly and the workflow proceeds straight to ATTEST
// without ever entering REPAIR.
func TestHappyPathAttestsWithinBudget(t *testing.T) {
	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()

	env.OnActivity(activityScaffold, mock.Anything, mock.Anything, mock.Anything).
		Return(ScaffoldOutput{Files: map[string][]byte{"adapter.py": []byte("class A:\n    pass\n")}}, nil)
	env.OnActivity(activityImplement, mock.Anything, mock.Anything).
		Return(ImplementOutput{Bundle: bundle.Build(map[string][]byte{"adapter.py": []byte("class A:\n    pass\n")})}, nil)
	env.OnActivity(activityValidate, mock.Anything, mock.Anything).
		Return(ValidateOutput{Report: validatedReport()}, nil)
	env.OnActivity(activityAttest, mock.Anything, mock.Anything).
		Return(AttestOutput{}, nil)

	env.ExecuteWorkflow(BuildWorkflow, baseTestRequest())

	if !env.IsWorkflowCompleted() {
		t.Fatal("expected workflow to complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("unexpected workflow error: %v", err)
	}
	var result BuildWorkflowResult
	if err := env.GetWorkflowResult(&result); err != nil {
		t.Fatalf("get result: %v", err)
	}
	if result.FinalStage != StageAttest {
		t.Fatalf("expected ATTEST, got %s", result.FinalStage)
	}
}

// TestRepairConvergesOnSecondAttempt covers a first attempt that fails with
// a distinct fingerprint each time (so it is RETRYABLE, not
// NON_PROGRESSING) followed by a clean second attempt.
func TestRepairConvergesOnSecondAttempt(t *testing.T) {
	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()

	env.OnActivity(activityScaffold, mock.Anything, mock.Anything, mock.Anything).
		Return(ScaffoldOutput{Files: map[string][]byte{"adapter.py": []byte("class A:\n    pass\n")}}, nil)

	firstImpl := bundle.Build(map[string][]byte{"adapter.py": []byte("# attempt 1\nclass A:\n    pass\n")})
	secondImpl := bundle.Build(map[string][]byte{"adapter.py": []byte("# attempt 2\nclass A:\n    pass\n")})
	implCall := env.OnActivity(activityImplement, mock.Anything, mock.Anything).
		Return(ImplementOutput{Bundle: firstImpl}, nil).Once()
	env.OnActivity(activityImplement, mock.Anything, mock.Anything).
		Return(ImplementOutput{Bundle: secondImpl}, nil).Once().NotBefore(implCall)

	validateCall := env.OnActivity(activityValidate, mock.Anything, mock.Anything).
		Return(ValidateOutput{Report: failingReport("fetch_raw returned None")}, nil).Once()
	env.OnActivity(activityValidate, mock.Anything, mock.Anything).
		Return(ValidateOutput{Report: validatedReport()}, nil).Once().NotBefore(validateCall)

	env.OnActivity(activityAttest, mock.Anything, mock.Anything).
		Return(AttestOutput{}, nil)

	env.ExecuteWorkflow(BuildWorkflow, baseTestRequest())

	if !env.IsWorkflowCompleted() {
		t.Fatal("expected workflow to complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("unexpected workflow error: %v", err)
	}
	var result BuildWorkflowResult
	if err := env.GetWorkflowResult(&result); err != nil {
		t.Fatalf("get result: %v", err)
	}
	if result.FinalStage != StageAttest {
		t.Fatalf("expected ATTEST after converging repair, got %s", result.FinalStage)
	}
}

// TestThrashDetectedAfterRepeatedFingerprint covers two consecutive
// attempts producing the identical report fingerprint, which must end the
// job as FAILED/THRASH rather than spend the remaining repair budget.
func TestThrashDetectedAfterRepeatedFingerprint(t *testing.T) {
	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()

	env.OnActivity(activityScaffold, mock.Anything, mock.Anything, mock.Anything).
		Return(ScaffoldOutput{Files: map[string][]byte{"adapter.py": []byte("class A:\n    pass\n")}}, nil)
	env.OnActivity(activityImplement, mock.Anything, mock.Anything).
		Return(ImplementOutput{Bundle: bundle.Build(map[string][]byte{"adapter.py": []byte("class A:\n    pass\n")})}, nil)
	env.OnActivity(activityValidate, mock.Anything, mock.Anything).
		Return(ValidateOutput{Report: failingReport("fetch_raw returned None")}, nil)
	env.OnActivity(activityAttest, mock.Anything, mock.Anything).
		Return(AttestOutput{}, nil)

	req := baseTestRequest()
	req.Job.Profile.MaxRepairAttempts = 5
	env.ExecuteWorkflow(BuildWorkflow, req)

	if !env.IsWorkflowCompleted() {
		t.Fatal("expected workflow to complete")
	}
	var result BuildWorkflowResult
	if err := env.GetWorkflowResult(&result); err != nil {
		t.Fatalf("get result: %v", err)
	}
	if result.FinalStage != StageFailed {
		t.Fatalf("expected FAILED from thrash detection, got %s", result.FinalStage)
	}
	if result.FailureKind != "THRASH" {
		t.Fatalf("expected THRASH failure kind, got %q", result.FailureKind)
	}
}

// panicSandbox fails the test if VALIDATE ever reaches the Sandbox Runner;
// it stands in for the unreachable-in-this-scenario real runner.
type panicSandbox struct{ t *testing.T }

func (p panicSandbox) Run(ctx context.Context, req sandbox.Request) (sandbox.Result, error) {
	p.t.Fatal("sandbox must not run when static analysis already found a terminal policy violation")
	return sandbox.Result{}, nil
}

// TestForbiddenCallPatternShortCircuitsBeforeSandbox covers the static
// analyzer finding a terminal policy violation in VALIDATE: the Sandbox
// Runner must never be invoked for that attempt.
func TestForbiddenCallPatternShortCircuitsBeforeSandbox(t *testing.T) {
	activities := NewActivities(nil, panicSandbox{t: t}, nil, nil)

	bad := bundle.Build(map[string][]byte{
		"adapter.py": []byte("def handle(user_input):\n    eval(user_input)\n"),
	})

	out, err := activities.ValidateActivity(context.Background(), ValidateInput{
		JobID:     "job-1",
		AttemptID: "job-1-1",
		Bundle:    bad,
		Profile:   policy.Default(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Report.HasTerminalFinding() {
		t.Fatal("expected a terminal policy-violation finding")
	}
	if out.Report.Validated() {
		t.Fatal("expected the report to not validate")
	}
}
