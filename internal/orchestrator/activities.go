package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/moduleforge/builder/internal/analyzer"
	"github.com/moduleforge/builder/internal/attestation"
	"github.com/moduleforge/builder/internal/builderrors"
	"github.com/moduleforge/builder/internal/bundle"
	"github.com/moduleforge/builder/internal/gateway"
	"github.com/moduleforge/builder/internal/idtypes"
	"github.com/moduleforge/builder/internal/manifest"
	"github.com/moduleforge/builder/internal/policy"
	"github.com/moduleforge/builder/internal/report"
	"github.com/moduleforge/builder/internal/sandbox"
)

// Activities bundles the external collaborators the workflow's activity
// functions need, constructed once at worker start and injected — no
// package-level globals, per spec §9's re-architecture direction.
type Activities struct {
	Gateway  *gateway.Gateway
	Critic   *gateway.CriticGate
	Sandbox  sandbox.Runner
	Store    BundleStore
	Registry *Registry
}

// BundleStore is the subset of internal/bundle/store.go's persistence API
// the Orchestrator needs, narrowed to an interface so activities.go stays
// testable without a filesystem.
type BundleStore interface {
	Write(root, jobID, attemptID string, b bundle.Bundle, moduleID, stage string) (bundle.IndexFile, error)
	Read(root, attemptID string) (bundle.Bundle, bundle.IndexFile, error)
}

// FileBundleStore adapts internal/bundle's package-level Write/Read
// functions to the BundleStore interface.
type FileBundleStore struct{}

func (FileBundleStore) Write(root, jobID, attemptID string, b bundle.Bundle, moduleID, stage string) (bundle.IndexFile, error) {
	return bundle.Write(root, jobID, attemptID, b, moduleID, stage)
}

func (FileBundleStore) Read(root, attemptID string) (bundle.Bundle, bundle.IndexFile, error) {
	return bundle.Read(root, attemptID)
}

func NewActivities(gw *gateway.Gateway, runner sandbox.Runner, store BundleStore, registry *Registry) *Activities {
	return &Activities{
		Gateway:  gw,
		Critic:   gateway.NewCriticGate(gw),
		Sandbox:  runner,
		Store:    store,
		Registry: registry,
	}
}

// ScaffoldInput/Output are the activity's typed request/response, kept
// separate from GenerateRequest/Response so the workflow layer never
// depends directly on the Gateway's wire contract.
type ScaffoldInput struct {
	Job gateway.GenerateRequest
}

type ScaffoldOutput struct {
	Files       map[string][]byte
	Assumptions []string
}

// ScaffoldActivity asks the Gateway to propose an initial file set for the
// module's intent, optionally gated by the critic confidence rubric when
// the profile enables it (spec §9(b): SCAFFOLD-only, optional).
func (a *Activities) ScaffoldActivity(ctx context.Context, in ScaffoldInput, profile policy.Profile) (ScaffoldOutput, error) {
	req := in.Job
	req.Purpose = gateway.PurposeCodegen
	resp, err := a.Gateway.Generate(ctx, req)
	if err != nil {
		return ScaffoldOutput{}, err
	}

	if profile.CriticGateEnabled {
		plan := gateway.ScaffoldPlan{Assumptions: resp.Assumptions}
		for _, f := range resp.ChangedFiles {
			plan.Files = append(plan.Files, f.Path)
		}
		score, err := a.Critic.Score(ctx, req, plan)
		if err != nil {
			return ScaffoldOutput{}, err
		}
		if !score.Passes() {
			return ScaffoldOutput{}, builderrors.New(builderrors.KindContractViolation,
				fmt.Sprintf("scaffold plan failed confidence gate: score=%.2f critique=%q", score.Weighted(), score.Critique))
		}
	}

	files := make(map[string][]byte, len(resp.ChangedFiles))
	for _, f := range resp.ChangedFiles {
		files[f.Path] = []byte(f.Content)
	}
	return ScaffoldOutput{Files: files, Assumptions: resp.Assumptions}, nil
}

// ImplementInput/Output drive one repair-or-initial code generation pass
// and apply its diff onto the previous attempt's bundle.
type ImplementInput struct {
	Job   gateway.GenerateRequest
	Base  bundle.Bundle
	First bool
}

type ImplementOutput struct {
	Bundle bundle.Bundle
}

func (a *Activities) ImplementActivity(ctx context.Context, in ImplementInput) (ImplementOutput, error) {
	req := in.Job
	if in.First {
		req.Purpose = gateway.PurposeCodegen
	} else {
		req.Purpose = gateway.PurposeRepair
	}
	resp, err := a.Gateway.Generate(ctx, req)
	if err != nil {
		return ImplementOutput{}, err
	}
	changed := make(map[string][]byte, len(resp.ChangedFiles))
	for _, f := range resp.ChangedFiles {
		changed[f.Path] = []byte(f.Content)
	}
	merged := bundle.Merge(in.Base, changed, resp.DeletedFiles)
	return ImplementOutput{Bundle: merged}, nil
}

// ValidateInput/Output run the Static Analyzer, then (unless it already
// found a terminal finding) the Sandbox Runner, and merge the results, per
// spec §4.6 VALIDATE.
type ValidateInput struct {
	JobID      string
	AttemptID  string
	Bundle     bundle.Bundle
	Profile    policy.Profile
	Manifest   manifest.Manifest
	EntryPoint string
	Timeout    time.Duration
}

type ValidateOutput struct {
	Report report.Report
}

func (a *Activities) ValidateActivity(ctx context.Context, in ValidateInput) (ValidateOutput, error) {
	static := analyzer.Analyze(in.Bundle, in.Profile)
	if static.HasTerminalFinding() {
		return ValidateOutput{Report: static}, nil
	}

	result, err := a.Sandbox.Run(ctx, sandbox.Request{
		JobID:      in.JobID,
		AttemptID:  in.AttemptID,
		Bundle:     in.Bundle,
		Profile:    in.Profile,
		EntryPoint: in.EntryPoint,
		Suites:     in.Manifest.RequiredSuitesFor(),
		Timeout:    in.Timeout,
	})
	if err != nil {
		return ValidateOutput{}, err
	}
	merged := report.Merge(static, result.Report)
	return ValidateOutput{Report: merged}, nil
}

// AttestInput/Output freeze a validated bundle and produce an attestation
// record, per spec §4.6 ATTEST.
type AttestInput struct {
	JobID            string
	ModuleID         string
	Version          string
	Bundle           bundle.Bundle
	Report           report.Report
	ValidatorBuildID string
}

type AttestOutput struct {
	Attestation attestation.Attestation
}

func (a *Activities) AttestActivity(ctx context.Context, in AttestInput) (AttestOutput, error) {
	if !in.Report.Validated() {
		return AttestOutput{}, builderrors.New(builderrors.KindContractViolation, "attempted to attest a non-validated report")
	}
	att := attestation.New(attestation.Input{
		JobID:            in.JobID,
		ModuleID:         in.ModuleID,
		Version:          in.Version,
		BundleDigest:     in.Bundle.Digest(),
		ValidatorBuildID: in.ValidatorBuildID,
	})
	if id, err := idtypes.ParseModuleID(in.ModuleID); err == nil {
		a.Registry.Register(RegistryEntry{
			ModuleID:      id,
			Version:       in.Version,
			BundleDigest:  in.Bundle.Digest(),
			AttestationID: att.ID,
		})
	}
	return AttestOutput{Attestation: att}, nil
}
