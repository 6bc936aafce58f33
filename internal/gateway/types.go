package gateway

import (
	"time"

	"github.com/moduleforge/builder/internal/idtypes"
	"github.com/moduleforge/builder/internal/report"
)

// Purpose is the Gateway's per-purpose routing key, per spec §4.4.
type Purpose string

const (
	PurposeCodegen Purpose = "codegen"
	PurposeRepair  Purpose = "repair"
	PurposeCritic  Purpose = "critic"
)

// ChangedFile is one file a GenerateResponse proposes to add or overwrite.
type ChangedFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// GenerateRequest is the Gateway's request contract, per spec §3.
type GenerateRequest struct {
	Purpose       Purpose `validate:"required,oneof=codegen repair critic"`
	Prompt        string  `validate:"required"`
	SchemaID      string  `validate:"required"`
	ModuleID      idtypes.ModuleID
	CorrelationID idtypes.CorrelationID
	// BudgetHintTokens is the maximum tokens this call may consume; the budget
	// ledger is still the authority, this is advisory to the provider.
	BudgetHintTokens int `validate:"gte=0"`
}

// GenerateResponse is the Gateway's response contract, per spec §6.3.
type GenerateResponse struct {
	Stage        string            `json:"stage"`
	Module       string            `json:"module"`
	ChangedFiles []ChangedFile     `json:"changed_files"`
	DeletedFiles []string          `json:"deleted_files"`
	Assumptions  []string          `json:"assumptions"`
	Rationale    string            `json:"rationale"`
	Policy       map[string]any    `json:"policy"`
	// SelfReport is the provider's own advisory validation assessment. It
	// is never authoritative — see spec §6.3.
	SelfReport report.Report `json:"validation_report"`
}

// ScaffoldPlan is the structured response to a scaffold-stage request.
type ScaffoldPlan struct {
	Files        []string `json:"files"`
	Assumptions  []string `json:"assumptions"`
	Capabilities []string `json:"capabilities"`
}

// CriticScore is the confidence-gate rubric score for a scaffold plan, per
// spec §4.4.
type CriticScore struct {
	Completeness float64 `json:"completeness"`
	Feasibility  float64 `json:"feasibility"`
	EdgeCases    float64 `json:"edge_case_handling"`
	Efficiency   float64 `json:"efficiency_quality"`
	Critique     string  `json:"critique"`
}

// rubricWeights are the fixed weights from spec §4.4.
const (
	weightCompleteness = 0.3
	weightFeasibility  = 0.3
	weightEdgeCases    = 0.2
	weightEfficiency   = 0.2
	passingScore       = 0.6
)

// Weighted computes the rubric's fixed-weighted composite score.
func (s CriticScore) Weighted() float64 {
	return s.Completeness*weightCompleteness +
		s.Feasibility*weightFeasibility +
		s.EdgeCases*weightEdgeCases +
		s.Efficiency*weightEfficiency
}

// Passes reports whether the score clears the confidence gate.
func (s CriticScore) Passes() bool { return s.Weighted() >= passingScore }

// CallRecord is a debit line against the budget ledger.
type CallRecord struct {
	Provider  string
	Org       string
	Tokens    int
	CostCents int64
	At        time.Time
}
