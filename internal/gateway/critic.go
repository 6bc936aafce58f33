package gateway

import (
	"context"
	"encoding/json"

	"github.com/moduleforge/builder/internal/builderrors"
)

// CriticGate applies the fixed-weight confidence rubric to a scaffold plan
// by issuing a PurposeCritic call, per spec §4.4 and DESIGN.md's Open
// Question decision: the gate is optional and scoped to the SCAFFOLD stage
// only, never re-applied during REPAIR.
type CriticGate struct {
	gw *Gateway
}

func NewCriticGate(gw *Gateway) *CriticGate {
	return &CriticGate{gw: gw}
}

// Score asks the critic lane to grade a scaffold plan and returns the
// parsed, range-validated score. It does not itself decide pass/fail —
// callers use CriticScore.Passes().
func (c *CriticGate) Score(ctx context.Context, req GenerateRequest, plan ScaffoldPlan) (CriticScore, error) {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return CriticScore{}, builderrors.Wrap(builderrors.KindSchemaInvalid, "failed to marshal scaffold plan for critic", err)
	}
	criticReq := req
	criticReq.Purpose = PurposeCritic
	criticReq.Prompt = "Score this scaffold plan on completeness, feasibility, edge case handling, and efficiency/quality, each 0..1, with a short critique.\n\n" + string(planJSON)

	raw, err := c.gw.completeRaw(ctx, criticReq)
	if err != nil {
		return CriticScore{}, err
	}
	var score CriticScore
	if err := json.Unmarshal([]byte(raw.RawJSON), &score); err != nil {
		return CriticScore{}, builderrors.Wrap(builderrors.KindSchemaInvalid, "critic response is not valid JSON", err)
	}
	if err := ValidateCriticScore(score); err != nil {
		return CriticScore{}, err
	}
	return score, nil
}
