package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/moduleforge/builder/internal/builderrors"
	"github.com/moduleforge/builder/internal/idtypes"
)

var validate = validator.New()

// forbiddenPathPrefixes blocks a generated response from writing outside the
// module's own tree, mirroring internal/bundle/store.go's traversal guard.
var forbiddenPathPrefixes = []string{"/", "..", "~"}

// markdownFence is the telltale a provider wrapped JSON in a ```-fenced code
// block instead of returning raw JSON, per spec §6.3.
const markdownFence = "```"

// ParseResponse decodes and validates a provider's raw completion text
// against the GenerateResponse contract. Any failure is a *builderrors.Error
// with KindSchemaInvalid — the Gateway, not the provider, is the sole place
// that raises SCHEMA_INVALID (spec §9(c)). moduleID scopes the path
// allowlist check to the module this response is supposed to be building.
func ParseResponse(raw string, moduleID idtypes.ModuleID) (GenerateResponse, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.Contains(trimmed, markdownFence) {
		return GenerateResponse{}, builderrors.New(builderrors.KindSchemaInvalid,
			"response contains markdown code fences, expected raw JSON")
	}
	var resp GenerateResponse
	if err := json.Unmarshal([]byte(trimmed), &resp); err != nil {
		return GenerateResponse{}, builderrors.Wrap(builderrors.KindSchemaInvalid,
			"response is not valid JSON", err)
	}
	if err := ValidateResponse(resp, moduleID); err != nil {
		return GenerateResponse{}, err
	}
	return resp, nil
}

const (
	maxChangedFiles  = 200
	maxBytesPerFile  = 1 << 20 // 1 MiB
)

// ValidateResponse enforces the structural and path-safety contract a
// GenerateResponse must satisfy regardless of which provider produced it,
// including spec §6.3's requirement that every path live under the target
// module's own tree (modules/<category>/<platform>/).
func ValidateResponse(resp GenerateResponse, moduleID idtypes.ModuleID) error {
	if resp.Stage == "" {
		return builderrors.New(builderrors.KindSchemaInvalid, "missing stage")
	}
	if len(resp.ChangedFiles) > maxChangedFiles {
		return builderrors.New(builderrors.KindSchemaInvalid,
			fmt.Sprintf("changed_files exceeds limit of %d", maxChangedFiles))
	}
	base := moduleID.BasePath()
	seen := make(map[string]struct{}, len(resp.ChangedFiles))
	for _, f := range resp.ChangedFiles {
		if err := validateRelativePath(f.Path, base); err != nil {
			return err
		}
		if len(f.Content) > maxBytesPerFile {
			return builderrors.New(builderrors.KindSchemaInvalid,
				fmt.Sprintf("file %q exceeds per-file byte limit", f.Path))
		}
		if _, dup := seen[f.Path]; dup {
			return builderrors.New(builderrors.KindSchemaInvalid,
				fmt.Sprintf("duplicate path %q in changed_files", f.Path))
		}
		seen[f.Path] = struct{}{}
	}
	for _, p := range resp.DeletedFiles {
		if err := validateRelativePath(p, base); err != nil {
			return err
		}
	}
	return nil
}

func validateRelativePath(p, base string) error {
	if p == "" {
		return builderrors.New(builderrors.KindSchemaInvalid, "empty file path")
	}
	for _, bad := range forbiddenPathPrefixes {
		if strings.HasPrefix(p, bad) || strings.Contains(p, "/../") || strings.HasSuffix(p, "/..") {
			return builderrors.New(builderrors.KindSchemaInvalid,
				fmt.Sprintf("unsafe file path %q", p))
		}
	}
	if !strings.HasPrefix(p, base) {
		return builderrors.New(builderrors.KindSchemaInvalid,
			fmt.Sprintf("file path %q is not under required prefix %q", p, base))
	}
	return nil
}

// ValidateCriticScore enforces the rubric's declared range, per spec §4.4.
func ValidateCriticScore(s CriticScore) error {
	for name, v := range map[string]float64{
		"completeness":        s.Completeness,
		"feasibility":         s.Feasibility,
		"edge_case_handling":  s.EdgeCases,
		"efficiency_quality":  s.Efficiency,
	} {
		if v < 0 || v > 1 {
			return builderrors.New(builderrors.KindSchemaInvalid,
				fmt.Sprintf("critic score field %q out of range [0,1]: %v", name, v))
		}
	}
	return nil
}

// structValidate is kept for request-side structs carrying validator tags,
// consistent with internal/manifest and internal/policy's use of the same
// library for contract enforcement.
func structValidate(v any) error {
	if err := validate.Struct(v); err != nil {
		return builderrors.Wrap(builderrors.KindSchemaInvalid, "request validation failed", err)
	}
	return nil
}
