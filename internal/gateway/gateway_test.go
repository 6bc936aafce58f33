package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/moduleforge/builder/internal/builderrors"
	"github.com/moduleforge/builder/internal/gateway/providers"
	"github.com/moduleforge/builder/internal/idtypes"
)

func validJSONResponse() string {
	return `{"stage":"SCAFFOLD","module":"crm/acme","changed_files":[{"path":"modules/crm/acme/adapter.py","content":"x"}],"deleted_files":[],"assumptions":[],"rationale":"ok","policy":{}}`
}

func baseRequest() GenerateRequest {
	return GenerateRequest{
		Purpose:          PurposeCodegen,
		Prompt:           "build it",
		SchemaID:         "scaffold.v1",
		ModuleID:         idtypes.ModuleID{Category: "crm", Platform: "acme"},
		BudgetHintTokens: 100,
	}
}

func TestGenerateSucceedsOnFirstProvider(t *testing.T) {
	p := &providers.Scripted{
		ProviderName: "primary",
		Responses:    []ProviderResult{{RawJSON: validJSONResponse()}},
	}
	g := New(NewRouter(ProviderChain{Purpose: PurposeCodegen, Providers: []Provider{p}}))
	resp, err := g.Generate(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if resp.Module != "crm/acme" {
		t.Fatalf("unexpected module %q", resp.Module)
	}
	if p.Calls() != 1 {
		t.Fatalf("expected 1 call, got %d", p.Calls())
	}
}

func TestGenerateRetriesTransientThenSucceeds(t *testing.T) {
	p := &providers.Scripted{
		ProviderName: "primary",
		Responses: []ProviderResult{
			{ErrorClass: ClassTransient, ErrorMessage: "503"},
			{RawJSON: validJSONResponse()},
		},
	}
	g := New(NewRouter(ProviderChain{Purpose: PurposeCodegen, Providers: []Provider{p}}))
	resp, err := g.Generate(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if resp.Stage != "SCAFFOLD" {
		t.Fatalf("unexpected stage %q", resp.Stage)
	}
	if p.Calls() != 2 {
		t.Fatalf("expected 2 calls, got %d", p.Calls())
	}
}

func TestGenerateAuthFailureAdvancesFallbackWithoutRetry(t *testing.T) {
	primary := &providers.Scripted{
		ProviderName: "primary",
		Responses:    []ProviderResult{{ErrorClass: ClassAuth, ErrorMessage: "401"}},
	}
	fallback := &providers.Scripted{
		ProviderName: "fallback",
		Responses:    []ProviderResult{{RawJSON: validJSONResponse()}},
	}
	g := New(NewRouter(ProviderChain{Purpose: PurposeCodegen, Providers: []Provider{primary, fallback}}))
	resp, err := g.Generate(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("expected fallback success, got %v", err)
	}
	if resp.Stage != "SCAFFOLD" {
		t.Fatalf("unexpected stage %q", resp.Stage)
	}
	if primary.Calls() != 1 {
		t.Fatalf("expected exactly 1 call to primary (no retry on auth), got %d", primary.Calls())
	}
}

func TestGenerateRejectsMarkdownFencedResponse(t *testing.T) {
	p := &providers.Scripted{
		ProviderName: "primary",
		Responses:    []ProviderResult{{RawJSON: "```json\n" + validJSONResponse() + "\n```"}},
	}
	g := New(NewRouter(ProviderChain{Purpose: PurposeCodegen, Providers: []Provider{p}}))
	_, err := g.Generate(context.Background(), baseRequest())
	var be *builderrors.Error
	if !errors.As(err, &be) || be.Kind != builderrors.KindSchemaInvalid {
		t.Fatalf("expected SCHEMA_INVALID, got %v", err)
	}
}

func TestGenerateExhaustsRetriesOnPersistentTransientFailure(t *testing.T) {
	responses := make([]ProviderResult, maxRetryAttempt)
	for i := range responses {
		responses[i] = ProviderResult{ErrorClass: ClassTransient, ErrorMessage: "503"}
	}
	p := &providers.Scripted{ProviderName: "primary", Responses: responses}
	g := New(NewRouter(ProviderChain{Purpose: PurposeCodegen, Providers: []Provider{p}}))
	_, err := g.Generate(context.Background(), baseRequest())
	var be *builderrors.Error
	if !errors.As(err, &be) || be.Kind != builderrors.KindProviderTransient {
		t.Fatalf("expected PROVIDER_TRANSIENT, got %v", err)
	}
	if p.Calls() != maxRetryAttempt {
		t.Fatalf("expected %d calls, got %d", maxRetryAttempt, p.Calls())
	}
}

func TestGenerateCancelledContextStopsRetryLoop(t *testing.T) {
	p := &providers.Scripted{
		ProviderName: "primary",
		Responses:    []ProviderResult{{ErrorClass: ClassTransient, ErrorMessage: "503"}},
	}
	g := New(NewRouter(ProviderChain{Purpose: PurposeCodegen, Providers: []Provider{p}}))
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	time.Sleep(2 * time.Millisecond)
	_, err := g.Generate(ctx, baseRequest())
	var be *builderrors.Error
	if !errors.As(err, &be) || be.Kind != builderrors.KindCancelled {
		t.Fatalf("expected CANCELLED, got %v", err)
	}
}
