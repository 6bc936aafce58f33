// Package providers implements gateway.Provider against concrete LLM SDKs.
package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/moduleforge/builder/internal/gateway"
)

// Anthropic is the primary codegen/repair/critic provider, per
// SPEC_FULL.md §4.4.
type Anthropic struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropic builds a provider bound to apiKey and model. Credentials are
// accepted already-resolved by the caller (spec §1: the Builder does not
// itself store credentials).
func NewAnthropic(apiKey string, model anthropic.Model) *Anthropic {
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Complete(ctx context.Context, req gateway.GenerateRequest) (gateway.ProviderResult, error) {
	maxTokens := int64(req.BudgetHintTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return gateway.ProviderResult{ErrorClass: classifyError(err), ErrorMessage: err.Error()}, err
	}
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	tokens := int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
	return gateway.ProviderResult{RawJSON: text, TokensUsed: tokens}, nil
}

// classifyError maps an SDK error to the Gateway's provider error class.
// Authentication failures and transient provider errors get distinct
// treatment per spec §4.4's retry policy; anything else is fatal for this
// provider's lane.
func classifyError(err error) gateway.ProviderErrorClass {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return gateway.ClassAuth
		case http.StatusTooManyRequests:
			return gateway.ClassTransient
		}
		if apiErr.StatusCode >= 500 {
			return gateway.ClassTransient
		}
	}
	return gateway.ClassFatal
}
