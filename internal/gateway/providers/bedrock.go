package providers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/moduleforge/builder/internal/gateway"
)

// Bedrock is the deterministic fallback provider behind Anthropic, per
// SPEC_FULL.md §4.4. It targets an Anthropic-compatible model hosted on
// Bedrock so the same prompt/schema contract applies to both lanes.
type Bedrock struct {
	client  *bedrockruntime.Client
	modelID string
}

func NewBedrock(client *bedrockruntime.Client, modelID string) *Bedrock {
	return &Bedrock{client: client, modelID: modelID}
}

func (b *Bedrock) Name() string { return "bedrock" }

type bedrockAnthropicBody struct {
	AnthropicVersion string                   `json:"anthropic_version"`
	MaxTokens        int                      `json:"max_tokens"`
	Messages         []bedrockAnthropicMessage `json:"messages"`
}

type bedrockAnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockAnthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (b *Bedrock) Complete(ctx context.Context, req gateway.GenerateRequest) (gateway.ProviderResult, error) {
	maxTokens := req.BudgetHintTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body, err := json.Marshal(bedrockAnthropicBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Messages:         []bedrockAnthropicMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return gateway.ProviderResult{ErrorClass: gateway.ClassFatal, ErrorMessage: err.Error()}, err
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return gateway.ProviderResult{ErrorClass: classifyBedrockError(err), ErrorMessage: err.Error()}, err
	}

	var parsed bedrockAnthropicResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		// Malformed provider body: surfaced to the Gateway's schema layer
		// as un-parseable, not reassembled, per spec §9(c).
		return gateway.ProviderResult{RawJSON: string(out.Body)}, nil
	}
	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return gateway.ProviderResult{
		RawJSON:    text,
		TokensUsed: parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
	}, nil
}

func classifyBedrockError(err error) gateway.ProviderErrorClass {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case 401, 403:
			return gateway.ClassAuth
		case 429:
			return gateway.ClassTransient
		}
		if respErr.HTTPStatusCode() >= 500 {
			return gateway.ClassTransient
		}
	}
	return gateway.ClassFatal
}
