// Package llm is the text-generation collaborator.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	apperrors "orqon-dispatch/internal/common/errors"
	"orqon-dispatch/internal/common/metrics"
)

// Provider generates text. Handlers treat every failure as "no answer" and
// fall back to canned text.
type Provider interface {
	Complete(ctx context.Context, prompt, context string) (string, error)
	// CompleteJSON asks for a single JSON object.
	CompleteJSON(ctx context.Context, prompt, context string) (string, error)
}

// Options configure the OpenAI provider.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// OpenAIProvider implements Provider with the Chat Completions API.
type OpenAIProvider struct {
	client *openai.Client
	opts   Options
}

func NewOpenAIProvider(opts Options) *OpenAIProvider {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), opts: opts}
}

func (p *OpenAIProvider) Complete(ctx context.Context, prompt, context string) (string, error) {
	return p.complete(ctx, prompt, context, false)
}

func (p *OpenAIProvider) CompleteJSON(ctx context.Context, prompt, context string) (string, error) {
	return p.complete(ctx, prompt, context, true)
}

func (p *OpenAIProvider) complete(ctx context.Context, prompt, userContext string, jsonMode bool) (string, error) {
	if p.opts.Timeout > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: p.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: userContext},
		},
		MaxTokens:   p.opts.MaxTokens,
		Temperature: p.opts.Temperature,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	metrics.ObserveCall("llm", err)
	if err != nil {
		return "", apperrors.NewUpstreamError("llm", "complete", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.NewUpstreamError("llm", "complete", fmt.Errorf("no choices returned"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
