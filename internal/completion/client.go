// Package completion is the narrow chat-completion adapter the Planner
// client calls through. spec.md §9 deliberately keeps a specific HTTP
// client out of the core: "a thin interface Complete(systemPrompt,
// userPrompt) -> content suffices". This package is that thin interface,
// backed by github.com/openai/openai-go (the OPENAI_API_KEY environment
// requirement of §6 implies the OpenAI chat completions endpoint).
//
// Grounded on goadesign-goa-ai's features/model/anthropic/client.go: the
// same shape — a narrow *Service-subset interface so a fake can stand in
// for the real SDK client in tests, an Options struct for model/temperature
// defaults, and a constructor that validates those defaults eagerly —
// applied here to OpenAI's Chat Completions service instead of Anthropic's
// Messages service.
package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Service captures the subset of the OpenAI SDK used by this adapter. It is
// satisfied by the real openai.Client's Chat.Completions field so callers
// can substitute a fake in tests.
type Service interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Options configures adapter defaults.
type Options struct {
	// Model is the fixed model name used for every completion call.
	Model string
	// Temperature is the default sampling temperature (§4.8 fixes 0.2).
	Temperature float64
}

// Client implements Complete on top of an OpenAI-shaped chat completions
// service.
type Client struct {
	svc   Service
	model string
	temp  float64
}

// New builds a Client from the given OpenAI API key and Options.
func New(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("an API key is required")
	}
	if opts.Model == "" {
		return nil, errors.New("a model identifier is required")
	}
	sdk := openai.NewClient(option.WithAPIKey(apiKey))
	return NewFromService(sdk.Chat.Completions, opts)
}

// NewFromService builds a Client from an already-constructed Service,
// letting tests inject a fake.
func NewFromService(svc Service, opts Options) (*Client, error) {
	if svc == nil {
		return nil, errors.New("a completions service is required")
	}
	if opts.Model == "" {
		return nil, errors.New("a model identifier is required")
	}
	return &Client{svc: svc, model: opts.Model, temp: opts.Temperature}, nil
}

// Complete sends systemPrompt and userPrompt as the two messages of a
// single chat-completion call and returns the assistant's text content.
// The single-message, single-response shape matches what the Planner
// client needs (§4.8); it never exposes streaming or tool calls, keeping
// the interface the thin shim spec.md §9 asks for.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.svc.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(c.temp),
	})
	if err != nil {
		return "", translateError(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func translateError(err error) error {
	return fmt.Errorf("completion call failed: %w", err)
}
