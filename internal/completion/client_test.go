package completion

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type fakeService struct {
	resp *openai.ChatCompletion
	err  error
	last openai.ChatCompletionNewParams
}

func (f *fakeService) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	f.last = body
	return f.resp, f.err
}

func TestCompleteReturnsMessageContent(t *testing.T) {
	fake := &fakeService{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: `{"name":"p","steps":[]}`}},
		},
	}}
	c, err := NewFromService(fake, Options{Model: "gpt-4o-mini", Temperature: 0.2})
	if err != nil {
		t.Fatalf("NewFromService: %v", err)
	}

	got, err := c.Complete(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != `{"name":"p","steps":[]}` {
		t.Fatalf("Complete = %q", got)
	}
	if fake.last.Model != "gpt-4o-mini" {
		t.Fatalf("model = %q", fake.last.Model)
	}
}

func TestCompleteSurfacesUpstreamError(t *testing.T) {
	fake := &fakeService{err: errors.New("rate limited")}
	c, _ := NewFromService(fake, Options{Model: "gpt-4o-mini"})
	_, err := c.Complete(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	fake := &fakeService{resp: &openai.ChatCompletion{}}
	c, _ := NewFromService(fake, Options{Model: "gpt-4o-mini"})
	got, err := c.Complete(context.Background(), "s", "u")
	if err != nil || got != "" {
		t.Fatalf("Complete = %q, %v", got, err)
	}
}

func TestNewRequiresAPIKeyAndModel(t *testing.T) {
	if _, err := New("", Options{Model: "gpt-4o-mini"}); err == nil {
		t.Fatal("expected error for missing API key")
	}
	if _, err := New("sk-test", Options{}); err == nil {
		t.Fatal("expected error for missing model")
	}
}
