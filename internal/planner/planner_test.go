package planner

import (
	"context"
	"testing"
)

type fakeCompleter struct {
	responses []string
	calls     int
	prompts   []string
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.prompts = append(f.prompts, userPrompt)
	i := f.calls
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	f.calls++
	return f.responses[i], nil
}

func TestExtractJSONFencedBlock(t *testing.T) {
	content := "Here is the plan:\n```json\n{\"name\":\"p\",\"steps\":[]}\n```\nThanks."
	got := ExtractJSON(content)
	if got != `{"name":"p","steps":[]}` {
		t.Fatalf("ExtractJSON = %q", got)
	}
}

func TestExtractJSONBraceDelimited(t *testing.T) {
	content := "sure, {\"name\":\"p\",\"steps\":[]} is the plan"
	got := ExtractJSON(content)
	if got != `{"name":"p","steps":[]}` {
		t.Fatalf("ExtractJSON = %q", got)
	}
}

func TestGenerateValidPlan(t *testing.T) {
	fake := &fakeCompleter{responses: []string{
		`{"name":"p","steps":[{"type":"note","message":"hi"},{"type":"cmd","command":"git status"}]}`,
	}}
	p := New(fake, nil)
	plan, err := p.Generate(context.Background(), "add a readme")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if plan.Name != "p" {
		t.Fatalf("plan.Name = %q", plan.Name)
	}
	if fake.calls != 1 {
		t.Fatalf("expected a single call, got %d", fake.calls)
	}
}

func TestGenerateRetriesOnceOnForbiddenOperator(t *testing.T) {
	fake := &fakeCompleter{responses: []string{
		`{"name":"p","steps":[{"type":"note","message":"hi"},{"type":"cmd","command":"git status && rm -rf /"}]}`,
		`{"name":"p","steps":[{"type":"note","message":"hi"},{"type":"cmd","command":"git status"}]}`,
	}}
	p := New(fake, nil)
	plan, err := p.Generate(context.Background(), "add a readme")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if fake.calls != 2 {
		t.Fatalf("expected a retry call, got %d calls", fake.calls)
	}
	if len(plan.Steps) != 2 {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}

func TestGenerateEmptyOutput(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"   "}}
	p := New(fake, nil)
	_, err := p.Generate(context.Background(), "x")
	pe, ok := AsError(err)
	if !ok || pe.Kind != KindEmptyOutput {
		t.Fatalf("expected EmptyOutput, got %v", err)
	}
}
