// Package planner implements the Planner client (§4.8): it assembles the
// Capability Card, Last-Run Summary, and Requirement into a completion
// request, extracts and validates the returned plan JSON, and retries once
// if the plan contains a forbidden shell operator.
//
// Grounded on the teacher's internal/planner/planner.go for its
// prompt-assembly style and precondition-check habit (RequireProject /
// RequireRoadmap became the API-key check in NewFromEnv and the prompt-file
// check in readSystemPrompt below), and on
// internal/llm/output.go for the fenced-code-block text-extraction idiom.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/loomrun/loom/internal/completion"
	"github.com/loomrun/loom/internal/planmodel"
	"github.com/loomrun/loom/internal/store"
)

// ErrorKind distinguishes planner-side failures (§7).
type ErrorKind string

const (
	KindPlannerAuthMissing      ErrorKind = "PlannerAuthMissing"
	KindPromptMissing           ErrorKind = "PromptMissing"
	KindUpstreamError           ErrorKind = "UpstreamError"
	KindEmptyOutput             ErrorKind = "EmptyOutput"
	KindForbiddenShellOperators ErrorKind = "ForbiddenShellOperators"
)

// Error wraps a planner-side failure with its kind.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// lastRunSummaryMaxChars is the §4.8 truncation bound.
const lastRunSummaryMaxChars = 1200

// PromptSearchPaths are the two locations the system prompt file is
// searched, mirroring the teacher's packaged-prompt-with-fallback habit: a
// built output path and a source-tree path for `go run`/development use.
// Both are relative, so they are resolved against the current working
// directory, not the binary's location.
var PromptSearchPaths = []string{
	"prompts/system.md",
	"internal/planner/prompts/system.md",
}

// DefaultTemperature is the sampling temperature of §4.8 used when the
// caller doesn't supply an override (config.PlannerConfig.Temperature, via
// internal/cli's newApp).
const DefaultTemperature = 0.2

// Completer is the narrow interface the Planner client calls through; it
// is satisfied by *completion.Client or a test fake.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Planner assembles prompts, calls the completion endpoint, and validates
// the result against planmodel.Parse.
type Planner struct {
	completer Completer
	store     *store.Store
}

// New builds a Planner around an already-constructed Completer (usually a
// *completion.Client) and a Store used for the Last-Run Summary.
func New(completer Completer, st *store.Store) *Planner {
	return &Planner{completer: completer, store: st}
}

// NewFromEnv builds a Planner backed by a real completion.Client, reading
// OPENAI_API_KEY from the environment per §6. It fails with
// PlannerAuthMissing if the key is absent. temperature of 0 falls back to
// DefaultTemperature, since 0 is not itself a usable sampling temperature
// for plan generation and config.applyDefaults uses the zero value to mean
// "not set" for every other float/int field.
func NewFromEnv(model string, temperature float64, st *store.Store) (*Planner, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, &Error{Kind: KindPlannerAuthMissing, Message: "OPENAI_API_KEY is not set"}
	}
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	client, err := completion.New(apiKey, completion.Options{Model: model, Temperature: temperature})
	if err != nil {
		return nil, &Error{Kind: KindPlannerAuthMissing, Message: err.Error()}
	}
	return New(client, st), nil
}

// Generate produces a validated Plan for requirement, retrying once on a
// forbidden shell operator (§4.8).
func (p *Planner) Generate(ctx context.Context, requirement string) (*planmodel.Plan, error) {
	systemPrompt, err := readSystemPrompt()
	if err != nil {
		return nil, err
	}
	userPrompt := p.buildUserPrompt(requirement, false)

	plan, verrs, err := p.callAndParse(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}
	// SchemaViolation/PolicyViolation/InvalidJSON surface as-is (§7): these
	// are plan-validation failures, distinct from the planner-side
	// ForbiddenShellOperators retry handled below.
	if verrs != nil {
		return nil, verrs
	}
	if containsForbiddenOperatorStep(plan) {
		retryPrompt := p.buildUserPrompt(requirement, true)
		plan, verrs, err = p.callAndParse(ctx, systemPrompt, retryPrompt)
		if err != nil {
			return nil, err
		}
		if verrs != nil {
			return nil, verrs
		}
		if containsForbiddenOperatorStep(plan) {
			return nil, &Error{Kind: KindForbiddenShellOperators,
				Message: "the plan still contains a forbidden shell operator after one retry"}
		}
	}
	return plan, nil
}

func (p *Planner) callAndParse(ctx context.Context, systemPrompt, userPrompt string) (*planmodel.Plan, *planmodel.ValidationErrors, error) {
	content, err := p.completer.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, nil, &Error{Kind: KindUpstreamError, Message: err.Error()}
	}
	if strings.TrimSpace(content) == "" {
		return nil, nil, &Error{Kind: KindEmptyOutput, Message: "planner returned no content"}
	}

	extracted := ExtractJSON(content)
	if strings.TrimSpace(extracted) == "" {
		return nil, nil, &Error{Kind: KindEmptyOutput, Message: "no JSON object found in planner output"}
	}

	plan, verrs := planmodel.Parse([]byte(extracted))
	if verrs != nil && verrs.HasErrors() {
		return nil, verrs, nil
	}
	return plan, nil, nil
}

var fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n```")

// ExtractJSON finds the plan JSON inside completion output: first a fenced
// code block (``` or ```json), else the substring between the first `{`
// and the last `}`, trimmed (§4.8).
func ExtractJSON(content string) string {
	if m := fencedBlockPattern.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return strings.TrimSpace(content[start : end+1])
}

func containsForbiddenOperatorStep(plan *planmodel.Plan) bool {
	if plan == nil {
		return false
	}
	for _, s := range plan.Steps {
		if s.Type == planmodel.StepCmd && hasForbiddenOperator(s.Command) {
			return true
		}
	}
	return false
}

// hasForbiddenOperator duplicates policy.HasForbiddenShellOperators rather
// than importing internal/policy: planmodel.Parse intentionally leaves
// forbidden operators schema-valid (§4.1's PolicyViolation list covers only
// step count, note-step presence, and command prefix/emptiness), so this is
// the actual, load-bearing check Generate uses to decide whether to retry.
func hasForbiddenOperator(command string) bool {
	for _, op := range []string{"||", "&&", "|", ">", "<", ";", "$(", "`"} {
		if strings.Contains(command, op) {
			return true
		}
	}
	return false
}

func readSystemPrompt() (string, error) {
	var lastErr error
	for _, path := range PromptSearchPaths {
		data, err := os.ReadFile(path)
		if err == nil {
			return string(data), nil
		}
		lastErr = err
	}
	return "", &Error{Kind: KindPromptMissing, Message: fmt.Sprintf("no system prompt found in %v: %v", PromptSearchPaths, lastErr)}
}

func (p *Planner) buildUserPrompt(requirement string, forbiddenOperatorRetry bool) string {
	var sb strings.Builder
	sb.WriteString(CapabilityCard)
	sb.WriteString("\n\n")
	sb.WriteString(p.lastRunSummary())
	sb.WriteString("\n\n")
	sb.WriteString("Requirement:\n")
	sb.WriteString(requirement)
	if forbiddenOperatorRetry {
		sb.WriteString("\n\nReminder: cmd steps must never contain ||, &&, |, >, <, ;, $(, or a backtick. ")
		sb.WriteString("Re-emit the plan without any forbidden shell operator.")
	}
	return sb.String()
}

// lastRunSummary derives planner-relevant fields from the most recent run
// directory by modification time, truncated to lastRunSummaryMaxChars, or
// a placeholder if no prior run exists (§4.8).
func (p *Planner) lastRunSummary() string {
	const placeholder = "Last-Run Summary:\n(no prior run)"
	if p.store == nil {
		return placeholder
	}
	runID, err := p.store.MostRecent()
	if err != nil || runID == "" {
		return placeholder
	}
	run, err := p.store.ReadRun(runID)
	if err != nil {
		return placeholder
	}

	var sb strings.Builder
	sb.WriteString("Last-Run Summary:\n")
	fmt.Fprintf(&sb, "plan: %s (%d steps)\n", run.Plan.Name, run.Plan.StepsCount)
	fmt.Fprintf(&sb, "exitCode: %d\n", run.ExitCode)
	if run.Timeout {
		sb.WriteString("timeout: true\n")
	}
	if run.Cancelled {
		sb.WriteString("cancelled: true\n")
	}
	if run.BlockedByPolicy {
		sb.WriteString("blocked_by_policy: true\n")
	}
	for _, step := range run.Steps {
		fmt.Fprintf(&sb, "step %d (%s): exit=%d", step.StepIndex, step.Type, step.ExitCode)
		if step.Evaluation != nil {
			fmt.Fprintf(&sb, " has_changes=%v no_op=%v", step.Evaluation.HasChanges, step.Evaluation.NoOp)
		}
		sb.WriteString("\n")
	}

	summary := sb.String()
	if len(summary) > lastRunSummaryMaxChars {
		summary = summary[:lastRunSummaryMaxChars]
	}
	return summary
}

// AsError unwraps err into an *Error if possible, for callers that need to
// switch on Kind.
func AsError(err error) (*Error, bool) {
	var pe *Error
	ok := errors.As(err, &pe)
	return pe, ok
}
