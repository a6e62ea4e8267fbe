package planmodel

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loomrun/loom/internal/policy"
)

// ErrorKind distinguishes the three failure classes the validator can
// report; callers switch on Kind rather than comparing error strings.
type ErrorKind string

const (
	KindInvalidJSON     ErrorKind = "InvalidJSON"
	KindSchemaViolation ErrorKind = "SchemaViolation"
	KindPolicyViolation ErrorKind = "PolicyViolation"
)

// ValidationError is a single structured failure: a field path, what was
// expected, what was found, and a human-readable reason.
type ValidationError struct {
	Kind     ErrorKind
	Field    string
	Expected string
	Actual   interface{}
	Message  string
}

// ValidationErrors collects every ValidationError found during a single
// Parse call so the planner can present them all back to the model at once.
type ValidationErrors struct {
	Errors []ValidationError
}

func (v *ValidationErrors) add(kind ErrorKind, field, expected string, actual interface{}, msg string) {
	v.Errors = append(v.Errors, ValidationError{
		Kind: kind, Field: field, Expected: expected, Actual: actual, Message: msg,
	})
}

// HasErrors reports whether any validation error was collected.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface with a terse summary; use ToPrompt
// for the field-by-field detail.
func (v *ValidationErrors) Error() string {
	if !v.HasErrors() {
		return "no validation errors"
	}
	if len(v.Errors) == 1 {
		e := v.Errors[0]
		return fmt.Sprintf("%s in field %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed with %d errors", len(v.Errors))
}

// ToPrompt formats the collected errors as an actionable block suitable for
// feeding back to the planner so it can repair the JSON it produced.
func (v *ValidationErrors) ToPrompt() string {
	if !v.HasErrors() {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Validation failed with %d error(s):\n\n", len(v.Errors)))
	for i, e := range v.Errors {
		sb.WriteString(fmt.Sprintf("%d. [%s] Field: %s\n", i+1, e.Kind, e.Field))
		sb.WriteString(fmt.Sprintf("   Expected: %s\n", e.Expected))
		sb.WriteString(fmt.Sprintf("   Found: %v\n", formatActual(e.Actual)))
		sb.WriteString(fmt.Sprintf("   Fix: %s\n", e.Message))
		if i < len(v.Errors)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func formatActual(actual interface{}) string {
	if actual == nil {
		return "null"
	}
	switch a := actual.(type) {
	case string:
		return fmt.Sprintf("%q", a)
	default:
		return fmt.Sprintf("%v", a)
	}
}

// rawStep mirrors the on-wire shape before type discrimination, letting us
// report unknown fields/shapes precisely instead of failing the whole
// json.Unmarshal.
type rawPlan struct {
	Name  json.RawMessage `json:"name"`
	Steps json.RawMessage `json:"steps"`
}

type rawStep struct {
	Type         string          `json:"type"`
	Message      json.RawMessage `json:"message"`
	Command      json.RawMessage `json:"command"`
	Tool         json.RawMessage `json:"tool"`
	Instructions json.RawMessage `json:"instructions"`
}

// Parse validates raw JSON into a Plan. It is used identically for
// user-edited plans and planner-generated plans (§4.1): schema checks run
// first, then policy checks, and every failure is reported with a field
// path and a reason rather than a bare bool.
func Parse(data []byte) (*Plan, *ValidationErrors) {
	verrs := &ValidationErrors{}

	var raw rawPlan
	if err := json.Unmarshal(data, &raw); err != nil {
		verrs.add(KindInvalidJSON, "$", "a JSON object", nil, err.Error())
		return nil, verrs
	}

	plan := &Plan{}

	if len(raw.Name) == 0 {
		verrs.add(KindSchemaViolation, "name", "non-empty string", nil, "name is required")
	} else if err := json.Unmarshal(raw.Name, &plan.Name); err != nil {
		verrs.add(KindSchemaViolation, "name", "string", string(raw.Name), "name must be a string")
	} else if strings.TrimSpace(plan.Name) == "" {
		verrs.add(KindSchemaViolation, "name", "non-empty after trim", plan.Name, "name must not be blank")
	}

	if len(raw.Steps) == 0 {
		verrs.add(KindSchemaViolation, "steps", "non-empty array", nil, "steps is required")
		return nil, verrs
	}

	var rawSteps []rawStep
	if err := json.Unmarshal(raw.Steps, &rawSteps); err != nil {
		verrs.add(KindSchemaViolation, "steps", "array of step objects", nil, err.Error())
		return nil, verrs
	}

	for i, rs := range rawSteps {
		field := fmt.Sprintf("steps[%d]", i)
		step, ok := parseStep(verrs, field, rs)
		if ok {
			plan.Steps = append(plan.Steps, step)
		}
	}

	if verrs.HasErrors() {
		return nil, verrs
	}

	// Policy checks run only after the schema check passes (§4.1).
	if len(plan.Steps) > MaxSteps {
		verrs.add(KindPolicyViolation, "steps", fmt.Sprintf("at most %d steps", MaxSteps),
			len(plan.Steps), fmt.Sprintf("reduce the plan to %d steps or fewer", MaxSteps))
	}
	if !plan.HasNoteStep() {
		verrs.add(KindPolicyViolation, "steps", "at least one note step", nil,
			"add a note step describing intent")
	}
	for i, s := range plan.Steps {
		if s.Type != StepCmd {
			continue
		}
		field := fmt.Sprintf("steps[%d].command", i)
		if strings.TrimSpace(s.Command) == "" {
			verrs.add(KindPolicyViolation, field, "non-empty command", s.Command, "command must not be empty")
			continue
		}
		if !policy.IsCommandAllowed(s.Command) {
			verrs.add(KindPolicyViolation, field, fmt.Sprintf("prefix in %v", policy.AllowedCommandPrefixes),
				s.Command, "command must begin with an allowed prefix")
		}
	}

	if verrs.HasErrors() {
		return nil, verrs
	}
	return plan, nil
}

func parseStep(verrs *ValidationErrors, field string, rs rawStep) (Step, bool) {
	switch StepType(rs.Type) {
	case StepNote:
		var msg string
		if len(rs.Message) == 0 {
			verrs.add(KindSchemaViolation, field+".message", "non-empty string", nil, "note steps require message")
			return Step{}, false
		}
		if err := json.Unmarshal(rs.Message, &msg); err != nil {
			verrs.add(KindSchemaViolation, field+".message", "string", string(rs.Message), "message must be a string")
			return Step{}, false
		}
		return Step{Type: StepNote, Message: msg}, true

	case StepCmd:
		var cmd string
		if len(rs.Command) == 0 {
			verrs.add(KindSchemaViolation, field+".command", "non-empty string", nil, "cmd steps require command")
			return Step{}, false
		}
		if err := json.Unmarshal(rs.Command, &cmd); err != nil {
			verrs.add(KindSchemaViolation, field+".command", "string", string(rs.Command), "command must be a string")
			return Step{}, false
		}
		// Forbidden-shell-operator detection is deliberately NOT a schema/
		// policy rejection here: §4.1 enumerates PolicyViolation as step
		// count, missing note step, and command-prefix/emptiness only. The
		// operator check is a separate runtime predicate (policy package)
		// enforced by the Run Executor at cmd dispatch (§4.7) and consulted
		// by the Planner client to decide whether to retry (§4.8) — a plan
		// containing one is schema-valid but gets blocked_by_policy at
		// execution time.
		return Step{Type: StepCmd, Command: cmd}, true

	case StepExecutor:
		var tool, instructions string
		if len(rs.Tool) == 0 {
			verrs.add(KindSchemaViolation, field+".tool", "one of the supported executor tools", nil, "executor steps require tool")
			return Step{}, false
		}
		if err := json.Unmarshal(rs.Tool, &tool); err != nil {
			verrs.add(KindSchemaViolation, field+".tool", "string", string(rs.Tool), "tool must be a string")
			return Step{}, false
		}
		if !policy.IsExecutorToolAllowed(tool) {
			verrs.add(KindSchemaViolation, field+".tool", "one of the supported executor tools", tool, "unknown executor tool")
			return Step{}, false
		}
		if len(rs.Instructions) == 0 {
			verrs.add(KindSchemaViolation, field+".instructions", "non-empty string", nil, "executor steps require instructions")
			return Step{}, false
		}
		if err := json.Unmarshal(rs.Instructions, &instructions); err != nil {
			verrs.add(KindSchemaViolation, field+".instructions", "string", string(rs.Instructions), "instructions must be a string")
			return Step{}, false
		}
		if strings.TrimSpace(instructions) == "" {
			verrs.add(KindSchemaViolation, field+".instructions", "non-empty after trim", instructions, "instructions must not be blank")
			return Step{}, false
		}
		return Step{Type: StepExecutor, Tool: EnumTool(tool), Instructions: instructions}, true

	default:
		verrs.add(KindSchemaViolation, field+".type", "one of: note, cmd, executor", rs.Type, "unknown step type")
		return Step{}, false
	}
}
