// Package planmodel defines the Plan/Step schema shared by user-edited and
// planner-generated plans, and the strict parser that validates both the same
// way.
package planmodel

import "strings"

// EnumTool is the closed set of executor tools a Step may name.
type EnumTool string

// ToolCodex is currently the only member of EnumTool.
const ToolCodex EnumTool = "codex"

// StepType tags which variant of Step is populated.
type StepType string

const (
	StepNote     StepType = "note"
	StepCmd      StepType = "cmd"
	StepExecutor StepType = "executor"
)

// Step is a tagged variant: exactly one of Message, Command, or
// (Tool, Instructions) is meaningful, selected by Type.
type Step struct {
	Type         StepType `json:"type"`
	Message      string   `json:"message,omitempty"`
	Command      string   `json:"command,omitempty"`
	Tool         EnumTool `json:"tool,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

// Plan is the top-level unit driving a run.
type Plan struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// MaxSteps is the inclusive upper bound on Plan.Steps.
const MaxSteps = 8

// HasNoteStep reports whether the plan contains at least one note step.
func (p *Plan) HasNoteStep() bool {
	for _, s := range p.Steps {
		if s.Type == StepNote {
			return true
		}
	}
	return false
}

// TrimmedName returns Name with leading/trailing whitespace removed.
func (p *Plan) TrimmedName() string {
	return strings.TrimSpace(p.Name)
}
