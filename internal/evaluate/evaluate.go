// Package evaluate implements the Evaluator (§4.6): it compares the
// baseline and post-step changed-file sets around an executor step and
// classifies the outcome as suspicious_no_change / no_op / retried, and it
// tracks the "precheck-hit" flag the no_op classification depends on.
//
// Grounded on the teacher's internal/executor/analysis.go observation
// structs and internal/executor/validation_loop.go's retry bookkeeping,
// generalized from ralph's build/test verification loop to a generic
// baseline-diff comparison.
package evaluate

import "github.com/loomrun/loom/internal/policy"

// Evaluation is the per-executor-step record described in §4.6.
type Evaluation struct {
	BaselineFiles      []string
	CurrentFiles       []string
	ChangedFiles       []string
	HasChanges         bool
	SuspiciousNoChange bool
	NoOp               bool
	Retried            bool
	RetryResult        *RetryResult
}

// RetryResult is the sub-record of a minimal-change retry attempt, sharing
// the baseline-diff schema of Evaluation.
type RetryResult struct {
	ChangedFiles []string
	HasChanges   bool
}

// Evaluate computes changed_files = current \ baseline (set difference
// preserving current's order) and classifies the outcome. precheckHit is
// the Tracker's current value, observed before this executor step ran.
func Evaluate(exitCode int, baselineFiles, currentFiles []string, precheckHit bool) Evaluation {
	changed := diff(currentFiles, baselineFiles)
	hasChanges := len(changed) > 0
	suspicious := exitCode == 0 && !hasChanges
	noOp := suspicious && precheckHit

	return Evaluation{
		BaselineFiles:      baselineFiles,
		CurrentFiles:       currentFiles,
		ChangedFiles:       changed,
		HasChanges:         hasChanges,
		SuspiciousNoChange: suspicious,
		NoOp:               noOp,
	}
}

// NeedsRetry reports whether the run executor should invoke the
// minimal-change retry per §4.6's "suspicious_no_change ∧ ¬no_op" rule.
func (e Evaluation) NeedsRetry() bool {
	return e.SuspiciousNoChange && !e.NoOp
}

// Diff computes current \ baseline, preserving current's order — exported
// so the Run executor can re-apply the same computation to a retry attempt's
// post-retry diff query without duplicating the set-difference logic.
func Diff(current, baseline []string) []string {
	return diff(current, baseline)
}

func diff(current, baseline []string) []string {
	baseSet := make(map[string]bool, len(baseline))
	for _, f := range baseline {
		baseSet[f] = true
	}
	var out []string
	for _, f := range current {
		if !baseSet[f] {
			out = append(out, f)
		}
	}
	return out
}

// MinimalChangeInstruction is the fixed retry prompt of §4.6: no dependency
// changes; produce a real diff under a specific renderer file; do not
// duplicate UI.
const MinimalChangeInstruction = "Make the smallest possible real change that satisfies the requirement. " +
	"Do not modify package.json, package-lock.json, yarn.lock, or pnpm-lock.yaml. " +
	"Produce a concrete diff scoped to the relevant renderer file only. Do not duplicate existing UI."

// Tracker carries the "precheck-hit" flag across adjacent steps of a plan
// (§4.6, §4.7, §9): a cmd step invoking the content-search probe with
// non-empty stdout sets it; any note step clears it; non-probe cmd steps
// and executor steps leave it untouched.
type Tracker struct {
	hit bool
}

// ObserveCmdStep updates the flag after a cmd step runs.
func (t *Tracker) ObserveCmdStep(command, stdout string) {
	if policy.IsContentSearchProbe(command) {
		t.hit = stdout != ""
	}
}

// ClearOnNote resets the flag; call this for every note step, per spec.md
// §9's resolution of the "cleared by non-note steps only" ambiguity in
// favor of clearing on any note step.
func (t *Tracker) ClearOnNote() {
	t.hit = false
}

// Hit reports the flag's current value.
func (t *Tracker) Hit() bool {
	return t.hit
}
