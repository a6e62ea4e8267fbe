// Package runner implements the Run executor (§4.7): it admits a single
// validated plan at a time, drives it step by step, and maintains the run
// record. Policy enforcement comes from internal/policy, process supervision
// from internal/procsup, post-step observation from internal/evidence,
// retry/no-op classification from internal/evaluate, dependency-change
// approval from internal/decision, and persistence from internal/store.
//
// Grounded on the teacher's internal/executor/validation_loop.go for the
// "drive steps until a stop condition, heal or end" shape, generalized from
// ralph's single validate-then-heal loop into the full note/cmd/executor
// dispatch and decision-gate/evaluator wiring spec.md §4.7 describes.
package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/loomrun/loom/internal/decision"
	"github.com/loomrun/loom/internal/evaluate"
	"github.com/loomrun/loom/internal/events"
	"github.com/loomrun/loom/internal/evidence"
	"github.com/loomrun/loom/internal/planmodel"
	"github.com/loomrun/loom/internal/policy"
	"github.com/loomrun/loom/internal/procsup"
	"github.com/loomrun/loom/internal/store"
)

// ErrorKind distinguishes the four admission failures of §4.7/§7.
type ErrorKind string

const (
	KindAnotherRunActive ErrorKind = "AnotherRunActive"
	KindWorkspaceUnset   ErrorKind = "WorkspaceUnset"
	KindEmptyPlan        ErrorKind = "EmptyPlan"
	KindNotARepository   ErrorKind = "NotARepository"
)

// Error wraps an admission failure with its kind.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// DefaultExecutorBinary is the external code-mutation tool's binary name.
const DefaultExecutorBinary = "codex"

// Options configures an Executor.
type Options struct {
	// ExecutorBinary is the external tool invoked by executor steps (§6's
	// "<tool> exec"/"<tool> apply" contract). Defaults to DefaultExecutorBinary.
	ExecutorBinary string
}

// Executor drives plans through the state machine of §4.7, admitting at
// most one run at a time (§5's "single logical worker" model).
type Executor struct {
	store *store.Store
	gate  *decision.Gate
	bus   *events.Bus
	opts  Options

	mu           sync.Mutex
	active       bool
	activeRunID  string
	cancelCh     chan struct{}
	cancelClosed bool

	handlesMu sync.Mutex
	handles   map[string]*store.Handle
}

// New builds an Executor. gate's OnResolved callback is wired so an async
// decision that resolves after its run has finalized still gets merged into
// the persisted run record (§4.5).
func New(st *store.Store, gate *decision.Gate, bus *events.Bus, opts Options) *Executor {
	if opts.ExecutorBinary == "" {
		opts.ExecutorBinary = DefaultExecutorBinary
	}
	e := &Executor{store: st, gate: gate, bus: bus, opts: opts, handles: make(map[string]*store.Handle)}
	gate.OnResolved = func(runID string, rec decision.Record) {
		e.handlesMu.Lock()
		h := e.handles[runID]
		e.handlesMu.Unlock()
		if h != nil {
			_ = h.MergeDecision(rec)
		}
	}
	return e
}

// ActiveRunID returns the currently admitted run's id, or "" if none.
func (e *Executor) ActiveRunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeRunID
}

// RunPlan admits and drives plan to completion, returning its run_id. mode
// selects how the Decision gate behaves on a dependency-file change:
// decision.Sync for the interactive runPlan request, decision.Async for the
// Autobuild controller (§4.9).
func (e *Executor) RunPlan(workspacePath string, plan *planmodel.Plan, requirement string, mode decision.Mode) (string, error) {
	if workspacePath == "" {
		return "", &Error{Kind: KindWorkspaceUnset, Message: "workspace path is required"}
	}
	if plan == nil || len(plan.Steps) == 0 {
		return "", &Error{Kind: KindEmptyPlan, Message: "plan has no steps"}
	}
	if info, err := os.Stat(filepath.Join(workspacePath, ".git")); err != nil || !info.IsDir() {
		return "", &Error{Kind: KindNotARepository, Message: workspacePath + " is not a git repository"}
	}

	e.mu.Lock()
	if e.active {
		e.mu.Unlock()
		return "", &Error{Kind: KindAnotherRunActive, Message: "a run is already active"}
	}
	e.active = true
	e.cancelClosed = false
	cancelCh := make(chan struct{})
	e.cancelCh = cancelCh
	e.mu.Unlock()

	handle, err := e.store.CreateRun(workspacePath, requirement, store.PlanSummary{
		Name: plan.TrimmedName(), StepsCount: len(plan.Steps),
	})
	if err != nil {
		e.release()
		return "", err
	}
	runID := handle.RunID()

	e.mu.Lock()
	e.activeRunID = runID
	e.mu.Unlock()
	e.handlesMu.Lock()
	e.handles[runID] = handle
	e.handlesMu.Unlock()

	e.drive(runID, workspacePath, plan, handle, mode, cancelCh)
	e.release()
	return runID, nil
}

// CancelRun terminates the given run if it is the active one: it publishes
// run:cancelled, resolves any pending decision as rejected, then signals the
// cancel channel so the step loop and any supervised child observe it (§5).
func (e *Executor) CancelRun(runID string) bool {
	e.mu.Lock()
	if !e.active || e.activeRunID != runID || e.cancelClosed {
		e.mu.Unlock()
		return false
	}
	e.cancelClosed = true
	cancelCh := e.cancelCh
	e.mu.Unlock()

	e.bus.Publish(events.Event{Name: events.RunCancelled, Payload: events.RunCancelledPayload{RunID: runID}})
	e.gate.Cancel(runID)
	close(cancelCh)
	return true
}

func (e *Executor) release() {
	e.mu.Lock()
	e.active = false
	e.activeRunID = ""
	e.cancelCh = nil
	e.mu.Unlock()
}

// drive runs the per-step state machine and finalizes the run record.
func (e *Executor) drive(runID, workspacePath string, plan *planmodel.Plan, handle *store.Handle, mode decision.Mode, cancelCh chan struct{}) {
	total := len(plan.Steps)
	tracker := &evaluate.Tracker{}

	var (
		exitCode            int
		blockedByPolicy     bool
		timedOut            bool
		cancelled           bool
		cancelledByDecision bool
		decisionPending     bool
	)

stepLoop:
	for i, step := range plan.Steps {
		idx := i + 1

		select {
		case <-cancelCh:
			cancelled = true
			exitCode = -1
			break stepLoop
		default:
		}

		e.bus.Publish(events.Event{Name: events.RunStep, Payload: events.RunStepPayload{RunID: runID, StepIndex: idx, Total: total}})

		switch step.Type {
		case planmodel.StepNote:
			e.emitSystem(handle, runID, "Note: "+step.Message)
			tracker.ClearOnNote()
			now := time.Now()
			_ = handle.AppendStep(store.StepRecord{StepIndex: idx, Type: "note", StartedAt: now, EndedAt: now, ExitCode: 0})
			continue

		case planmodel.StepCmd:
			outcome := e.runCmdStep(runID, workspacePath, idx, step, handle, tracker, cancelCh)
			if outcome.blockedByPolicy {
				blockedByPolicy = true
				exitCode = -1
				e.offerDecision(runID, workspacePath, handle, mode, &decisionPending, &cancelledByDecision)
				break stepLoop
			}
			if outcome.timedOut {
				timedOut = true
			}
			if outcome.cancelled {
				cancelled = true
			}
			if outcome.effectiveExit != 0 || outcome.cancelled || outcome.timedOut {
				exitCode = outcome.effectiveExit
				break stepLoop
			}
			if e.offerDecision(runID, workspacePath, handle, mode, &decisionPending, &cancelledByDecision) {
				if decisionPending {
					break stepLoop
				}
				if cancelledByDecision {
					exitCode = -1
					break stepLoop
				}
			}

		case planmodel.StepExecutor:
			outcome := e.runExecutorStep(runID, workspacePath, idx, step, handle, tracker, cancelCh)
			if outcome.blockedByPolicy {
				blockedByPolicy = true
				exitCode = -1
				e.offerDecision(runID, workspacePath, handle, mode, &decisionPending, &cancelledByDecision)
				break stepLoop
			}
			if outcome.timedOut {
				timedOut = true
			}
			if outcome.cancelled {
				cancelled = true
			}
			if outcome.exitCode != 0 || outcome.cancelled || outcome.timedOut {
				exitCode = outcome.exitCode
				break stepLoop
			}
			if e.offerDecision(runID, workspacePath, handle, mode, &decisionPending, &cancelledByDecision) {
				if decisionPending {
					break stepLoop
				}
				if cancelledByDecision {
					exitCode = -1
					break stepLoop
				}
			}
		}
	}

	_ = handle.Finalize(exitCode, blockedByPolicy, timedOut, cancelled, cancelledByDecision, decisionPending)
	e.bus.Publish(events.Event{Name: events.RunDone, Payload: events.RunDonePayload{RunID: runID, ExitCode: exitCode}})
}

// offerDecision inspects the most recently collected evidence for
// dependency-file changes and drives the Decision gate (§4.5). It returns
// true if the gate was NOT a no-op, in which case *pending or *cancelledByDecision
// was set to reflect how the run should end.
func (e *Executor) offerDecision(runID, workspacePath string, handle *store.Handle, mode decision.Mode, pending, cancelledByDecision *bool) bool {
	snap := handle.Snapshot()
	changed := evidence.ParseNameOnly(snap.Evidence[evidence.KeyNameOnly])
	matched := e.gate.MatchDependencyFiles(changed)
	if len(matched) == 0 {
		return false
	}

	e.bus.Publish(events.Event{Name: events.RunDecision, Payload: events.RunDecisionPayload{RunID: runID, Files: matched}})
	e.emitSystem(handle, runID, "Awaiting approval for dependency changes: "+strings.Join(matched, ", "))

	outcome := e.gate.Evaluate(runID, changed, mode)
	if outcome.Pending {
		*pending = true
		return true
	}
	_ = handle.MergeDecision(outcome.Record)
	if outcome.Record.Result == decision.Rejected {
		*cancelledByDecision = true
	}
	return true
}

type cmdOutcome struct {
	effectiveExit   int
	cancelled       bool
	timedOut        bool
	blockedByPolicy bool
}

func (e *Executor) runCmdStep(runID, workspacePath string, idx int, step planmodel.Step, handle *store.Handle, tracker *evaluate.Tracker, cancelCh chan struct{}) cmdOutcome {
	started := time.Now()

	if !policy.IsCommandAllowed(step.Command) || policy.HasForbiddenShellOperators(step.Command) {
		ev := evidence.Collect(workspacePath)
		e.emitSystem(handle, runID, ev.Block())
		_ = handle.AppendStep(store.StepRecord{
			StepIndex: idx, Type: "cmd", StartedAt: started, EndedAt: time.Now(),
			ExitCode: -1, BlockedByPolicy: true, Evidence: ev.Queries,
		})
		return cmdOutcome{blockedByPolicy: true}
	}

	tokens, err := policy.Tokenize(step.Command)
	if err != nil {
		ev := evidence.Collect(workspacePath)
		e.emitSystem(handle, runID, fmt.Sprintf("[policy] cannot tokenize command: %v", err))
		e.emitSystem(handle, runID, ev.Block())
		_ = handle.AppendStep(store.StepRecord{
			StepIndex: idx, Type: "cmd", StartedAt: started, EndedAt: time.Now(),
			ExitCode: -1, BlockedByPolicy: true, Evidence: ev.Queries,
		})
		return cmdOutcome{blockedByPolicy: true}
	}

	sink := &stepSink{bus: e.bus, handle: handle, runID: runID}
	result := procsup.Run(procsup.Spec{Dir: workspacePath, Argv: tokens, Detached: false, Sink: sink}, cancelCh)

	tracker.ObserveCmdStep(step.Command, result.Stdout)

	effective := result.ExitCode
	if !result.Cancelled && !result.TimedOut && policy.IsContentSearchProbe(step.Command) && result.ExitCode == 1 {
		effective = 0
	}

	ev := evidence.Collect(workspacePath)
	e.emitSystem(handle, runID, ev.Block())
	_ = handle.AppendStep(store.StepRecord{
		StepIndex: idx, Type: "cmd", StartedAt: started, EndedAt: time.Now(),
		ExitCode: effective, Cancelled: result.Cancelled, Timeout: result.TimedOut, Evidence: ev.Queries,
	})

	return cmdOutcome{effectiveExit: effective, cancelled: result.Cancelled, timedOut: result.TimedOut}
}

type executorOutcome struct {
	exitCode        int
	cancelled       bool
	timedOut        bool
	blockedByPolicy bool
}

func (e *Executor) runExecutorStep(runID, workspacePath string, idx int, step planmodel.Step, handle *store.Handle, tracker *evaluate.Tracker, cancelCh chan struct{}) executorOutcome {
	started := time.Now()

	if !policy.IsExecutorToolAllowed(string(step.Tool)) {
		ev := evidence.Collect(workspacePath)
		e.emitSystem(handle, runID, ev.Block())
		_ = handle.AppendStep(store.StepRecord{
			StepIndex: idx, Type: "executor", StartedAt: started, EndedAt: time.Now(),
			ExitCode: -1, BlockedByPolicy: true, Tool: string(step.Tool),
			InstructionsLength: len(step.Instructions), Evidence: ev.Queries,
		})
		return executorOutcome{blockedByPolicy: true}
	}

	baselineStdout, _ := evidence.NameOnly(workspacePath)
	baselineFiles := evidence.ParseNameOnlyOrdered(baselineStdout)

	sink := &stepSink{bus: e.bus, handle: handle, runID: runID}
	result := e.invokeExecutorTool(workspacePath, step.Instructions, sink, cancelCh)

	ev := evidence.Collect(workspacePath)
	e.emitSystem(handle, runID, ev.Block())
	currentFiles := evidence.ParseNameOnlyOrdered(ev.Queries[evidence.KeyNameOnly])

	eval := evaluate.Evaluate(result.ExitCode, baselineFiles, currentFiles, tracker.Hit())

	if eval.NeedsRetry() && !result.Cancelled && !result.TimedOut {
		e.emitSystem(handle, runID, "[evaluate] suspicious_no_change: retrying with a minimal-change instruction")
		retryResult := e.invokeExecutorTool(workspacePath, evaluate.MinimalChangeInstruction, sink, cancelCh)
		retryStdout, _ := evidence.NameOnly(workspacePath)
		retryFiles := evidence.ParseNameOnlyOrdered(retryStdout)
		retryChanged := evaluate.Diff(retryFiles, baselineFiles)
		eval.Retried = true
		eval.RetryResult = &evaluate.RetryResult{ChangedFiles: retryChanged, HasChanges: len(retryChanged) > 0}
		if retryResult.Cancelled {
			result.Cancelled = true
		}
		if retryResult.TimedOut {
			result.TimedOut = true
		}
	} else if eval.NoOp {
		e.emitSystem(handle, runID, "[evaluate] no_op: previous content-search step already showed the change wasn't needed")
	}

	_ = handle.AppendStep(store.StepRecord{
		StepIndex: idx, Type: "executor", StartedAt: started, EndedAt: time.Now(),
		ExitCode: result.ExitCode, Cancelled: result.Cancelled, Timeout: result.TimedOut,
		Tool: string(step.Tool), InstructionsLength: len(step.Instructions),
		Evaluation: &eval, Evidence: ev.Queries,
	})

	return executorOutcome{exitCode: result.ExitCode, cancelled: result.Cancelled, timedOut: result.TimedOut}
}

// invokeExecutorTool runs the two-phase propose/apply invocation of §6: exec
// always runs; apply runs only if exec exited 0, uncancelled, and not timed
// out. The returned Result reflects apply's outcome when apply ran, else
// exec's.
func (e *Executor) invokeExecutorTool(workspacePath, instructions string, sink *stepSink, cancelCh chan struct{}) procsup.Result {
	proposeArgv := []string{e.opts.ExecutorBinary, "exec", "-C", workspacePath, "--full-auto", instructions}
	propose := procsup.Run(procsup.Spec{Dir: workspacePath, Argv: proposeArgv, Detached: true, OutputPrefix: "[executor] ", Sink: sink}, cancelCh)
	if propose.ExitCode != 0 || propose.Cancelled || propose.TimedOut {
		return propose
	}

	applyArgv := []string{e.opts.ExecutorBinary, "apply", "-C", workspacePath}
	apply := procsup.Run(procsup.Spec{Dir: workspacePath, Argv: applyArgv, Detached: true, OutputPrefix: "[executor] ", Sink: sink}, cancelCh)
	return apply
}

// emitSystem writes a system-sourced line to output.log and the event bus,
// used for note steps, evidence blocks, and decision/evaluation log lines.
func (e *Executor) emitSystem(handle *store.Handle, runID, text string) {
	_ = handle.AppendLog(text + "\n")
	e.bus.Publish(events.Event{Name: events.RunOutput, Payload: events.RunOutputPayload{RunID: runID, Source: events.SourceSystem, Text: text}})
}

// stepSink adapts a run's output.log + event bus to procsup.Sink. The
// executor-output line prefix of §4.3 is applied upstream by procsup itself
// via Spec.OutputPrefix before OnLine is called.
type stepSink struct {
	bus    *events.Bus
	handle *store.Handle
	runID  string
}

func (s *stepSink) OnLine(source, text string) {
	_ = s.handle.AppendLog(text + "\n")
	src := events.SourceStdout
	if source == "stderr" {
		src = events.SourceStderr
	}
	s.bus.Publish(events.Event{Name: events.RunOutput, Payload: events.RunOutputPayload{RunID: s.runID, Source: src, Text: text}})
}

func (s *stepSink) OnSystem(text string) {
	_ = s.handle.AppendLog(text + "\n")
	s.bus.Publish(events.Event{Name: events.RunOutput, Payload: events.RunOutputPayload{RunID: s.runID, Source: events.SourceSystem, Text: text}})
}
