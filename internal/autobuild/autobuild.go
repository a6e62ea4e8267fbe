// Package autobuild implements the Autobuild controller (§4.9): it loops
// Planner client -> Run executor (asynchronous decision mode) -> stop-reason
// classification, publishing autobuild:status/plan/done events, until one of
// the ordered stop conditions fires or maxIterations is reached.
//
// Grounded on the teacher's internal/executor/validation_loop.go iteration
// shape (ValidateAndHeal's "loop until validation passes or limit hit"),
// generalized from a single validate-then-heal retry into the full
// plan/run/classify loop spec.md §4.9 describes.
package autobuild

import (
	"context"
	"fmt"
	"sync"

	"github.com/loomrun/loom/internal/decision"
	"github.com/loomrun/loom/internal/evaluate"
	"github.com/loomrun/loom/internal/events"
	"github.com/loomrun/loom/internal/planmodel"
	"github.com/loomrun/loom/internal/store"
)

// StopReason is one of the ordered classifications of §4.9 step 6.
type StopReason string

const (
	StopDecisionPending      StopReason = "decision_pending"
	StopCancelled            StopReason = "cancelled"
	StopNoOp                 StopReason = "no_op"
	StopRetryNoChange        StopReason = "retry_no_change"
	StopFailed               StopReason = "failed"
	StopMaxIterationsReached StopReason = "max_iterations_reached"
	StopPlanningFailed       StopReason = "planning_failed"
)

// DefaultMaxIterations is the §4.9 default when the caller passes 0 or less.
const DefaultMaxIterations = 2

// ErrorKind distinguishes autobuild-level admission failures.
type ErrorKind string

// KindAlreadyRunning is returned by Start when an autobuild loop (or a plain
// run) is already in progress — the core admits at most one active plan.
const KindAlreadyRunning ErrorKind = "AnotherRunActive"

// Error wraps an autobuild admission failure with its kind.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// Planner is the narrow interface the controller calls through; satisfied
// by *planner.Planner.
type Planner interface {
	Generate(ctx context.Context, requirement string) (*planmodel.Plan, error)
}

// Runner is the narrow interface the controller drives the Run executor
// through; satisfied by *runner.Executor.
type Runner interface {
	RunPlan(workspacePath string, plan *planmodel.Plan, requirement string, mode decision.Mode) (string, error)
	ActiveRunID() string
	CancelRun(runID string) bool
}

// Controller drives the plan->run->classify loop of §4.9.
type Controller struct {
	planner Planner
	runner  Runner
	store   *store.Store
	bus     *events.Bus

	mu        sync.Mutex
	running   bool
	cancelled bool
}

// New builds a Controller.
func New(planner Planner, runner Runner, st *store.Store, bus *events.Bus) *Controller {
	return &Controller{planner: planner, runner: runner, store: st, bus: bus}
}

// Start admits and launches an autobuild loop in the background, returning
// immediately per §6's `startAutobuild(...) → true` request shape. It fails
// synchronously only if another run (plain or autobuild) is already active.
func (c *Controller) Start(ctx context.Context, workspace, requirement string, maxIterations int) error {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if c.runner.ActiveRunID() != "" {
		return &Error{Kind: KindAlreadyRunning, Message: "a run is already active"}
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return &Error{Kind: KindAlreadyRunning, Message: "autobuild is already running"}
	}
	c.running = true
	c.cancelled = false
	c.mu.Unlock()

	go c.loop(ctx, workspace, requirement, maxIterations)
	return nil
}

// CancelAutobuild sets the controller's cancel flag (observed before each
// iteration's planning step and before admitting a run) and, if a run is
// currently active, cancels it too (§5).
func (c *Controller) CancelAutobuild() bool {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
	if rid := c.runner.ActiveRunID(); rid != "" {
		c.runner.CancelRun(rid)
	}
	return true
}

func (c *Controller) isCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func (c *Controller) loop(ctx context.Context, workspace, requirement string, maxIterations int) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	var perIterationSummary []string
	stopReason := StopMaxIterationsReached
	iterationsRun := 0

iterations:
	for k := 1; k <= maxIterations; k++ {
		if c.isCancelled() {
			stopReason = StopCancelled
			break
		}
		iterationsRun = k

		c.bus.Publish(events.Event{Name: events.AutobuildStatus, Payload: events.AutobuildStatusPayload{
			Iteration: k, Phase: "planning", Message: "Generating plan",
		}})

		plan, err := c.planner.Generate(ctx, requirement)
		if err != nil {
			c.bus.Publish(events.Event{Name: events.AutobuildStatus, Payload: events.AutobuildStatusPayload{
				Iteration: k, Phase: "done", Message: "Planning failed: " + err.Error(),
			}})
			stopReason = StopPlanningFailed
			break
		}

		c.bus.Publish(events.Event{Name: events.AutobuildPlan, Payload: events.AutobuildPlanPayload{
			Iteration: k, Plan: plan, PlanName: plan.TrimmedName(),
		}})

		if c.isCancelled() {
			stopReason = StopCancelled
			break
		}

		c.bus.Publish(events.Event{Name: events.AutobuildStatus, Payload: events.AutobuildStatusPayload{
			Iteration: k, Phase: "running", Message: "Running plan",
		}})

		runID, err := c.runner.RunPlan(workspace, plan, requirement, decision.Async)
		if err != nil {
			c.bus.Publish(events.Event{Name: events.AutobuildStatus, Payload: events.AutobuildStatusPayload{
				Iteration: k, Phase: "done", Message: "Run failed to start: " + err.Error(),
			}})
			stopReason = StopFailed
			break
		}

		run, err := c.store.ReadRun(runID)
		if err != nil {
			c.bus.Publish(events.Event{Name: events.AutobuildStatus, Payload: events.AutobuildStatusPayload{
				Iteration: k, Phase: "done", Message: "Run failed to start: " + err.Error(), RunID: runID,
			}})
			stopReason = StopFailed
			break
		}
		perIterationSummary = append(perIterationSummary, summarize(k, run))
		eval := lastExecutorEvaluation(run)

		switch {
		case run.DecisionPending:
			stopReason = StopDecisionPending
		case run.Cancelled:
			stopReason = StopCancelled
		case eval != nil && eval.NoOp:
			stopReason = StopNoOp
		case eval != nil && eval.SuspiciousNoChange && eval.Retried && eval.RetryResult != nil && !eval.RetryResult.HasChanges:
			stopReason = StopRetryNoChange
		case run.ExitCode != 0 && k < maxIterations:
			c.bus.Publish(events.Event{Name: events.AutobuildStatus, Payload: events.AutobuildStatusPayload{
				Iteration: k, Phase: "done", Message: "Run failed, continuing to next iteration", RunID: runID,
			}})
			continue iterations
		case run.ExitCode != 0 && k == maxIterations:
			stopReason = StopFailed
		default:
			if k == maxIterations {
				stopReason = StopMaxIterationsReached
			} else {
				c.bus.Publish(events.Event{Name: events.AutobuildStatus, Payload: events.AutobuildStatusPayload{
					Iteration: k, Phase: "done", Message: "Iteration complete", RunID: runID,
				}})
				continue iterations
			}
		}
		break
	}

	c.bus.Publish(events.Event{Name: events.AutobuildDone, Payload: events.AutobuildDonePayload{
		StopReason: string(stopReason), IterationsRun: iterationsRun, PerIterationSummary: perIterationSummary,
	}})
}

// lastExecutorEvaluation returns the Evaluation of the most recent executor
// step in run, or nil if the run had none (e.g. it stopped at a cmd step).
func lastExecutorEvaluation(run *store.Run) *evaluate.Evaluation {
	for i := len(run.Steps) - 1; i >= 0; i-- {
		if run.Steps[i].Evaluation != nil {
			return run.Steps[i].Evaluation
		}
	}
	return nil
}

func summarize(iteration int, run *store.Run) string {
	return fmt.Sprintf("iteration %d: plan=%q exitCode=%d blocked_by_policy=%v cancelled=%v",
		iteration, run.Plan.Name, run.ExitCode, run.BlockedByPolicy, run.Cancelled)
}
