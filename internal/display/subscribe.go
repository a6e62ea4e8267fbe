package display

import (
	"fmt"

	"github.com/loomrun/loom/internal/events"
)

// Subscribe taps bus and renders every run:*/autobuild:* event to the
// console via d, until stop is closed. Grounded on the teacher's own
// direct-call display usage, adapted here into an event-driven consumer
// since the Run executor and Autobuild controller now publish to a bus
// instead of calling a Display method directly (§6).
func Subscribe(d *Display, bus *events.Bus, stop <-chan struct{}) {
	ch := bus.Tap()
	for {
		select {
		case <-stop:
			return
		case ev := <-ch:
			render(d, ev)
		}
	}
}

func render(d *Display, ev events.Event) {
	switch ev.Name {
	case events.RunOutput:
		p, ok := ev.Payload.(events.RunOutputPayload)
		if !ok {
			return
		}
		switch p.Source {
		case events.SourceStderr:
			d.ExecutorStderr(p.Text)
		case events.SourceSystem:
			d.Info("system", p.Text)
		default:
			d.ExecutorOutput(p.Text)
		}

	case events.RunStep:
		p, ok := ev.Payload.(events.RunStepPayload)
		if !ok {
			return
		}
		d.StepHeader(p.StepIndex, p.Total, "")

	case events.RunDecision:
		p, ok := ev.Payload.(events.RunDecisionPayload)
		if !ok {
			return
		}
		d.Decision(p.Files)

	case events.RunCancelled:
		d.Warning("run cancelled")

	case events.RunDone:
		p, ok := ev.Payload.(events.RunDonePayload)
		if !ok {
			return
		}
		d.RunDone(p.ExitCode, false, false, false)

	case events.AutobuildStatus:
		p, ok := ev.Payload.(events.AutobuildStatusPayload)
		if !ok {
			return
		}
		if p.Phase == "planning" || p.Phase == "running" {
			d.AutobuildIteration(p.Iteration, 0, p.Phase)
		}
		if p.Message != "" {
			d.Info(fmt.Sprintf("iteration %d", p.Iteration), p.Message)
		}

	case events.AutobuildPlan:
		p, ok := ev.Payload.(events.AutobuildPlanPayload)
		if !ok {
			return
		}
		d.Box("PLAN", fmt.Sprintf("iteration %d: %s", p.Iteration, p.PlanName))

	case events.AutobuildDone:
		p, ok := ev.Payload.(events.AutobuildDonePayload)
		if !ok {
			return
		}
		d.AutobuildDone(p.StopReason, p.IterationsRun)
	}
}
