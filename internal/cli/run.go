package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loomrun/loom/internal/decision"
	"github.com/loomrun/loom/internal/display"
	"github.com/loomrun/loom/internal/events"
	"github.com/loomrun/loom/internal/planmodel"
)

var runCmd = &cobra.Command{
	Use:   "run <plan.json>",
	Short: "Execute a plan synchronously, prompting for decisions on stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("cannot read plan file: %w", err)
		}
		plan, verrs := planmodel.Parse(data)
		if verrs != nil && verrs.HasErrors() {
			return fmt.Errorf("invalid plan:\n%s", verrs.ToPrompt())
		}

		a, err := newApp(cwd)
		if err != nil {
			return err
		}

		stop := make(chan struct{})
		go display.Subscribe(a.display, a.bus, stop)
		go promptDecisions(a, stop)

		runID, err := a.executor.RunPlan(cwd, plan, plan.TrimmedName(), decision.Sync)
		close(stop)
		if err != nil {
			return err
		}

		run, err := a.store.ReadRun(runID)
		if err != nil {
			return err
		}
		a.display.RunDone(run.ExitCode, run.BlockedByPolicy, run.Cancelled, run.Timeout)
		if run.ExitCode != 0 {
			os.Exit(1)
		}
		return nil
	},
}

// promptDecisions reads an approve/reject answer from stdin for every
// run:decision event until stop is closed, submitting the result back to
// the Decision gate the Run executor is blocked on (§4.5).
func promptDecisions(a *app, stop <-chan struct{}) {
	ch := a.bus.Subscribe(events.RunDecision)
	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-stop:
			return
		case ev := <-ch:
			p, ok := ev.Payload.(events.RunDecisionPayload)
			if !ok {
				continue
			}
			line, _ := reader.ReadString('\n')
			result := decision.Rejected
			if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y") {
				result = decision.Approved
			}
			a.gate.SubmitDecision(p.RunID, result)
		}
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
}
