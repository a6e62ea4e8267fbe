package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCount int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List recent runs from the runs-root",
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		a, err := newApp(cwd)
		if err != nil {
			return err
		}

		runIDs, err := a.store.ListRecent(statusCount)
		if err != nil {
			return err
		}
		if len(runIDs) == 0 {
			fmt.Println("No runs yet.")
			return nil
		}

		for _, runID := range runIDs {
			run, err := a.store.ReadRun(runID)
			if err != nil {
				a.display.Warning(fmt.Sprintf("%s: %v", runID, err))
				continue
			}
			status := "running"
			switch {
			case run.BlockedByPolicy:
				status = "blocked_by_policy"
			case run.Cancelled:
				status = "cancelled"
			case run.Timeout:
				status = "timeout"
			case !run.EndTime.IsZero() && run.ExitCode == 0:
				status = "done"
			case !run.EndTime.IsZero():
				status = fmt.Sprintf("failed (exit %d)", run.ExitCode)
			}
			fmt.Printf("%s  %-20s %s\n", runID, status, run.Plan.Name)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusCount, "n", 10, "number of recent runs to show")
	rootCmd.AddCommand(statusCmd)
}
