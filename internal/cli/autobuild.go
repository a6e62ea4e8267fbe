package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loomrun/loom/internal/display"
	"github.com/loomrun/loom/internal/events"
)

var autobuildMaxIterations int

var autobuildCmd = &cobra.Command{
	Use:   "autobuild <requirement>",
	Short: "Plan and run a requirement in a loop until it stops itself",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		a, err := newApp(cwd)
		if err != nil {
			return err
		}

		maxIterations := a.cfg.Autobuild.MaxIterations
		if autobuildMaxIterations > 0 {
			maxIterations = autobuildMaxIterations
		}

		stop := make(chan struct{})
		done := a.bus.Subscribe(events.AutobuildDone)
		go display.Subscribe(a.display, a.bus, stop)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case <-sigCh:
				a.autobuild.CancelAutobuild()
			case <-stop:
			}
		}()

		if err := a.autobuild.Start(context.Background(), cwd, args[0], maxIterations); err != nil {
			close(stop)
			return err
		}

		<-done
		close(stop)
		return nil
	},
}

func init() {
	autobuildCmd.Flags().IntVar(&autobuildMaxIterations, "max-iterations", 0, "override autobuild.max_iterations from config")
	rootCmd.AddCommand(autobuildCmd)
}
