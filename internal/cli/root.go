// Package cli is the thin cobra shell over loom's core packages — the same
// role the teacher's internal/cli plays over internal/executor, just
// wired to plan/run/autobuild/status instead of discuss/run/status/roadmap.
package cli

import (
	"fmt"
	osexec "os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/loomrun/loom/internal/autobuild"
	"github.com/loomrun/loom/internal/config"
	"github.com/loomrun/loom/internal/decision"
	"github.com/loomrun/loom/internal/display"
	"github.com/loomrun/loom/internal/events"
	"github.com/loomrun/loom/internal/planner"
	"github.com/loomrun/loom/internal/policy"
	"github.com/loomrun/loom/internal/procsup"
	"github.com/loomrun/loom/internal/runner"
	"github.com/loomrun/loom/internal/store"
	"github.com/loomrun/loom/internal/utils"
)

var (
	// Version is set by goreleaser via ldflags.
	Version = "dev"
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:     "loom",
	Short:   "Plan, run, and autobuild code changes against a git workspace",
	Version: Version,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.SetVersionTemplate(fmt.Sprintf("loom version %s\n", Version))
}

// app bundles the wired-together core for one CLI invocation.
type app struct {
	cfg       *config.Config
	store     *store.Store
	bus       *events.Bus
	gate      *decision.Gate
	executor  *runner.Executor
	planner   *planner.Planner
	autobuild *autobuild.Controller
	display   *display.Display
}

// newApp loads config for workspace, applies it to the package-level
// policy/procsup knobs it controls, and wires the core's components
// together exactly as spec.md §4's dependency graph requires: Run executor
// holds Store+Gate+Bus, Autobuild controller holds Planner+Runner+Store+Bus.
func newApp(workspace string) (*app, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}

	policy.AllowedCommandPrefixes = unionPrefixes(policy.AllowedCommandPrefixes, cfg.Policy.CommandAllowlist)
	procsup.RunTimeout = time.Duration(cfg.Supervisor.RunTimeoutSeconds) * time.Second
	procsup.KillGrace = time.Duration(cfg.Supervisor.KillGraceSeconds) * time.Second

	st := store.New(runsRoot(workspace))
	bus := events.New()
	gate := decision.New(cfg.Policy.DependencyFiles)
	executorBinary := utils.ResolveBinaryPath(cfg.Executor.Binary)
	if _, err := osexec.LookPath(executorBinary); err != nil {
		return nil, utils.BinaryNotFoundError(cfg.Executor.Binary)
	}
	exec := runner.New(st, gate, bus, runner.Options{ExecutorBinary: executorBinary})

	plannerClient, err := planner.NewFromEnv(cfg.Planner.Model, cfg.Planner.Temperature, st)
	if err != nil {
		return nil, err
	}

	ctrl := autobuild.New(plannerClient, exec, st, bus)

	return &app{
		cfg:       cfg,
		store:     st,
		bus:       bus,
		gate:      gate,
		executor:  exec,
		planner:   plannerClient,
		autobuild: ctrl,
		display:   display.NewWithOptions(noColor),
	}, nil
}

func runsRoot(workspace string) string {
	return filepath.Join(workspace, ".loom", "runs")
}

// unionPrefixes extends base with any entries from extra not already
// present, preserving order and never dropping an existing prefix. Config's
// policy.command_allowlist is documented as "additional allowed command
// prefixes beyond the built-in VCS client token" — additive, not a
// replacement — so the fixed git baseline in policy.AllowedCommandPrefixes
// must survive even if a user's config omits it.
func unionPrefixes(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	result := append([]string{}, base...)
	for _, p := range result {
		seen[p] = true
	}
	for _, p := range extra {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}
	return result
}
