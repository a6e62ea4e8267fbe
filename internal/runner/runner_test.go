package runner

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/loomrun/loom/internal/decision"
	"github.com/loomrun/loom/internal/events"
	"github.com/loomrun/loom/internal/planmodel"
	"github.com/loomrun/loom/internal/store"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0644); err != nil {
		t.Fatal(err)
	}
	run("add", "a.txt")
	run("commit", "-q", "-m", "initial")
	return dir
}

func newExecutor(t *testing.T) *Executor {
	t.Helper()
	st := store.New(t.TempDir())
	gate := decision.New(nil)
	bus := events.New()
	return New(st, gate, bus, Options{})
}

func TestRunPlanWorkspaceUnset(t *testing.T) {
	e := newExecutor(t)
	plan := &planmodel.Plan{Name: "p", Steps: []planmodel.Step{{Type: planmodel.StepNote, Message: "x"}}}
	_, err := e.RunPlan("", plan, "req", decision.Sync)
	rerr, ok := err.(*Error)
	if !ok || rerr.Kind != KindWorkspaceUnset {
		t.Fatalf("expected WorkspaceUnset, got %v", err)
	}
}

func TestRunPlanEmptyPlan(t *testing.T) {
	e := newExecutor(t)
	_, err := e.RunPlan(t.TempDir(), &planmodel.Plan{Name: "p"}, "req", decision.Sync)
	rerr, ok := err.(*Error)
	if !ok || rerr.Kind != KindEmptyPlan {
		t.Fatalf("expected EmptyPlan, got %v", err)
	}
}

func TestRunPlanNotARepository(t *testing.T) {
	e := newExecutor(t)
	plan := &planmodel.Plan{Name: "p", Steps: []planmodel.Step{{Type: planmodel.StepNote, Message: "x"}}}
	_, err := e.RunPlan(t.TempDir(), plan, "req", decision.Sync)
	rerr, ok := err.(*Error)
	if !ok || rerr.Kind != KindNotARepository {
		t.Fatalf("expected NotARepository, got %v", err)
	}
}

func TestRunPlanNoteAndCmdSuccess(t *testing.T) {
	dir := initRepo(t)
	e := newExecutor(t)
	plan := &planmodel.Plan{Name: "p", Steps: []planmodel.Step{
		{Type: planmodel.StepNote, Message: "checking status"},
		{Type: planmodel.StepCmd, Command: "git status"},
	}}
	runID, err := e.RunPlan(dir, plan, "req", decision.Sync)
	if err != nil {
		t.Fatalf("RunPlan: %v", err)
	}
	run, err := e.store.ReadRun(runID)
	if err != nil {
		t.Fatalf("ReadRun: %v", err)
	}
	if run.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", run.ExitCode)
	}
	if len(run.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2", len(run.Steps))
	}
	if run.Steps[1].Evidence == nil {
		t.Fatal("expected evidence on the cmd step")
	}
}

func TestRunPlanBlockedByPolicy(t *testing.T) {
	dir := initRepo(t)
	e := newExecutor(t)
	plan := &planmodel.Plan{Name: "p", Steps: []planmodel.Step{
		{Type: planmodel.StepNote, Message: "x"},
		{Type: planmodel.StepCmd, Command: "rm -rf /"},
	}}
	runID, err := e.RunPlan(dir, plan, "req", decision.Sync)
	if err != nil {
		t.Fatalf("RunPlan: %v", err)
	}
	run, _ := e.store.ReadRun(runID)
	if !run.BlockedByPolicy || run.ExitCode != -1 {
		t.Fatalf("expected blocked_by_policy with exitCode -1, got %+v", run)
	}
}

func TestRunPlanContentSearchProbeRemapsExitOne(t *testing.T) {
	dir := initRepo(t)
	e := newExecutor(t)
	plan := &planmodel.Plan{Name: "p", Steps: []planmodel.Step{
		{Type: planmodel.StepNote, Message: "x"},
		{Type: planmodel.StepCmd, Command: "git grep nonexistent-token-xyz"},
	}}
	runID, err := e.RunPlan(dir, plan, "req", decision.Sync)
	if err != nil {
		t.Fatalf("RunPlan: %v", err)
	}
	run, _ := e.store.ReadRun(runID)
	if run.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0 (probe no-match remapped)", run.ExitCode)
	}
}

func TestCancelRunUnknownReturnsFalse(t *testing.T) {
	e := newExecutor(t)
	if e.CancelRun("nonexistent") {
		t.Fatal("expected false for an unknown run id")
	}
}

func TestRunPlanAnotherRunActiveAndDecisionFlow(t *testing.T) {
	dir := initRepo(t)
	pkgPath := filepath.Join(dir, "package.json")
	if err := os.WriteFile(pkgPath, []byte(`{"ok":true}`), 0644); err != nil {
		t.Fatal(err)
	}
	commit := exec.Command("git", "-C", dir, "add", "package.json")
	if out, err := commit.CombinedOutput(); err != nil {
		t.Fatalf("git add: %v\n%s", err, out)
	}
	commit = exec.Command("git", "-C", dir, "commit", "-q", "-m", "add package.json")
	if out, err := commit.CombinedOutput(); err != nil {
		t.Fatalf("git commit: %v\n%s", err, out)
	}
	// Modify the tracked file so `git diff --name-only` reports it.
	if err := os.WriteFile(pkgPath, []byte(`{"ok":false}`), 0644); err != nil {
		t.Fatal(err)
	}
	e := newExecutor(t)
	plan := &planmodel.Plan{Name: "p", Steps: []planmodel.Step{
		{Type: planmodel.StepNote, Message: "x"},
		{Type: planmodel.StepCmd, Command: "git status"},
	}}

	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		runID, err := e.RunPlan(dir, plan, "req", decision.Sync)
		resultCh <- runID
		errCh <- err
	}()

	var runID string
	for i := 0; i < 200; i++ {
		runID = e.ActiveRunID()
		if runID != "" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if runID == "" {
		t.Fatal("run never became active")
	}

	_, err := e.RunPlan(dir, plan, "req", decision.Sync)
	rerr, ok := err.(*Error)
	if !ok || rerr.Kind != KindAnotherRunActive {
		t.Fatalf("expected AnotherRunActive, got %v", err)
	}

	for i := 0; i < 200; i++ {
		if e.gate.HasPending(runID) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !e.gate.SubmitDecision(runID, decision.Approved) {
		t.Fatal("expected a pending decision to submit")
	}

	got := <-resultCh
	if err := <-errCh; err != nil {
		t.Fatalf("RunPlan: %v", err)
	}
	if got != runID {
		t.Fatalf("runID mismatch: %s vs %s", got, runID)
	}

	run, _ := e.store.ReadRun(runID)
	if run.Decision == nil || run.Decision.Result != decision.Approved {
		t.Fatalf("expected a merged approved decision, got %+v", run.Decision)
	}
}
