package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loomrun/loom/internal/decision"
)

func TestCreateRunWritesInitialJSON(t *testing.T) {
	root := t.TempDir()
	s := New(filepath.Join(root, "runs"))

	h, err := s.CreateRun("/workspace", "add logging", PlanSummary{Name: "p", StepsCount: 2})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	defer h.Finalize(0, false, false, false, false, false)

	data, err := os.ReadFile(h.jsonPath)
	if err != nil {
		t.Fatalf("reading run.json: %v", err)
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if run.RunID != h.RunID() || run.Requirement != "add logging" {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestAppendStepAndFinalize(t *testing.T) {
	root := t.TempDir()
	s := New(filepath.Join(root, "runs"))
	h, err := s.CreateRun("/workspace", "r", PlanSummary{Name: "p", StepsCount: 1})
	if err != nil {
		t.Fatal(err)
	}

	if err := h.AppendStep(StepRecord{StepIndex: 1, Type: "note", ExitCode: 0}); err != nil {
		t.Fatalf("AppendStep: %v", err)
	}
	if err := h.Finalize(0, false, false, false, false, false); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	run, err := s.ReadRun(h.RunID())
	if err != nil {
		t.Fatalf("ReadRun: %v", err)
	}
	if len(run.Steps) != 1 || run.Steps[0].Type != "note" {
		t.Fatalf("unexpected steps: %+v", run.Steps)
	}
	if run.ExitCode != 0 || run.EndTime.IsZero() {
		t.Fatalf("unexpected finalized run: %+v", run)
	}

	if _, err := os.Stat(filepath.Join(h.Dir(), "output.log")); err != nil {
		t.Fatalf("expected output.log to exist: %v", err)
	}
}

func TestMergeDecisionAfterFinalize(t *testing.T) {
	root := t.TempDir()
	s := New(filepath.Join(root, "runs"))
	h, _ := s.CreateRun("/workspace", "r", PlanSummary{Name: "p", StepsCount: 1})
	if err := h.Finalize(0, false, false, false, false, true); err != nil {
		t.Fatal(err)
	}

	if err := h.MergeDecision(decision.Record{Type: "dependency_change", Result: decision.Approved, Files: []string{"package.json"}}); err != nil {
		t.Fatalf("MergeDecision: %v", err)
	}

	run, err := s.ReadRun(h.RunID())
	if err != nil {
		t.Fatal(err)
	}
	if run.Decision == nil || run.Decision.Result != decision.Approved {
		t.Fatalf("expected merged decision, got %+v", run.Decision)
	}
}

func TestRunsRootCreatesDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "runs")
	s := New(root)
	got, err := s.RunsRoot()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(got); err != nil {
		t.Fatalf("expected directory to be created: %v", err)
	}
}

func TestListRecentOrdersByModTime(t *testing.T) {
	root := t.TempDir()
	s := New(filepath.Join(root, "runs"))
	h1, _ := s.CreateRun("/w", "first", PlanSummary{Name: "p", StepsCount: 1})
	h1.Finalize(0, false, false, false, false, false)
	h2, _ := s.CreateRun("/w", "second", PlanSummary{Name: "p", StepsCount: 1})
	h2.Finalize(0, false, false, false, false, false)
	earlier := time.Now().Add(-time.Hour)
	if err := os.Chtimes(h1.Dir(), earlier, earlier); err != nil {
		t.Fatal(err)
	}

	names, err := s.ListRecent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 runs, got %v", names)
	}
	if names[0] != h2.RunID() || names[1] != h1.RunID() {
		t.Fatalf("expected most recently modified first, got %v", names)
	}
}

func TestNewRunIDIsSortable(t *testing.T) {
	a := NewRunID()
	b := NewRunID()
	if a == b {
		t.Fatal("expected distinct run IDs")
	}
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("expected ULID-length IDs, got %d and %d", len(a), len(b))
	}
	if a >= b {
		t.Fatalf("expected %s to sort before %s", a, b)
	}
}
