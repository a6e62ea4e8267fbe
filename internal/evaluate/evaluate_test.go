package evaluate

import "testing"

func TestEvaluateSuspiciousNoChange(t *testing.T) {
	e := Evaluate(0, []string{"a.go"}, []string{"a.go"}, false)
	if !e.SuspiciousNoChange || e.HasChanges {
		t.Fatalf("unexpected: %+v", e)
	}
	if e.NoOp {
		t.Fatalf("expected NoOp false without a precheck hit: %+v", e)
	}
	if !e.NeedsRetry() {
		t.Fatal("expected NeedsRetry to be true")
	}
}

func TestEvaluateNoOpWithPrecheckHit(t *testing.T) {
	e := Evaluate(0, []string{"a.go"}, []string{"a.go"}, true)
	if !e.NoOp {
		t.Fatalf("expected NoOp true with precheck hit: %+v", e)
	}
	if e.NeedsRetry() {
		t.Fatal("NoOp steps should not retry")
	}
}

func TestEvaluateHasChanges(t *testing.T) {
	e := Evaluate(0, []string{"a.go"}, []string{"a.go", "b.go"}, false)
	if !e.HasChanges || e.SuspiciousNoChange {
		t.Fatalf("unexpected: %+v", e)
	}
	if len(e.ChangedFiles) != 1 || e.ChangedFiles[0] != "b.go" {
		t.Fatalf("ChangedFiles = %v", e.ChangedFiles)
	}
}

func TestEvaluateNonZeroExitNeverSuspicious(t *testing.T) {
	e := Evaluate(1, []string{"a.go"}, []string{"a.go"}, false)
	if e.SuspiciousNoChange {
		t.Fatal("non-zero exit must not be classified suspicious_no_change")
	}
}

func TestEvaluateOrderPreservedOnDiff(t *testing.T) {
	e := Evaluate(0, nil, []string{"z.go", "a.go"}, false)
	if len(e.ChangedFiles) != 2 || e.ChangedFiles[0] != "z.go" || e.ChangedFiles[1] != "a.go" {
		t.Fatalf("expected current-order preserved, got %v", e.ChangedFiles)
	}
}

func TestTrackerLifecycle(t *testing.T) {
	tr := &Tracker{}
	tr.ObserveCmdStep(`git grep -n "X" -- f.ts`, "f.ts:1:X\n")
	if !tr.Hit() {
		t.Fatal("expected precheck hit after content-search probe with output")
	}
	tr.ObserveCmdStep("git status", "")
	if !tr.Hit() {
		t.Fatal("a non-probe cmd step must not clear the flag")
	}
	tr.ClearOnNote()
	if tr.Hit() {
		t.Fatal("a note step must clear the flag")
	}
}

func TestTrackerEmptyProbeOutputClears(t *testing.T) {
	tr := &Tracker{}
	tr.ObserveCmdStep(`git grep -n "X" -- f.ts`, "f.ts:1:X\n")
	tr.ObserveCmdStep(`git grep -n "X" -- f.ts`, "")
	if tr.Hit() {
		t.Fatal("expected no hit when the probe produced no output")
	}
}
