package decision

import (
	"testing"
	"time"
)

func TestEvaluateNoOpWhenNoMatch(t *testing.T) {
	g := New(nil)
	out := g.Evaluate("r1", []string{"src/main.go"}, Sync)
	if !out.NoOp {
		t.Fatalf("expected NoOp, got %+v", out)
	}
}

func TestEvaluateSyncApproved(t *testing.T) {
	g := New(nil)
	done := make(chan Outcome, 1)
	go func() {
		done <- g.Evaluate("r1", []string{"package.json"}, Sync)
	}()

	// Give Evaluate a moment to register the pending entry.
	deadline := time.After(time.Second)
	for !g.HasPending("r1") {
		select {
		case <-deadline:
			t.Fatal("pending decision never registered")
		default:
		}
	}

	if !g.SubmitDecision("r1", Approved) {
		t.Fatal("SubmitDecision returned false")
	}

	out := <-done
	if out.Record.Result != Approved {
		t.Fatalf("Result = %v, want Approved", out.Record.Result)
	}
	if len(out.Record.Files) != 1 || out.Record.Files[0] != "package.json" {
		t.Fatalf("Files = %v", out.Record.Files)
	}
}

func TestEvaluateAsyncPending(t *testing.T) {
	g := New(nil)
	var resolvedRunID string
	var resolvedRec Record
	g.OnResolved = func(runID string, rec Record) {
		resolvedRunID = runID
		resolvedRec = rec
	}

	out := g.Evaluate("r2", []string{"yarn.lock"}, Async)
	if !out.Pending {
		t.Fatalf("expected Pending outcome, got %+v", out)
	}
	if !g.HasPending("r2") {
		t.Fatal("expected r2 to be pending")
	}

	if !g.SubmitDecision("r2", Approved) {
		t.Fatal("SubmitDecision returned false")
	}
	if resolvedRunID != "r2" || resolvedRec.Result != Approved {
		t.Fatalf("OnResolved not invoked correctly: %q %+v", resolvedRunID, resolvedRec)
	}
	if g.HasPending("r2") {
		t.Fatal("expected r2 to be removed from pending after resolution")
	}
}

func TestCancelResolvesRejected(t *testing.T) {
	g := New(nil)
	done := make(chan Outcome, 1)
	go func() {
		done <- g.Evaluate("r3", []string{"package-lock.json"}, Sync)
	}()

	deadline := time.After(time.Second)
	for !g.HasPending("r3") {
		select {
		case <-deadline:
			t.Fatal("pending decision never registered")
		default:
		}
	}

	g.Cancel("r3")
	out := <-done
	if out.Record.Result != Rejected {
		t.Fatalf("Result = %v, want Rejected", out.Record.Result)
	}
}

func TestMatchDependencyFilesBasenameOnly(t *testing.T) {
	g := New(nil)
	matched := g.MatchDependencyFiles([]string{"frontend/package.json", "src/main.go", "vendor/package-lock.json"})
	if len(matched) != 2 {
		t.Fatalf("matched = %v", matched)
	}
}

func TestSubmitDecisionUnknownRun(t *testing.T) {
	g := New(nil)
	if g.SubmitDecision("missing", Approved) {
		t.Fatal("expected false for unknown runID")
	}
}
