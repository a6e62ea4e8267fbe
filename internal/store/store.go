// Package store implements the Run store (§3, §5): an append-only
// per-run directory holding run.json (rewritten atomically after every
// mutation) and output.log (streamed, append-only).
//
// The atomic-rewrite pattern is grounded verbatim on the teacher's
// internal/planner/planner.go SyncRoadmap: write to a sibling ".tmp" path,
// os.WriteFile, then os.Rename over the real path, removing the temp file
// on failure. run_id generation uses github.com/oklog/ulid/v2 to get a
// monotonic, lexicographically-sortable identifier derived from
// high-resolution wall-clock time, exactly as spec.md §3 requires.
package store

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/loomrun/loom/internal/decision"
	"github.com/loomrun/loom/internal/evaluate"
)

// PlanSummary is the persisted view of the Plan that produced a run.
type PlanSummary struct {
	Name       string `json:"name"`
	StepsCount int    `json:"stepsCount"`
}

// StepRecord is the per-step entity described in §3.
type StepRecord struct {
	StepIndex          int                  `json:"step_index"`
	Type               string               `json:"type"`
	StartedAt          time.Time            `json:"started_at"`
	EndedAt            time.Time            `json:"ended_at"`
	ExitCode           int                  `json:"exit_code"`
	Cancelled          bool                 `json:"cancelled"`
	Timeout            bool                 `json:"timeout"`
	BlockedByPolicy    bool                 `json:"blocked_by_policy,omitempty"`
	Tool               string               `json:"tool,omitempty"`
	InstructionsLength int                  `json:"instructions_length,omitempty"`
	Evaluation         *evaluate.Evaluation `json:"evaluation,omitempty"`
	Evidence           map[string]string    `json:"evidence,omitempty"`
}

// Run is the per-run entity persisted to run.json, per §3.
type Run struct {
	RunID         string      `json:"run_id"`
	WorkspacePath string      `json:"workspacePath"`
	Requirement   string      `json:"requirement"`
	StartTime     time.Time   `json:"startTime"`
	EndTime       time.Time   `json:"endTime,omitempty"`
	Plan          PlanSummary `json:"plan"`

	Steps    []StepRecord      `json:"steps"`
	Evidence map[string]string `json:"evidence,omitempty"`

	ExitCode            int              `json:"exitCode"`
	BlockedByPolicy      bool             `json:"blocked_by_policy,omitempty"`
	Timeout              bool             `json:"timeout,omitempty"`
	Cancelled            bool             `json:"cancelled,omitempty"`
	CancelledByDecision  bool             `json:"cancelled_by_decision,omitempty"`
	DecisionPending      bool             `json:"decision_pending,omitempty"`
	Decision             *decision.Record `json:"decision,omitempty"`
}

// runIDEntropy keeps IDs minted within the same millisecond increasing;
// ulid's monotonic reader is not safe for concurrent use, hence runIDMu.
var (
	runIDMu      sync.Mutex
	runIDEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewRunID mints a monotonic, lexicographically sortable run_id from the
// current wall clock.
func NewRunID() string {
	runIDMu.Lock()
	defer runIDMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), runIDEntropy).String()
}

// Store manages the runs-root directory.
type Store struct {
	root string
}

// New returns a Store rooted at root, which is NOT created until
// RunsRoot is called or a run is created — matching getRunsRoot()'s
// "creates the directory if missing" contract (§6).
func New(root string) *Store {
	return &Store{root: root}
}

// RunsRoot returns the runs-root directory, creating it if missing, per
// the getRunsRoot() request surface of §6.
func (s *Store) RunsRoot() (string, error) {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return "", fmt.Errorf("cannot create runs-root: %w", err)
	}
	return s.root, nil
}

// Handle manages one run's on-disk directory: run.json and output.log.
type Handle struct {
	mu       sync.Mutex
	dir      string
	jsonPath string
	logFile  *os.File
	run      Run
}

// CreateRun admits a new run: mints a run_id, creates its directory,
// opens output.log, and writes the initial run.json.
func (s *Store) CreateRun(workspacePath, requirement string, plan PlanSummary) (*Handle, error) {
	root, err := s.RunsRoot()
	if err != nil {
		return nil, err
	}
	runID := NewRunID()
	dir := filepath.Join(root, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create run directory: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(dir, "output.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("cannot open output.log: %w", err)
	}

	h := &Handle{
		dir:      dir,
		jsonPath: filepath.Join(dir, "run.json"),
		logFile:  logFile,
		run: Run{
			RunID:         runID,
			WorkspacePath: workspacePath,
			Requirement:   requirement,
			StartTime:     time.Now(),
			Plan:          plan,
		},
	}
	if err := h.writeJSONLocked(); err != nil {
		logFile.Close()
		return nil, err
	}
	return h, nil
}

// RunID returns the handle's run_id.
func (h *Handle) RunID() string {
	return h.run.RunID
}

// Dir returns the run's on-disk directory.
func (h *Handle) Dir() string {
	return h.dir
}

// AppendLog writes text verbatim to output.log.
func (h *Handle) AppendLog(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.logFile.WriteString(text)
	return err
}

// AppendStep appends rec to the run's step list and mirrors rec.Evidence
// onto the run-level Evidence field, then atomically rewrites run.json.
func (h *Handle) AppendStep(rec StepRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.run.Steps = append(h.run.Steps, rec)
	if rec.Evidence != nil {
		h.run.Evidence = rec.Evidence
	}
	return h.writeJSONLocked()
}

// Finalize sets end-of-run fields, closes output.log, and does a final
// atomic rewrite of run.json (§4.7's "on end" clause).
func (h *Handle) Finalize(exitCode int, blockedByPolicy, timedOut, cancelled, cancelledByDecision, decisionPending bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.run.EndTime = time.Now()
	h.run.ExitCode = exitCode
	h.run.BlockedByPolicy = blockedByPolicy
	h.run.Timeout = timedOut
	h.run.Cancelled = cancelled
	h.run.CancelledByDecision = cancelledByDecision
	h.run.DecisionPending = decisionPending
	if err := h.writeJSONLocked(); err != nil {
		return err
	}
	return h.logFile.Close()
}

// MergeDecision merges a decision record into an already-finalized run.json,
// per §4.5's "the Decision gate may merge a decision object into the record
// after the record has been finalized".
func (h *Handle) MergeDecision(rec decision.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.run.Decision = &rec
	return h.writeJSONLocked()
}

// Snapshot returns a copy of the run record as currently held in memory.
func (h *Handle) Snapshot() Run {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.run
}

func (h *Handle) writeJSONLocked() error {
	return writeAtomic(h.jsonPath, h.run)
}

// writeAtomic marshals v as indented JSON and writes it to path via a
// temp-sibling + rename, so a crash mid-write leaves either the previous
// or the new content intact (§5, §9) — the exact pattern of the teacher's
// SyncRoadmap.
func writeAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal run record: %w", err)
	}
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("cannot write temp run record: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("cannot rename temp run record: %w", err)
	}
	return nil
}

// ReadRun loads a persisted run record by run_id.
func (s *Store) ReadRun(runID string) (*Run, error) {
	data, err := os.ReadFile(filepath.Join(s.root, runID, "run.json"))
	if err != nil {
		return nil, err
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// MostRecent returns the run directory with the most recent modification
// time, used by the Planner client's Last-Run Summary (§4.8), or "" if no
// runs exist yet.
func (s *Store) MostRecent() (string, error) {
	root, err := s.RunsRoot()
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", err
	}
	var best string
	var bestMod time.Time
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(bestMod) {
			bestMod = info.ModTime()
			best = e.Name()
		}
	}
	return best, nil
}

// ListRecent returns up to n run_ids, most recent first — backs `loom
// status`, a natural consequence of the run store that the distilled
// spec's core-only scope left to the CLI layer.
func (s *Store) ListRecent(n int) ([]string, error) {
	root, err := s.RunsRoot()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	type stamped struct {
		name string
		mod  time.Time
	}
	var all []stamped
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		all = append(all, stamped{e.Name(), info.ModTime()})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].mod.After(all[j].mod) })
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.name
	}
	return names, nil
}
