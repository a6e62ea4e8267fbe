// Package evidence runs the three read-only VCS queries the core consults
// after every non-note step (§4.4), formats them into the fixed-order log
// block streamed to output.log/run:output, and parses the name-only query
// into the changed-path lists the Decision gate and Evaluator need.
//
// Grounded on the teacher's internal/executor/executor.go CommitAndPushRepos
// (shelling `git -C <repo> ...`); unlike that function, evidence.Collect
// never mutates the tree — it only ever reads it.
package evidence

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// Keys used in the Evidence.Queries map and in the persisted run record.
const (
	KeyStatus     = "status"
	KeyDiffStat   = "diff_stat"
	KeyNameOnly   = "diff_name_only"
)

// Evidence is the result of one Collect call.
type Evidence struct {
	Queries map[string]string
	Error   string // set instead of Queries when a query failed
}

// Collect runs status/diff --stat/diff --name-only in the given workspace,
// in that fixed order. If any command exits non-zero, Collect returns an
// Evidence with Error set and no Queries.
func Collect(workspaceDir string) Evidence {
	status, err := run(workspaceDir, "status", "--porcelain")
	if err != nil {
		return Evidence{Error: fmt.Sprintf("status query failed: %v", err)}
	}
	diffStat, err := run(workspaceDir, "diff", "--stat")
	if err != nil {
		return Evidence{Error: fmt.Sprintf("diff --stat query failed: %v", err)}
	}
	nameOnly, err := run(workspaceDir, "diff", "--name-only")
	if err != nil {
		return Evidence{Error: fmt.Sprintf("diff --name-only query failed: %v", err)}
	}

	return Evidence{Queries: map[string]string{
		KeyStatus:   status,
		KeyDiffStat: diffStat,
		KeyNameOnly: nameOnly,
	}}
}

// NameOnly runs a single `git diff --name-only` query, used by the Run
// executor to capture the baseline_files snapshot before an executor step
// (§4.6) without paying for the other two queries.
func NameOnly(workspaceDir string) (string, error) {
	return run(workspaceDir, "diff", "--name-only")
}

func run(dir, subcommand string, args ...string) (string, error) {
	argv := append([]string{"-C", dir, subcommand}, args...)
	cmd := exec.Command("git", argv...)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Block renders Evidence as the fixed-order human-readable text emitted to
// output.log / run:output as a "system" line.
func (e Evidence) Block() string {
	if e.Error != "" {
		return "[evidence] failed: " + e.Error
	}
	var sb strings.Builder
	sb.WriteString("[evidence] status:\n")
	sb.WriteString(indent(e.Queries[KeyStatus]))
	sb.WriteString("[evidence] diff --stat:\n")
	sb.WriteString(indent(e.Queries[KeyDiffStat]))
	sb.WriteString("[evidence] diff --name-only:\n")
	sb.WriteString(indent(e.Queries[KeyNameOnly]))
	return sb.String()
}

func indent(s string) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return "  (none)\n"
	}
	var sb strings.Builder
	for _, line := range strings.Split(s, "\n") {
		sb.WriteString("  ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// ChangedFiles parses the diff --name-only output into a sorted,
// de-duplicated list of paths, as the Decision gate requires (§4.5).
func (e Evidence) ChangedFiles() []string {
	return ParseNameOnly(e.Queries[KeyNameOnly])
}

// ParseNameOnly splits a `git diff --name-only` stdout blob into a sorted,
// de-duplicated path list, as the Decision gate requires (§4.5).
func ParseNameOnly(stdout string) []string {
	files := ParseNameOnlyOrdered(stdout)
	sort.Strings(files)
	return files
}

// ParseNameOnlyOrdered splits a `git diff --name-only` stdout blob into a
// de-duplicated path list that preserves the order paths first appear in,
// as the Evaluator requires for its baseline/current set difference (§4.6).
func ParseNameOnlyOrdered(stdout string) []string {
	seen := map[string]bool{}
	var files []string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		files = append(files, line)
	}
	return files
}
