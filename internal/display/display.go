// Package display formats loom's console output: a boxed style for core
// orchestration messages (admission, decisions, run/autobuild status) and a
// subdued gutter style for the executor tool's own streamed stdout/stderr,
// kept visually distinct the same way the teacher separated its own
// messages from the coding agent's.
package display

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

// Display handles all CLI output with visual hierarchy.
type Display struct {
	theme     *Theme
	termWidth int
	noColor   bool
}

// New creates a new Display instance.
func New() *Display {
	return NewWithOptions(false)
}

// NewWithOptions creates a Display with configuration.
func NewWithOptions(noColor bool) *Display {
	d := &Display{
		termWidth: getTerminalWidth(),
		noColor:   noColor,
	}
	if noColor {
		d.theme = NoColorTheme()
	} else {
		d.theme = DefaultTheme()
	}
	return d
}

// getTerminalWidth returns the terminal width, defaulting to 80.
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < 40 {
		return 80
	}
	if width > 120 {
		return 120
	}
	return width
}

// Box prints a boxed message with a custom title, e.g. "LOOM" or "AUTOBUILD",
// in the core border/text colors. Content is capped at boxLineCap lines —
// boxes are meant as compact summaries, not a place to dump long output.
const boxLineCap = 5

func (d *Display) Box(title string, lines ...string) {
	d.coloredBox(title, d.theme.CoreBorder, d.theme.CoreText, lines...)
}

// DecisionBox prints a boxed message in the decision gate's own color, used
// by Decision below so the one place loom blocks on human input is never
// mistaken for an ordinary status box.
func (d *Display) DecisionBox(title string, lines ...string) {
	d.coloredBox(title, d.theme.DecisionLabel, d.theme.DecisionFile, lines...)
}

func (d *Display) coloredBox(title string, border, text func(a ...interface{}) string, lines ...string) {
	if len(lines) == 0 {
		return
	}
	if len(lines) > boxLineCap {
		lines = append(append([]string{}, lines[:boxLineCap-1]...),
			fmt.Sprintf("... and %d more", len(lines)-(boxLineCap-1)))
	}

	width := d.termWidth - 2
	titleLen := len(title) + 4 // "─ TITLE "
	remainingWidth := width - titleLen

	topLine := BoxTopLeft + BoxHorizontal + " " + title + " " + strings.Repeat(BoxHorizontal, remainingWidth) + BoxTopRight
	fmt.Println(border(topLine))

	for _, line := range lines {
		paddedLine := d.padRight(line, width-2)
		fmt.Println(border(BoxVertical) + " " + text(paddedLine) + " " + border(BoxVertical))
	}

	bottomLine := BoxBottomLeft + strings.Repeat(BoxHorizontal, width) + BoxBottomRight
	fmt.Println(border(bottomLine))
}

// Status prints a single-line core status message (no box).
func (d *Display) Status(symbol, message string) {
	timestamp := time.Now().Format("[15:04:05]")
	fmt.Printf("%s %s %s\n", d.theme.CoreBorder(timestamp), symbol, d.theme.CoreText(message))
}

// Success prints a success message with a green checkmark.
func (d *Display) Success(message string) {
	d.Status(d.theme.Success(SymbolSuccess), message)
}

// Error prints an error message with a red X.
func (d *Display) Error(message string) {
	d.Status(d.theme.Error(SymbolError), message)
}

// Warning prints a warning message with a yellow triangle.
func (d *Display) Warning(message string) {
	d.Status(d.theme.Warning(SymbolWarning), message)
}

// Info prints a labeled info message.
func (d *Display) Info(label, message string) {
	d.Status(d.theme.Info(label+":"), message)
}

// wrapText wraps text to the given width, capped at maxLines with an
// ellipsis on the final line. The cap is a parameter rather than a fixed
// constant; its one caller, ExecutorOutput, passes executorOutputLineCap
// because executor output can be a multi-file diff. Boxes do not use
// wrapText: coloredBox applies its own boxLineCap.
func (d *Display) wrapText(text string, maxWidth, maxLines int) []string {
	if maxWidth <= 0 {
		maxWidth = 80
	}
	if maxLines <= 0 {
		maxLines = 5
	}

	text = strings.TrimSpace(text)
	if len(text) <= maxWidth {
		return []string{text}
	}

	var lines []string
	words := strings.Fields(text)
	var currentLine strings.Builder

	for _, word := range words {
		if currentLine.Len()+len(word)+1 > maxWidth {
			if currentLine.Len() > 0 {
				lines = append(lines, currentLine.String())
				currentLine.Reset()
			}
		}
		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}
	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}

	if len(lines) > maxLines {
		lines = lines[:maxLines]
		last := maxLines - 1
		if len(lines[last]) > maxWidth-3 {
			lines[last] = lines[last][:maxWidth-3]
		}
		lines[last] = lines[last] + "..."
	}

	return lines
}

// executorOutputLineCap is generous relative to boxLineCap: executor output
// is often a multi-file diff summary, not a short status line, so it gets
// more room before the wrap truncates it.
const executorOutputLineCap = 12

// ExecutorOutput prints one line of the executor tool's streamed stdout,
// with a dim timestamp gutter to distinguish it from core status lines.
func (d *Display) ExecutorOutput(text string) {
	timestamp := time.Now().Format("[15:04:05]")
	for i, line := range d.wrapText(text, d.termWidth-12, executorOutputLineCap) {
		if i == 0 {
			fmt.Printf("%s%s %s\n", IndentExecutor, d.theme.ExecutorTimestamp(timestamp), d.theme.ExecutorText(line))
		} else {
			fmt.Printf("%s%s\n", strings.Repeat(" ", 2+len(timestamp)+1), d.theme.ExecutorText(line))
		}
	}
}

// ExecutorStderr prints one line of the executor tool's streamed stderr in a
// warning color, keeping it visually distinct from stdout.
func (d *Display) ExecutorStderr(text string) {
	timestamp := time.Now().Format("[15:04:05]")
	fmt.Printf("%s%s %s\n", IndentExecutor, d.theme.ExecutorTimestamp(timestamp), d.theme.ExecutorStderr(text))
}

// SectionBreak prints a horizontal separator for run/step boundaries, in the
// neutral core separator color.
func (d *Display) SectionBreak() {
	d.coloredSectionBreak(d.theme.Separator)
}

// autobuildSectionBreak prints the same separator in the autobuild phase
// color, so an iteration boundary reads differently from a plain step
// boundary inside a single run.
func (d *Display) autobuildSectionBreak() {
	d.coloredSectionBreak(d.theme.AutobuildPhase)
}

func (d *Display) coloredSectionBreak(c func(a ...interface{}) string) {
	fmt.Println(c(strings.Repeat(SectionBreak, d.termWidth)))
}

// StepHeader prints the "Step k/n" banner before dispatching a plan step.
func (d *Display) StepHeader(index, total int, stepType string) {
	d.SectionBreak()
	fmt.Println(d.theme.Info(fmt.Sprintf("Step %d/%d", index, total)) + " " + stepType)
}

// RunDone prints the final outcome of a run.
func (d *Display) RunDone(exitCode int, blockedByPolicy, cancelled, timedOut bool) {
	switch {
	case blockedByPolicy:
		d.Error("blocked by policy")
	case cancelled:
		d.Warning("run cancelled")
	case timedOut:
		d.Error("run timed out")
	case exitCode == 0:
		d.Success("run complete")
	default:
		d.Error(fmt.Sprintf("run failed (exit %d)", exitCode))
	}
}

// Decision prints the dependency-change prompt a sync-mode run blocks on, in
// the decision gate's own magenta voice rather than the generic core box.
func (d *Display) Decision(files []string) {
	d.DecisionBox("DECISION", append([]string{"Dependency files changed:"}, files...)...)
	fmt.Print(d.theme.DecisionLabel("Approve? [y/N]: "))
}

// AutobuildIteration prints the iteration banner for the autobuild loop,
// bracketed by autobuild-colored section breaks instead of the neutral ones
// a single run's StepHeader uses.
func (d *Display) AutobuildIteration(current, max int, phase string) {
	d.autobuildSectionBreak()
	fmt.Println(d.theme.AutobuildPhase(fmt.Sprintf("Autobuild iteration %d/%d", current, max)) + " " + phase)
	d.autobuildSectionBreak()
}

// AutobuildDone prints the autobuild loop's final stop reason.
func (d *Display) AutobuildDone(stopReason string, iterationsRun int) {
	fmt.Printf("\n%s Autobuild stopped: %s (%d iteration(s) run)\n",
		d.theme.Success(SymbolSuccess), stopReason, iterationsRun)
}

// Duration prints execution duration.
func (d *Display) Duration(dur time.Duration) {
	fmt.Printf("   Duration: %s\n", dur.Round(time.Second))
}

// Theme returns the current theme for external use.
func (d *Display) Theme() *Theme {
	return d.theme
}

// padRight pads a string to the specified width. Domain-free string
// utility — no loom-specific behavior to adapt here.
func (d *Display) padRight(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

// Truncate truncates text to max length with ellipsis. Domain-free string
// utility — no loom-specific behavior to adapt here.
func Truncate(s string, max int) string {
	s = CleanText(s)
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// CleanText removes newlines and collapses spaces. Domain-free string
// utility — no loom-specific behavior to adapt here.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return strings.TrimSpace(s)
}
