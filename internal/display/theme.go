package display

import "github.com/fatih/color"

// Box drawing characters
const (
	BoxTopLeft     = "┌"
	BoxTopRight    = "┐"
	BoxBottomLeft  = "└"
	BoxBottomRight = "┘"
	BoxHorizontal  = "─"
	BoxVertical    = "│"
	SectionBreak   = "━"
)

// Status symbols
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolResume  = "↻"
	SymbolPending = "○"
	SymbolPartial = "◐"
)

// IndentExecutor is the indentation for executor-tool output lines.
const IndentExecutor = "  "

// Theme holds all color functions for loom's visual hierarchy: core
// narration, executor-tool output, the decision gate's approval prompt, and
// the autobuild loop's phase banner each get a distinct voice so a
// scrolling autobuild session reads as separate channels instead of one
// undifferentiated stream.
type Theme struct {
	// Core: loom's own run/autobuild narration (prominent)
	CoreBorder func(a ...interface{}) string
	CoreLabel  func(a ...interface{}) string
	CoreText   func(a ...interface{}) string

	// Executor: the external code-mutation tool's streamed stdout/stderr
	// (subdued — it's quoted output, not loom speaking)
	ExecutorTimestamp func(a ...interface{}) string
	ExecutorText      func(a ...interface{}) string
	ExecutorStderr    func(a ...interface{}) string

	// Decision: the dependency-file approval prompt a sync run blocks on.
	// This has no ralph analogue — it's the one place loom stops and waits
	// on a human — so it gets its own hue instead of riding on Warning.
	DecisionLabel func(a ...interface{}) string
	DecisionFile  func(a ...interface{}) string

	// AutobuildPhase marks the iteration-loop banner, distinct from a
	// single run's Info lines so iterations stand out while scrolling.
	AutobuildPhase func(a ...interface{}) string

	// Status indicators
	Success func(a ...interface{}) string
	Error   func(a ...interface{}) string
	Warning func(a ...interface{}) string
	Info    func(a ...interface{}) string

	// Structural elements
	Bold      func(a ...interface{}) string
	Dim       func(a ...interface{}) string
	Separator func(a ...interface{}) string
}

// DefaultTheme creates the default color theme.
func DefaultTheme() *Theme {
	return &Theme{
		// Core narration in blue — loom's own identity color.
		CoreBorder: color.New(color.FgBlue).SprintFunc(),
		CoreLabel:  color.New(color.FgBlue, color.Bold).SprintFunc(),
		CoreText:   color.New(color.FgWhite).SprintFunc(),

		ExecutorTimestamp: color.New(color.FgHiBlack).SprintFunc(),
		ExecutorText:      color.New(color.FgWhite).SprintFunc(),
		ExecutorStderr:    color.New(color.FgYellow).SprintFunc(),

		// Magenta is reserved for the decision gate so an approval prompt
		// never reads as just another warning line.
		DecisionLabel: color.New(color.FgMagenta, color.Bold).SprintFunc(),
		DecisionFile:  color.New(color.FgMagenta).SprintFunc(),

		AutobuildPhase: color.New(color.FgGreen, color.Bold).SprintFunc(),

		Success: color.New(color.FgGreen).SprintFunc(),
		Error:   color.New(color.FgRed).SprintFunc(),
		Warning: color.New(color.FgYellow).SprintFunc(),
		Info:    color.New(color.FgCyan).SprintFunc(),

		Bold:      color.New(color.Bold).SprintFunc(),
		Dim:       color.New(color.FgHiBlack).SprintFunc(),
		Separator: color.New(color.FgBlue).SprintFunc(),
	}
}

// NoColorTheme creates a theme without colors (for --no-color flag or non-TTY).
func NoColorTheme() *Theme {
	identity := func(a ...interface{}) string {
		if len(a) == 0 {
			return ""
		}
		return a[0].(string)
	}
	return &Theme{
		CoreBorder:        identity,
		CoreLabel:         identity,
		CoreText:          identity,
		ExecutorTimestamp: identity,
		ExecutorText:      identity,
		ExecutorStderr:    identity,
		DecisionLabel:     identity,
		DecisionFile:      identity,
		AutobuildPhase:    identity,
		Success:           identity,
		Error:             identity,
		Warning:           identity,
		Info:              identity,
		Bold:              identity,
		Dim:               identity,
		Separator:         identity,
	}
}
