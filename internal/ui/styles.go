package ui

import (
	"fmt"

	"github.com/alfredjeanlab/agentsmith/internal/model"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorWarn   = 179 // amber
	colorFail   = 203 // red
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return paint(colorCmd, s) }

// RenderError returns s in the failure (red) color.
func RenderError(s string) string { return paint(colorFail, s) }

// RenderSignal colors a presence signal by how much attention it needs.
func RenderSignal(sig model.Signal) string {
	s := string(sig)
	switch sig {
	case model.SignalBuildFailed, model.SignalTestsFailed, model.SignalHighTokenUsage:
		return paint(colorFail, s)
	case model.SignalWaitingForInput, model.SignalLongRunningCommand:
		return paint(colorWarn, s)
	case model.SignalBuildSucceeded, model.SignalTestsPassed, model.SignalSessionStarted:
		return paint(colorOK, s)
	case model.SignalIdle, model.SignalSessionEnded:
		return paint(colorMuted, s)
	}
	return paint(colorAccent, s)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
