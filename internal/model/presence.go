package model

import "encoding/json"

// Signal is the coarse activity state of a session shown in presence.
type Signal string

const (
	SignalSessionStarted     Signal = "SessionStarted"
	SignalSessionEnded       Signal = "SessionEnded"
	SignalActive             Signal = "Active"
	SignalIdle               Signal = "Idle"
	SignalCommandRunning     Signal = "CommandRunning"
	SignalLongRunningCommand Signal = "LongRunningCommand"
	SignalWaitingForInput    Signal = "WaitingForInput"
	SignalBuildSucceeded     Signal = "BuildSucceeded"
	SignalBuildFailed        Signal = "BuildFailed"
	SignalTestsPassed        Signal = "TestsPassed"
	SignalTestsFailed        Signal = "TestsFailed"
	SignalHighTokenUsage     Signal = "HighTokenUsage"
	SignalLowTokenUsage      Signal = "LowTokenUsage"
)

// IsValid reports whether s is a known signal.
func (s Signal) IsValid() bool {
	switch s {
	case SignalSessionStarted, SignalSessionEnded, SignalActive, SignalIdle,
		SignalCommandRunning, SignalLongRunningCommand, SignalWaitingForInput,
		SignalBuildSucceeded, SignalBuildFailed, SignalTestsPassed, SignalTestsFailed,
		SignalHighTokenUsage, SignalLowTokenUsage:
		return true
	}
	return false
}

// SessionEndTypes are event types that remove a session from presence.
var SessionEndTypes = []string{"hook.SessionEnd", "session.ended"}

var typeSignals = map[string]Signal{
	"hook.SessionStart": SignalSessionStarted,
	"session.started":   SignalSessionStarted,
	"hook.Stop":         SignalIdle,
	"hook.Notification": SignalWaitingForInput,
	"hook.PreToolUse":   SignalCommandRunning,
}

// SignalFor derives the presence signal from an event. A "session.signal"
// event may carry an explicit {"signal": "..."} payload.
func SignalFor(e *Event) Signal {
	if e.Type == "session.signal" && len(e.Payload) > 0 {
		var p struct {
			Signal Signal `json:"signal"`
		}
		if err := json.Unmarshal(e.Payload, &p); err == nil && p.Signal.IsValid() {
			return p.Signal
		}
	}
	if s, ok := typeSignals[e.Type]; ok {
		return s
	}
	return SignalActive
}

// PresenceSession is one live session in a room's presence view.
type PresenceSession struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	SessionID   string `json:"session_id"`
	Signal      Signal `json:"signal"`
	UpdatedAt   int64  `json:"updated_at"`
}
