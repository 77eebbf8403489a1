package debug

import (
	"github.com/calvex/runbook/pkg/schema"
)

// ValidSessionTransitions defines the allowed state transitions for debug
// sessions. Restart is the only way out of a terminal state, modeled as a
// transition back to not_started.
// Steps only execute in running, so completion and failure are reachable
// from running alone; single-stepping passes through running even when it
// immediately re-pauses.
var ValidSessionTransitions = map[schema.SessionState][]schema.SessionState{
	schema.SessionNotStarted: {
		schema.SessionRunning,
		schema.SessionStopped,
	},
	schema.SessionRunning: {
		schema.SessionPaused,
		schema.SessionStepBreakpoint,
		schema.SessionCompleted,
		schema.SessionFailed,
		schema.SessionStopped,
	},
	schema.SessionPaused: {
		schema.SessionRunning,
		schema.SessionStopped,
		schema.SessionNotStarted,
	},
	schema.SessionStepBreakpoint: {
		schema.SessionRunning,
		schema.SessionPaused,
		schema.SessionStopped,
		schema.SessionNotStarted,
	},
	schema.SessionCompleted: {schema.SessionNotStarted},
	schema.SessionFailed:    {schema.SessionNotStarted},
	schema.SessionStopped:   {schema.SessionNotStarted},
}

// CanTransition reports whether the session state machine allows from -> to.
func CanTransition(from, to schema.SessionState) bool {
	for _, a := range ValidSessionTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

func invalidTransition(sessionID string, from, to schema.SessionState) error {
	return schema.NewErrorf(schema.ErrCodeInvalidTransition,
		"invalid session transition: %s -> %s", from, to).
		WithDetails(map[string]any{
			"session_id": sessionID,
			"from":       string(from),
			"to":         string(to),
		})
}
