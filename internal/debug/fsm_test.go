package debug

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/calvex/runbook/pkg/schema"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct {
		from, to schema.SessionState
	}{
		{schema.SessionNotStarted, schema.SessionRunning},
		{schema.SessionRunning, schema.SessionPaused},
		{schema.SessionRunning, schema.SessionStepBreakpoint},
		{schema.SessionRunning, schema.SessionCompleted},
		{schema.SessionRunning, schema.SessionFailed},
		{schema.SessionPaused, schema.SessionRunning},
		{schema.SessionStepBreakpoint, schema.SessionRunning},
		{schema.SessionCompleted, schema.SessionNotStarted},
		{schema.SessionFailed, schema.SessionNotStarted},
		{schema.SessionStopped, schema.SessionNotStarted},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr.from, tr.to), "%s -> %s", tr.from, tr.to)
	}

	forbidden := []struct {
		from, to schema.SessionState
	}{
		{schema.SessionNotStarted, schema.SessionCompleted},
		{schema.SessionRunning, schema.SessionNotStarted},
		{schema.SessionCompleted, schema.SessionRunning},
		{schema.SessionStopped, schema.SessionRunning},
		{schema.SessionFailed, schema.SessionPaused},
	}
	for _, tr := range forbidden {
		assert.False(t, CanTransition(tr.from, tr.to), "%s -> %s", tr.from, tr.to)
	}
}
