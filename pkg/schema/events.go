package schema

import "time"

// Event type constants for the run journal and the live event stream.
const (
	EventRunStarted   = "run_started"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
	EventRunStopped   = "run_stopped"

	EventStepStarted   = "step_started"
	EventStepCompleted = "step_completed"
	EventStepFailed    = "step_failed"
	EventStepSkipped   = "step_skipped"
	EventStepRetrying  = "step_retrying"

	EventPromptRequested = "prompt_requested"
	EventPromptAnswered  = "prompt_answered"

	EventBreakpointHit  = "breakpoint_hit"
	EventSessionPaused  = "session_paused"
	EventSessionResumed = "session_resumed"
	EventSessionRestart = "session_restarted"
	EventVariableSet    = "variable_set"

	EventEngineError = "engine_error"
)

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusStopped   RunStatus = "stopped"
)

// StepStatus represents the lifecycle state of a step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// SessionState represents the debug-session state machine.
type SessionState string

const (
	SessionNotStarted     SessionState = "not_started"
	SessionRunning        SessionState = "running"
	SessionPaused         SessionState = "paused"
	SessionStepBreakpoint SessionState = "step_breakpoint"
	SessionCompleted      SessionState = "completed"
	SessionFailed         SessionState = "failed"
	SessionStopped        SessionState = "stopped"
)

// Terminal reports whether the state admits no further step execution.
func (s SessionState) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionStopped
}

// Event is one entry in a run's ordered event stream. Sequence is
// monotonically increasing per run; cross-run ordering is unspecified.
type Event struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	SessionID string         `json:"session_id,omitempty"`
	Type      string         `json:"type"`
	StepID    string         `json:"step_id,omitempty"`
	Sequence  int64          `json:"sequence"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
