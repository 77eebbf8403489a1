package schema

import "time"

// StepRecord is the history entry written for every step that started,
// skipped, or failed. Variables holds a full snapshot of the execution
// context as it existed before the step ran, which is what makes
// postmortem and time-travel inspection possible without re-execution.
type StepRecord struct {
	Index      int            `json:"index"`
	StepID     string         `json:"step_id"`
	StepName   string         `json:"step_name"`
	Status     StepStatus     `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Output     string         `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	Variables  map[string]any `json:"variables"`
}

// RunResult is the overall outcome of one workflow run.
type RunResult struct {
	RunID        string         `json:"run_id"`
	WorkflowID   string         `json:"workflow_id"`
	WorkflowName string         `json:"workflow_name"`
	Status       RunStatus      `json:"status"`
	Records      []StepRecord   `json:"records"`
	Outputs      map[string]any `json:"outputs,omitempty"` // captured output variables
	Error        string         `json:"error,omitempty"`
	FailedStepID string         `json:"failed_step_id,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
}
