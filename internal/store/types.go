package store

import (
	"encoding/json"
	"time"

	"github.com/calvex/runbook/pkg/schema"
)

// Run is the persisted header row of one workflow execution. Step-level
// detail lives in step_records; the ordered journal lives in events.
type Run struct {
	ID           string           `json:"id"`
	WorkflowID   string           `json:"workflow_id"`
	WorkflowName string           `json:"workflow_name"`
	SessionID    string           `json:"session_id,omitempty"`
	Mode         string           `json:"mode"` // direct, debug, scheduled
	Status       schema.RunStatus `json:"status"`
	Error        string           `json:"error,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`
}

// RunUpdate specifies mutable fields of a run.
type RunUpdate struct {
	Status     schema.RunStatus `json:"status,omitempty"`
	Error      *string          `json:"error,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	WorkflowID string           `json:"workflow_id,omitempty"`
	SessionID  string           `json:"session_id,omitempty"`
	Status     schema.RunStatus `json:"status,omitempty"`
	Since      *time.Time       `json:"since,omitempty"`
	Limit      int              `json:"limit,omitempty"`
	Offset     int              `json:"offset,omitempty"`
}

// ScheduledJob is a cron-triggered workflow execution.
type ScheduledJob struct {
	ID             string          `json:"id"`
	WorkflowName   string          `json:"workflow_name"`
	CronExpression string          `json:"cron_expression"`
	Args           json.RawMessage `json:"args,omitempty"`
	Enabled        bool            `json:"enabled"`
	LastRunAt      *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time      `json:"next_run_at,omitempty"`
	LastRunStatus  string          `json:"last_run_status,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ScheduledJobUpdate specifies mutable fields of a scheduled job.
type ScheduledJobUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// ScheduledJobFilter specifies criteria for listing scheduled jobs.
type ScheduledJobFilter struct {
	Enabled      *bool  `json:"enabled,omitempty"`
	WorkflowName string `json:"workflow_name,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}
