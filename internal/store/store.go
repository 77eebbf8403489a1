package store

import (
	"context"

	"github.com/calvex/runbook/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRun(ctx context.Context, id string, update RunUpdate) error
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	// Step records (append-only history)
	AppendStepRecord(ctx context.Context, runID string, rec schema.StepRecord) error
	ListStepRecords(ctx context.Context, runID string) ([]schema.StepRecord, error)

	// Event journal (append-only, per-run monotonic sequence)
	AppendEvent(ctx context.Context, event *schema.Event) error
	ListEvents(ctx context.Context, runID string, since int64) ([]schema.Event, error)
	ListEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]schema.Event, error)

	// Scheduled jobs
	CreateScheduledJob(ctx context.Context, job *ScheduledJob) error
	GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error)
	UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error
	ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error)
	DeleteScheduledJob(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}

// EventFilter specifies criteria for listing events.
type EventFilter struct {
	RunID     string `json:"run_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	StepID    string `json:"step_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}
