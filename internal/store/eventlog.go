package store

import (
	"context"
	"fmt"
	"time"

	"github.com/calvex/runbook/pkg/schema"
)

// EventLog provides journal operations on top of a LibSQLStore.
type EventLog struct {
	store *LibSQLStore
}

// NewEventLog wraps a LibSQLStore to provide journal operations.
func NewEventLog(s *LibSQLStore) *EventLog {
	return &EventLog{store: s}
}

// AppendEvent appends an event with a monotonically increasing per-run
// sequence. A write-intent statement forces lock acquisition up front so
// concurrent writers cannot interleave sequence reads and writes.
func (el *EventLog) AppendEvent(ctx context.Context, event *schema.Event) error {
	db := el.store.DB()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin immediate tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode, BeginTx alone may start a deferred transaction.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE run_id = ?`, event.RunID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := marshalPayload(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (id, run_id, session_id, step_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.RunID, nullStr(event.SessionID), nullStr(event.StepID),
		event.Type, payload, event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns events for a run with sequence > since, ordered by sequence ASC.
func (el *EventLog) GetEvents(ctx context.Context, runID string, since int64) ([]schema.Event, error) {
	return el.store.ListEvents(ctx, runID, since)
}

// ReplayedStep is a step's state as reconstructed from the journal.
type ReplayedStep struct {
	StepID     string
	Status     schema.StepStatus
	Retries    int
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// ReplayEvents replays a run's journal and reconstructs per-step states.
// Returns an error if sequence gaps are detected.
func (el *EventLog) ReplayEvents(ctx context.Context, runID string) (map[string]*ReplayedStep, error) {
	events, err := el.store.ListEvents(ctx, runID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	steps := make(map[string]*ReplayedStep)
	if len(events) == 0 {
		return steps, nil
	}

	// Validate sequence contiguity.
	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in run %s: expected %d, got %d", runID, expected, e.Sequence)
		}
	}

	for _, e := range events {
		if e.StepID == "" {
			continue
		}

		st, ok := steps[e.StepID]
		if !ok {
			st = &ReplayedStep{StepID: e.StepID, Status: schema.StepStatusPending}
			steps[e.StepID] = st
		}

		switch e.Type {
		case schema.EventStepStarted:
			st.Status = schema.StepStatusRunning
			ts := e.Timestamp
			st.StartedAt = &ts

		case schema.EventStepCompleted:
			st.Status = schema.StepStatusCompleted
			ts := e.Timestamp
			st.FinishedAt = &ts

		case schema.EventStepFailed:
			st.Status = schema.StepStatusFailed
			ts := e.Timestamp
			st.FinishedAt = &ts

		case schema.EventStepSkipped:
			st.Status = schema.StepStatusSkipped
			ts := e.Timestamp
			st.FinishedAt = &ts

		case schema.EventStepRetrying:
			st.Retries++

		case schema.EventPromptRequested:
			// The step stays running while it waits; nothing to change.
		}
	}

	return steps, nil
}
