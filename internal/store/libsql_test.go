package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvex/runbook/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedRun(t *testing.T, s *LibSQLStore) *Run {
	t.Helper()
	r := &Run{
		ID:           uuid.New().String(),
		WorkflowID:   "wf-1",
		WorkflowName: "deploy",
		Mode:         "direct",
		Status:       schema.RunStatusRunning,
		StartedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.CreateRun(context.Background(), r))
	return r
}

// --- Run tests ---

func TestCreateAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := seedRun(t, s)

	got, err := s.GetRun(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, "deploy", got.WorkflowName)
	assert.Equal(t, schema.RunStatusRunning, got.Status)
	assert.Nil(t, got.FinishedAt)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrCode(err))
}

func TestUpdateRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := seedRun(t, s)

	now := time.Now().UTC()
	errMsg := "step s2 failed"
	require.NoError(t, s.UpdateRun(ctx, r.ID, RunUpdate{
		Status:     schema.RunStatusFailed,
		Error:      &errMsg,
		FinishedAt: &now,
	}))

	got, err := s.GetRun(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusFailed, got.Status)
	assert.Equal(t, errMsg, got.Error)
	require.NotNil(t, got.FinishedAt)
}

func TestUpdateRun_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateRun(context.Background(), "missing", RunUpdate{Status: schema.RunStatusCompleted})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrCode(err))
}

func TestListRuns_Filtered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r1 := seedRun(t, s)
	r2 := &Run{
		ID:           uuid.New().String(),
		WorkflowID:   "wf-2",
		WorkflowName: "backup",
		Mode:         "scheduled",
		Status:       schema.RunStatusCompleted,
		StartedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.CreateRun(ctx, r2))

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byWorkflow, err := s.ListRuns(ctx, RunFilter{WorkflowID: "wf-1"})
	require.NoError(t, err)
	require.Len(t, byWorkflow, 1)
	assert.Equal(t, r1.ID, byWorkflow[0].ID)

	byStatus, err := s.ListRuns(ctx, RunFilter{Status: schema.RunStatusCompleted})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, r2.ID, byStatus[0].ID)
}

// --- Step record tests ---

func TestAppendAndListStepRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := seedRun(t, s)

	for i, id := range []string{"s1", "s2"} {
		rec := schema.StepRecord{
			Index:     i,
			StepID:    id,
			Status:    schema.StepStatusCompleted,
			StartedAt: time.Now().UTC(),
			Output:    "out-" + id,
			Variables: map[string]any{"name": "world", "index": float64(i)},
		}
		require.NoError(t, s.AppendStepRecord(ctx, r.ID, rec))
	}

	records, err := s.ListStepRecords(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "s1", records[0].StepID)
	assert.Equal(t, "s2", records[1].StepID)
	assert.Equal(t, "world", records[0].Variables["name"])
	assert.Equal(t, float64(1), records[1].Variables["index"])
}

func TestAppendStepRecord_UpdatesOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := seedRun(t, s)

	rec := schema.StepRecord{
		Index:     0,
		StepID:    "s1",
		Status:    schema.StepStatusRunning,
		StartedAt: time.Now().UTC(),
		Variables: map[string]any{},
	}
	require.NoError(t, s.AppendStepRecord(ctx, r.ID, rec))

	rec.Status = schema.StepStatusFailed
	rec.Error = "exit status 1"
	require.NoError(t, s.AppendStepRecord(ctx, r.ID, rec))

	records, err := s.ListStepRecords(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, schema.StepStatusFailed, records[0].Status)
	assert.Equal(t, "exit status 1", records[0].Error)
}

// --- Event tests ---

func TestAppendEvent_AssignsSequencePerRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r1 := seedRun(t, s)
	r2 := seedRun(t, s)

	for i := 0; i < 3; i++ {
		ev := &schema.Event{ID: uuid.New().String(), RunID: r1.ID, Type: schema.EventStepStarted}
		require.NoError(t, s.AppendEvent(ctx, ev))
		assert.Equal(t, int64(i+1), ev.Sequence)
	}

	ev := &schema.Event{ID: uuid.New().String(), RunID: r2.ID, Type: schema.EventRunStarted}
	require.NoError(t, s.AppendEvent(ctx, ev))
	assert.Equal(t, int64(1), ev.Sequence)
}

func TestListEvents_SinceSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := seedRun(t, s)
	for _, typ := range []string{schema.EventRunStarted, schema.EventStepStarted, schema.EventStepCompleted} {
		require.NoError(t, s.AppendEvent(ctx, &schema.Event{
			ID: uuid.New().String(), RunID: r.ID, Type: typ,
			Payload: map[string]any{"k": "v"},
		}))
	}

	events, err := s.ListEvents(ctx, r.ID, 1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].Sequence)
	assert.Equal(t, int64(3), events[1].Sequence)
	assert.Equal(t, "v", events[0].Payload["k"])
}

func TestListEventsByType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := seedRun(t, s)
	require.NoError(t, s.AppendEvent(ctx, &schema.Event{
		ID: uuid.New().String(), RunID: r.ID, Type: schema.EventStepFailed, StepID: "s2",
	}))
	require.NoError(t, s.AppendEvent(ctx, &schema.Event{
		ID: uuid.New().String(), RunID: r.ID, Type: schema.EventStepStarted, StepID: "s1",
	}))

	events, err := s.ListEventsByType(ctx, schema.EventStepFailed, EventFilter{RunID: r.ID})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "s2", events[0].StepID)
}

// --- Scheduled job tests ---

func TestScheduledJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := &ScheduledJob{
		ID:             uuid.New().String(),
		WorkflowName:   "nightly-backup",
		CronExpression: "0 3 * * *",
		Args:           json.RawMessage(`{"target":"s3"}`),
		Enabled:        true,
	}
	require.NoError(t, s.CreateScheduledJob(ctx, job))

	got, err := s.GetScheduledJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "nightly-backup", got.WorkflowName)
	assert.True(t, got.Enabled)
	assert.JSONEq(t, `{"target":"s3"}`, string(got.Args))

	now := time.Now().UTC()
	disabled := false
	require.NoError(t, s.UpdateScheduledJob(ctx, job.ID, ScheduledJobUpdate{
		Enabled:       &disabled,
		LastRunAt:     &now,
		LastRunStatus: "completed",
	}))

	got, err = s.GetScheduledJob(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, "completed", got.LastRunStatus)
	require.NotNil(t, got.LastRunAt)

	enabled := true
	jobs, err := s.ListScheduledJobs(ctx, ScheduledJobFilter{Enabled: &enabled})
	require.NoError(t, err)
	assert.Empty(t, jobs)

	require.NoError(t, s.DeleteScheduledJob(ctx, job.ID))
	_, err = s.GetScheduledJob(ctx, job.ID)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrCode(err))
}
