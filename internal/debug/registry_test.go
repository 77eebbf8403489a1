package debug

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvex/runbook/pkg/schema"
)

func newTestRegistry(t *testing.T) (*Registry, *fakeRunner) {
	t.Helper()
	runner := &fakeRunner{}
	reg := NewRegistry(newTestExecutor(t, runner), nil)
	t.Cleanup(reg.Close)
	return reg, runner
}

func TestRegistry_CreateAndGet(t *testing.T) {
	reg, _ := newTestRegistry(t)

	s, err := reg.Create(context.Background(), threeStepWorkflow(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)

	got, err := reg.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	v, err := got.View()
	require.NoError(t, err)
	assert.Equal(t, schema.SessionNotStarted, v.State)
	assert.Equal(t, "walk", v.WorkflowName)
}

func TestRegistry_CreateRejectsMissingArgs(t *testing.T) {
	reg, _ := newTestRegistry(t)

	wf := &schema.Workflow{
		ID:   "wf-1",
		Name: "strict",
		Arguments: []schema.Argument{
			{Name: "target", Required: true},
		},
		Steps: []schema.Step{commandStep("s1", "{{target}}")},
	}

	_, err := reg.Create(context.Background(), wf, nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrCode(err))
	assert.Empty(t, reg.List())
}

func TestRegistry_GetUnknown(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Get("missing")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeSessionNotFound, schema.ErrCode(err))
}

func TestRegistry_List(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	s1, err := reg.Create(ctx, threeStepWorkflow(), nil)
	require.NoError(t, err)
	s2, err := reg.Create(ctx, threeStepWorkflow(), nil)
	require.NoError(t, err)

	views := reg.List()
	require.Len(t, views, 2)
	assert.True(t, views[0].ID < views[1].ID)

	ids := []string{views[0].ID, views[1].ID}
	assert.Contains(t, ids, s1.ID)
	assert.Contains(t, ids, s2.ID)
}

func TestRegistry_Remove(t *testing.T) {
	reg, _ := newTestRegistry(t)

	s, err := reg.Create(context.Background(), threeStepWorkflow(), nil)
	require.NoError(t, err)

	require.NoError(t, reg.Remove(s.ID))

	_, err = reg.Get(s.ID)
	require.Error(t, err)

	// The removed session is closed and rejects further commands.
	err = s.Start()
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeSessionNotFound, schema.ErrCode(err))

	require.Error(t, reg.Remove(s.ID))
}
