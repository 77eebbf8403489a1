package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvex/runbook/pkg/schema"
)

func TestSeedContext_DefaultsAndOverrides(t *testing.T) {
	wf := &schema.Workflow{
		Arguments: []schema.Argument{
			{Name: "name", Default: "world"},
			{Name: "count", Default: float64(3)},
			{Name: "target", Required: true},
		},
	}

	vars := SeedContext(wf, map[string]any{"name": "runbook", "target": "prod"})

	assert.Equal(t, "runbook", vars["name"])
	assert.Equal(t, float64(3), vars["count"])
	assert.Equal(t, "prod", vars["target"])
}

func TestMissingRequiredArgs(t *testing.T) {
	wf := &schema.Workflow{
		Arguments: []schema.Argument{
			{Name: "a", Required: true},
			{Name: "b", Required: true, Default: "fallback"},
			{Name: "c"},
		},
	}

	missing := MissingRequiredArgs(wf, nil)
	assert.Equal(t, []string{"a"}, missing)

	missing = MissingRequiredArgs(wf, map[string]any{"a": "x"})
	assert.Empty(t, missing)
}

func TestSnapshot_Isolation(t *testing.T) {
	vars := map[string]any{
		"scalar": "v",
		"nested": map[string]any{"inner": []any{1, 2}},
	}

	snap := Snapshot(vars)

	vars["scalar"] = "changed"
	vars["nested"].(map[string]any)["inner"].([]any)[0] = 99

	assert.Equal(t, "v", snap["scalar"])
	require.IsType(t, map[string]any{}, snap["nested"])
	assert.Equal(t, 1, snap["nested"].(map[string]any)["inner"].([]any)[0])
}

func TestSnapshot_Nil(t *testing.T) {
	snap := Snapshot(nil)
	require.NotNil(t, snap)
	assert.Empty(t, snap)
}
