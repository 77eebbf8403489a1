package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorkflow_Valid(t *testing.T) {
	data := []byte(`{
		"id": "wf-1",
		"name": "greet",
		"arguments": [{"name": "who", "default": "world"}],
		"steps": [
			{"id": "s1", "kind": "command", "command": {"command": "echo {{who}}"}}
		]
	}`)

	wf, err := ParseWorkflow(data)
	require.NoError(t, err)
	assert.Equal(t, "greet", wf.Name)
	require.Len(t, wf.Steps, 1)
	assert.Equal(t, StepKindCommand, wf.Steps[0].Kind)
	assert.Equal(t, "echo {{who}}", wf.Steps[0].Command.Command)
}

func TestParseWorkflow_UnknownKind(t *testing.T) {
	data := []byte(`{
		"id": "wf-1",
		"name": "bad",
		"steps": [{"id": "s1", "kind": "teleport"}]
	}`)

	_, err := ParseWorkflow(data)
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, ErrCode(err))
	assert.Contains(t, err.Error(), "unknown step kind")
}

func TestParseWorkflow_MissingSpecBlock(t *testing.T) {
	data := []byte(`{
		"id": "wf-1",
		"name": "bad",
		"steps": [{"id": "s1", "kind": "tool_call"}]
	}`)

	_, err := ParseWorkflow(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no matching spec block")
}

func TestOutputSpec_EffectiveMode(t *testing.T) {
	var o *OutputSpec
	assert.Equal(t, OutputModeRaw, o.EffectiveMode())
	assert.Equal(t, OutputModeRaw, (&OutputSpec{}).EffectiveMode())
	assert.Equal(t, OutputModeJQ, (&OutputSpec{Mode: OutputModeJQ}).EffectiveMode())
}

func TestWorkflow_Lookups(t *testing.T) {
	wf := &Workflow{
		Arguments: []Argument{{Name: "env"}},
		Steps: []Step{
			{ID: "build", Kind: StepKindCommand, Command: &CommandSpec{Command: "make"}},
		},
	}

	require.NotNil(t, wf.FindStep("build"))
	assert.Nil(t, wf.FindStep("ship"))
	require.NotNil(t, wf.ArgumentByName("env"))
	assert.Nil(t, wf.ArgumentByName("region"))
}
