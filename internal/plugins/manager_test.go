package plugins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvex/runbook/internal/tools"
	"github.com/calvex/runbook/pkg/schema"
)

func TestNewManager(t *testing.T) {
	pm := NewManager(tools.NewRegistry(), nil)
	require.NotNil(t, pm)
	assert.Empty(t, pm.Status())
}

func TestLoad_InvalidCommand(t *testing.T) {
	pm := NewManager(tools.NewRegistry(), nil)

	err := pm.Load(context.Background(), Config{
		Name:    "bad-plugin",
		Command: "/nonexistent/binary/path",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start plugin")
}

func TestLoad_EmptyName(t *testing.T) {
	pm := NewManager(tools.NewRegistry(), nil)

	err := pm.Load(context.Background(), Config{Command: "echo"})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrCode(err))
}

func TestLoad_DuplicateName(t *testing.T) {
	pm := NewManager(tools.NewRegistry(), nil)

	// Manually add a fake plugin to simulate existing.
	pm.mu.Lock()
	pm.plugins["dup"] = &managedPlugin{
		config: Config{Name: "dup"},
		status: "healthy",
	}
	pm.mu.Unlock()

	err := pm.Load(context.Background(), Config{
		Name:    "dup",
		Command: "echo",
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, schema.ErrCode(err))
}

func TestStop_NotFound(t *testing.T) {
	pm := NewManager(tools.NewRegistry(), nil)

	err := pm.Stop(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrCode(err))
}

func TestStatus(t *testing.T) {
	pm := NewManager(tools.NewRegistry(), nil)

	pm.mu.Lock()
	pm.plugins["p1"] = &managedPlugin{config: Config{Name: "p1"}, status: "healthy"}
	pm.plugins["p2"] = &managedPlugin{config: Config{Name: "p2"}, status: "unhealthy"}
	pm.mu.Unlock()

	status := pm.Status()
	assert.Len(t, status, 2)
	assert.Equal(t, "healthy", status["p1"])
	assert.Equal(t, "unhealthy", status["p2"])
}

func TestStopAll_Empty(t *testing.T) {
	pm := NewManager(tools.NewRegistry(), nil)

	require.NoError(t, pm.StopAll(context.Background()))
}

func TestDiscover_NotFound(t *testing.T) {
	pm := NewManager(tools.NewRegistry(), nil)

	err := pm.Discover(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrCode(err))
}

func TestInvoke_UnknownPlugin(t *testing.T) {
	pm := NewManager(tools.NewRegistry(), nil)

	_, err := pm.Invoke(context.Background(), "ghost", "anything", nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrCode(err))
}

func TestMcpTool_Schema(t *testing.T) {
	tool := &mcpTool{
		name:        "create_issue",
		description: "Create an issue",
		inputSchema: []byte(`{"type":"object"}`),
	}

	assert.Equal(t, "create_issue", tool.Name())
	s := tool.Schema()
	assert.Equal(t, "Create an issue", s.Description)
	assert.JSONEq(t, `{"type":"object"}`, string(s.InputSchema))
	assert.NoError(t, tool.Validate(nil))
}

func TestFlattenCallResult(t *testing.T) {
	text := flattenCallResult(map[string]any{
		"content": []any{
			map[string]any{"type": "text", "text": "line one"},
			map[string]any{"type": "text", "text": "line two"},
		},
	})
	assert.Equal(t, "line one\nline two", text)

	raw := flattenCallResult(map[string]any{"ok": true})
	assert.JSONEq(t, `{"ok":true}`, raw)
}

func TestHealthCheckStatus(t *testing.T) {
	mp := &managedPlugin{
		config: Config{Name: "health-test"},
		status: "healthy",
	}

	// Simulate consecutive errors.
	mp.errCount = 2
	mp.lastErr = "connection timeout"
	mp.errCount++

	if mp.errCount >= 3 {
		mp.status = "unhealthy"
	}

	assert.Equal(t, "unhealthy", mp.status)
	assert.Equal(t, 3, mp.errCount)
}
