package tools

import (
	"context"
	"encoding/json"
)

// Tool is an invocable unit exposed to tool_call steps. Invoke receives
// structured arguments (already placeholder-resolved) and returns a
// textual result.
type Tool interface {
	Name() string
	Schema() ToolSchema
	Invoke(ctx context.Context, args map[string]any) (string, error)
	Validate(args map[string]any) error
}

// Invoker is the executor-facing lookup-and-invoke surface. A lookup
// failure is a step failure, never an engine-fatal error.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (string, error)
}

// ToolSchema describes the input contract of a tool.
type ToolSchema struct {
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
	Description string          `json:"description,omitempty"`
}

// ToolInfo is a summary of a registered tool for listing.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
