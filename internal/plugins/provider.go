package plugins

import (
	"context"
)

// Host is the executor-facing surface for plugin_action steps. A lookup
// failure is a step failure, never an engine-fatal error.
type Host interface {
	Invoke(ctx context.Context, plugin, action string, args map[string]any) (string, error)
}

var _ Host = (*Manager)(nil)
