package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/calvex/runbook/pkg/schema"
)

// Registry is the concrete thread-safe tool registry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry. Returns error on duplicate name.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return schema.NewError(schema.ErrCodeValidation, "tool is nil")
	}
	name := tool.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "tool %q already registered", name)
	}

	r.tools[name] = tool
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeToolNotFound, "tool %q not registered", name)
	}
	return tool, nil
}

// Invoke looks a tool up and runs it, satisfying the Invoker interface.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	tool, err := r.Get(name)
	if err != nil {
		return "", err
	}
	if err := tool.Validate(args); err != nil {
		return "", err
	}
	out, err := tool.Invoke(ctx, args)
	if err != nil {
		if _, ok := err.(*schema.RunbookError); ok {
			return "", err
		}
		return "", schema.NewErrorf(schema.ErrCodeToolFailed, "tool %q: %s", name, err.Error()).WithCause(err)
	}
	return out, nil
}

// List returns info for all registered tools, sorted by name.
func (r *Registry) List() []ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		s := t.Schema()
		infos = append(infos, ToolInfo{
			Name:        t.Name(),
			Description: s.Description,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// RegisterPlugin bulk-registers tools under a prefixed namespace.
// Each tool name becomes "prefix:originalName" (e.g. "github:create_issue").
func (r *Registry) RegisterPlugin(prefix string, ts []Tool) (int, error) {
	if prefix == "" {
		return 0, schema.NewError(schema.ErrCodeValidation, "plugin prefix is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	registered := 0
	for _, t := range ts {
		prefixed := fmt.Sprintf("%s:%s", prefix, t.Name())
		if _, exists := r.tools[prefixed]; exists {
			return registered, schema.NewErrorf(schema.ErrCodeConflict, "plugin tool %q already registered", prefixed)
		}
		r.tools[prefixed] = &prefixedTool{inner: t, name: prefixed}
		registered++
	}
	return registered, nil
}

// UnregisterPrefix removes all tools registered under a plugin prefix.
func (r *Registry) UnregisterPrefix(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	marker := prefix + ":"
	for name := range r.tools {
		if len(name) > len(marker) && name[:len(marker)] == marker {
			delete(r.tools, name)
			removed++
		}
	}
	return removed
}

// Has checks if a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// prefixedTool wraps a plugin tool with a prefixed name.
type prefixedTool struct {
	inner Tool
	name  string
}

func (p *prefixedTool) Name() string                     { return p.name }
func (p *prefixedTool) Schema() ToolSchema               { return p.inner.Schema() }
func (p *prefixedTool) Validate(args map[string]any) error { return p.inner.Validate(args) }

func (p *prefixedTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return p.inner.Invoke(ctx, args)
}

var _ Invoker = (*Registry)(nil)
