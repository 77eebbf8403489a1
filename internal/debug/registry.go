package debug

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/calvex/runbook/internal/engine"
	"github.com/calvex/runbook/pkg/schema"
)

// Registry tracks live debug sessions. This is the only shared mutable
// state in the debug layer; each session's internals stay confined to its
// own goroutine.
type Registry struct {
	mu       sync.RWMutex
	exec     *engine.Executor
	logger   *slog.Logger
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry bound to an executor.
func NewRegistry(exec *engine.Executor, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		exec:     exec,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session for the workflow. The session starts in
// not_started; callers issue Start or StepOver to begin execution.
func (r *Registry) Create(ctx context.Context, wf *schema.Workflow, args map[string]any) (*Session, error) {
	// Reject unrunnable workflows up front rather than at Start.
	if _, err := r.exec.NewRun(wf, args); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s := NewSession(ctx, id, r.exec, wf, args, r.logger)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	return s, nil
}

// Get returns the session with the given ID.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeSessionNotFound, "session %q not found", id)
	}
	return s, nil
}

// List returns snapshots of all live sessions, ordered by session ID.
func (r *Registry) List() []View {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	views := make([]View, 0, len(sessions))
	for _, s := range sessions {
		v, err := s.View()
		if err != nil {
			continue
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

// Remove stops a session if needed and drops it from the registry.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return schema.NewErrorf(schema.ErrCodeSessionNotFound, "session %q not found", id)
	}

	// Stop is a no-op for sessions that already ended.
	_ = s.Stop()
	s.Close()
	return nil
}

// Close stops and releases every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.Stop()
		s.Close()
	}
}
