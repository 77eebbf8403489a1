package library

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/calvex/runbook/pkg/schema"
)

// Library is a directory-backed collection of workflow definitions. Each
// workflow lives in its own YAML file named after the workflow. The full
// set is held in memory; Reload re-reads the directory.
type Library struct {
	dir    string
	logger *slog.Logger

	mu        sync.RWMutex
	workflows map[string]*schema.Workflow // by name
}

// New creates a Library over dir, creating the directory if needed, and
// loads every workflow found there. Files that fail to parse are skipped
// with a warning so one broken definition never hides the rest.
func New(dir string, logger *slog.Logger) (*Library, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "create library directory %q: %s", dir, err.Error()).WithCause(err)
	}

	l := &Library{
		dir:       dir,
		logger:    logger,
		workflows: make(map[string]*schema.Workflow),
	}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Dir returns the backing directory.
func (l *Library) Dir() string { return l.dir }

// Reload re-reads every workflow file in the directory, replacing the
// in-memory set.
func (l *Library) Reload() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "read library directory %q: %s", l.dir, err.Error()).WithCause(err)
	}

	loaded := make(map[string]*schema.Workflow)
	for _, entry := range entries {
		if entry.IsDir() || !isWorkflowFile(entry.Name()) {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())

		wf, err := loadFile(path)
		if err != nil {
			l.logger.Warn("skipping unreadable workflow file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		if prev, ok := loaded[wf.Name]; ok {
			l.logger.Warn("duplicate workflow name, keeping first",
				slog.String("name", wf.Name),
				slog.String("kept_id", prev.ID),
				slog.String("skipped_path", path),
			)
			continue
		}
		loaded[wf.Name] = wf
	}

	l.mu.Lock()
	l.workflows = loaded
	l.mu.Unlock()

	l.logger.Debug("library loaded", slog.Int("workflows", len(loaded)))
	return nil
}

// Get returns the workflow with the given name.
func (l *Library) Get(name string) (*schema.Workflow, error) {
	l.mu.RLock()
	wf, ok := l.workflows[name]
	l.mu.RUnlock()
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeWorkflowNotFound, "workflow %q not found", name)
	}
	return wf, nil
}

// Has reports whether a workflow with the given name is loaded.
func (l *Library) Has(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.workflows[name]
	return ok
}

// List returns all loaded workflows, sorted by name.
func (l *Library) List() []*schema.Workflow {
	l.mu.RLock()
	out := make([]*schema.Workflow, 0, len(l.workflows))
	for _, wf := range l.workflows {
		out = append(out, wf)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Save writes a workflow to the directory and adds it to the in-memory
// set. The write goes through a temp file and rename so a crash never
// leaves a half-written definition behind.
func (l *Library) Save(wf *schema.Workflow) error {
	if wf == nil || wf.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow has no name")
	}

	data, err := yaml.Marshal(wf)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeInternal, "marshal workflow %q: %s", wf.Name, err.Error()).WithCause(err)
	}

	path := l.pathFor(wf.Name)
	tmp, err := os.CreateTemp(l.dir, ".workflow-*.yaml")
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "create temp file: %s", err.Error()).WithCause(err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return schema.NewErrorf(schema.ErrCodeStore, "write workflow %q: %s", wf.Name, err.Error()).WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return schema.NewErrorf(schema.ErrCodeStore, "close workflow file: %s", err.Error()).WithCause(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return schema.NewErrorf(schema.ErrCodeStore, "save workflow %q: %s", wf.Name, err.Error()).WithCause(err)
	}

	l.mu.Lock()
	l.workflows[wf.Name] = wf
	l.mu.Unlock()
	return nil
}

// Delete removes a workflow definition from disk and memory.
func (l *Library) Delete(name string) error {
	l.mu.Lock()
	_, ok := l.workflows[name]
	if ok {
		delete(l.workflows, name)
	}
	l.mu.Unlock()
	if !ok {
		return schema.NewErrorf(schema.ErrCodeWorkflowNotFound, "workflow %q not found", name)
	}

	if err := os.Remove(l.pathFor(name)); err != nil && !os.IsNotExist(err) {
		return schema.NewErrorf(schema.ErrCodeStore, "delete workflow %q: %s", name, err.Error()).WithCause(err)
	}
	return nil
}

// Count returns the number of loaded workflows.
func (l *Library) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.workflows)
}

func (l *Library) pathFor(name string) string {
	return filepath.Join(l.dir, sanitizeName(name)+".yaml")
}

// loadFile parses one workflow definition, YAML or JSON.
func loadFile(path string) (*schema.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var wf schema.Workflow
	if strings.HasSuffix(path, ".json") {
		parsed, err := schema.ParseWorkflow(data)
		if err != nil {
			return nil, err
		}
		wf = *parsed
	} else {
		if err := yaml.Unmarshal(data, &wf); err != nil {
			return nil, err
		}
	}

	if wf.Name == "" {
		return nil, fmt.Errorf("workflow in %s has no name", filepath.Base(path))
	}
	if len(wf.Steps) == 0 {
		return nil, fmt.Errorf("workflow %q has no steps", wf.Name)
	}
	return &wf, nil
}

func isWorkflowFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".json")
}

// sanitizeName maps a workflow name to a safe file stem.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '-'
		}
	}, name)
}
