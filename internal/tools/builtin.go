package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/calvex/runbook/pkg/schema"
)

const (
	defaultReadLimit    = 1024 * 1024      // 1MB
	defaultBodyLimit    = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout  = 30 * time.Second
)

// BuiltinConfig configures the built-in tools.
type BuiltinConfig struct {
	MaxFileBytes  int64
	MaxBodyBytes  int64
	HTTPTimeout   time.Duration
}

// RegisterBuiltins registers all built-in tools in the given registry.
func RegisterBuiltins(reg *Registry, cfg BuiltinConfig) error {
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = defaultReadLimit
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultBodyLimit
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}

	all := []Tool{
		&readFileTool{cfg: cfg},
		&listFilesTool{},
		&envGetTool{},
		&httpGetTool{cfg: cfg},
	}
	for _, t := range all {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Param helpers used by all tool files.

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func boolParam(m map[string]any, key string, defaultVal bool) bool {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}

// --- read_file ---

const readFileInputSchema = `{
  "type": "object",
  "properties": {
    "path": {"type": "string"},
    "max_bytes": {"type": "integer"}
  },
  "required": ["path"]
}`

type readFileTool struct {
	cfg BuiltinConfig
}

func (t *readFileTool) Name() string { return "read_file" }

func (t *readFileTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Read a text file and return its contents, capped by a size limit.",
		InputSchema: json.RawMessage(readFileInputSchema),
	}
}

func (t *readFileTool) Validate(args map[string]any) error {
	if stringParam(args, "path", "") == "" {
		return schema.NewError(schema.ErrCodeValidation, "read_file: missing required param 'path'")
	}
	return nil
}

func (t *readFileTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	path := stringParam(args, "path", "")

	f, err := os.Open(path)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeToolFailed, "read_file: %s", err.Error()).WithCause(err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, t.cfg.MaxFileBytes))
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeToolFailed, "read_file: %s", err.Error()).WithCause(err)
	}
	return string(data), nil
}

// --- list_files ---

const listFilesInputSchema = `{
  "type": "object",
  "properties": {
    "path": {"type": "string", "default": "."},
    "recursive": {"type": "boolean", "default": false}
  }
}`

type listFilesTool struct{}

func (t *listFilesTool) Name() string { return "list_files" }

func (t *listFilesTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "List directory entries, one path per line. Directories carry a trailing slash.",
		InputSchema: json.RawMessage(listFilesInputSchema),
	}
}

func (t *listFilesTool) Validate(args map[string]any) error { return nil }

func (t *listFilesTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	root := stringParam(args, "path", ".")
	recursive := boolParam(args, "recursive", false)

	var lines []string
	if recursive {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path == root {
				return nil
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			if d.IsDir() {
				rel += "/"
			}
			lines = append(lines, rel)
			return nil
		})
		if err != nil {
			return "", schema.NewErrorf(schema.ErrCodeToolFailed, "list_files: %s", err.Error()).WithCause(err)
		}
	} else {
		entries, err := os.ReadDir(root)
		if err != nil {
			return "", schema.NewErrorf(schema.ErrCodeToolFailed, "list_files: %s", err.Error()).WithCause(err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			lines = append(lines, name)
		}
	}

	sort.Strings(lines)
	return strings.Join(lines, "\n"), nil
}

// --- env_get ---

const envGetInputSchema = `{
  "type": "object",
  "properties": {
    "name": {"type": "string"},
    "default": {"type": "string"}
  },
  "required": ["name"]
}`

type envGetTool struct{}

func (t *envGetTool) Name() string { return "env_get" }

func (t *envGetTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Read an environment variable, with an optional default for unset names.",
		InputSchema: json.RawMessage(envGetInputSchema),
	}
}

func (t *envGetTool) Validate(args map[string]any) error {
	if stringParam(args, "name", "") == "" {
		return schema.NewError(schema.ErrCodeValidation, "env_get: missing required param 'name'")
	}
	return nil
}

func (t *envGetTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	name := stringParam(args, "name", "")
	if v, ok := os.LookupEnv(name); ok {
		return v, nil
	}
	if def, ok := args["default"]; ok {
		if s, isStr := def.(string); isStr {
			return s, nil
		}
	}
	return "", schema.NewErrorf(schema.ErrCodeToolFailed, "env_get: %q is not set", name)
}

// --- http_get ---

const httpGetInputSchema = `{
  "type": "object",
  "properties": {
    "url": {"type": "string"},
    "headers": {"type": "object", "additionalProperties": {"type": "string"}},
    "timeout": {"type": "string"}
  },
  "required": ["url"]
}`

type httpGetTool struct {
	cfg BuiltinConfig
}

func (t *httpGetTool) Name() string { return "http_get" }

func (t *httpGetTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Perform an HTTP GET and return the response body, capped by a size limit.",
		InputSchema: json.RawMessage(httpGetInputSchema),
	}
}

func (t *httpGetTool) Validate(args map[string]any) error {
	if stringParam(args, "url", "") == "" {
		return schema.NewError(schema.ErrCodeValidation, "http_get: missing required param 'url'")
	}
	return nil
}

func (t *httpGetTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	rawURL := stringParam(args, "url", "")

	timeout := t.cfg.HTTPTimeout
	if s := stringParam(args, "timeout", ""); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			timeout = d
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeToolFailed, "http_get: %s", err.Error()).WithCause(err)
	}
	if headers, ok := args["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, isStr := v.(string); isStr {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeToolFailed, "http_get: %s", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.cfg.MaxBodyBytes))
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeToolFailed, "http_get: read body: %s", err.Error()).WithCause(err)
	}
	if resp.StatusCode >= 400 {
		return "", schema.NewErrorf(schema.ErrCodeToolFailed,
			"http_get: %s returned %s", rawURL, resp.Status).
			WithDetails(map[string]any{"status_code": resp.StatusCode, "body": truncate(string(body), 512)})
	}
	return string(body), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + fmt.Sprintf("... (%d bytes truncated)", len(s)-n)
}
