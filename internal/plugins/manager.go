package plugins

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/calvex/runbook/internal/tools"
	"github.com/calvex/runbook/pkg/schema"
)

// Config describes how to launch and identify a plugin subprocess.
type Config struct {
	Name    string
	Command string   // MCP server binary path
	Args    []string // CLI arguments
	Env     []string // environment variables
}

// Manager runs MCP plugin subprocesses and bridges their tools into the
// tool registry under a "plugin:tool" prefix. It also serves plugin_action
// steps directly through Invoke.
type Manager struct {
	registry *tools.Registry
	plugins  map[string]*managedPlugin
	mu       sync.RWMutex
	logger   *slog.Logger
}

type managedPlugin struct {
	config     Config
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     io.ReadCloser
	scanner    *bufio.Scanner
	status     string // starting, healthy, unhealthy, crashed, stopped
	errCount   int
	lastErr    string
	cancelFunc context.CancelFunc

	// reqMu serializes request/response pairs on the stdio transport.
	reqMu  sync.Mutex
	nextID int64
}

// NewManager creates a Manager registering discovered tools into registry.
func NewManager(registry *tools.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry: registry,
		plugins:  make(map[string]*managedPlugin),
		logger:   logger,
	}
}

// Load starts a plugin subprocess and performs the MCP initialize handshake.
func (pm *Manager) Load(ctx context.Context, config Config) error {
	if config.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "plugin name is empty")
	}

	pm.mu.Lock()
	if _, exists := pm.plugins[config.Name]; exists {
		pm.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeConflict, "plugin %q already loaded", config.Name)
	}
	pm.mu.Unlock()

	pluginCtx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(pluginCtx, config.Command, config.Args...)
	cmd.Env = config.Env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdout pipe: %w", err)
	}

	mp := &managedPlugin{
		config:     config,
		cmd:        cmd,
		stdin:      stdin,
		stdout:     stdout,
		scanner:    bufio.NewScanner(stdout),
		status:     "starting",
		cancelFunc: cancel,
	}
	mp.scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start plugin %q: %w", config.Name, err)
	}

	if _, err := mp.call(10*time.Second, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "runbook",
			"version": "1.0.0",
		},
	}); err != nil {
		cancel()
		_ = cmd.Process.Kill()
		return fmt.Errorf("handshake with plugin %q: %w", config.Name, err)
	}

	mp.status = "healthy"

	pm.mu.Lock()
	pm.plugins[config.Name] = mp
	pm.mu.Unlock()

	go pm.healthCheckLoop(pluginCtx, mp)

	pm.logger.Info("plugin loaded", slog.String("name", config.Name))
	return nil
}

// call sends one JSON-RPC request and reads one response line. Requests
// are serialized per plugin so responses stay paired with their requests.
func (mp *managedPlugin) call(timeout time.Duration, method string, params map[string]any) (map[string]any, error) {
	mp.reqMu.Lock()
	defer mp.reqMu.Unlock()

	mp.nextID++
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      mp.nextID,
		"method":  method,
		"params":  params,
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}
	data = append(data, '\n')
	if _, err := mp.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write %s request: %w", method, err)
	}

	done := make(chan map[string]any, 1)
	go func() {
		if mp.scanner.Scan() {
			var resp map[string]any
			_ = json.Unmarshal(mp.scanner.Bytes(), &resp)
			done <- resp
		} else {
			done <- nil
		}
	}()

	var resp map[string]any
	select {
	case resp = <-done:
		if resp == nil {
			return nil, fmt.Errorf("failed to read %s response", method)
		}
	case <-time.After(timeout):
		return nil, fmt.Errorf("%s timeout", method)
	}

	if errField, exists := resp["error"]; exists {
		errJSON, _ := json.Marshal(errField)
		return nil, fmt.Errorf("plugin error: %s", string(errJSON))
	}
	return resp, nil
}

// healthCheckLoop periodically pings the plugin and manages status.
func (pm *Manager) healthCheckLoop(ctx context.Context, mp *managedPlugin) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := pm.pingPlugin(mp); err != nil {
				pm.mu.Lock()
				mp.errCount++
				mp.lastErr = err.Error()
				if mp.errCount >= 3 {
					mp.status = "unhealthy"
					pm.logger.Warn("plugin unhealthy",
						slog.String("name", mp.config.Name),
						slog.Int("consecutive_errors", mp.errCount),
					)
					pm.mu.Unlock()
					pm.restartPlugin(ctx, mp)
					return
				}
				pm.mu.Unlock()
			} else {
				pm.mu.Lock()
				mp.errCount = 0
				mp.status = "healthy"
				pm.mu.Unlock()
			}
		}
	}
}

func (pm *Manager) pingPlugin(mp *managedPlugin) error {
	if mp.cmd.ProcessState != nil {
		return fmt.Errorf("process exited")
	}
	return nil
}

// restartPlugin attempts to restart a plugin with exponential backoff.
func (pm *Manager) restartPlugin(ctx context.Context, mp *managedPlugin) {
	pm.mu.Lock()
	errCount := mp.errCount
	mp.status = "crashed"
	pm.mu.Unlock()

	// Exponential backoff: min(1s * 2^errCount, 60s)
	delay := time.Duration(math.Min(
		float64(time.Second)*math.Pow(2, float64(errCount)),
		float64(60*time.Second),
	))

	pm.logger.Info("restarting plugin",
		slog.String("name", mp.config.Name),
		slog.Duration("backoff", delay),
	)

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	mp.cancelFunc()
	if mp.cmd.Process != nil {
		_ = mp.cmd.Process.Kill()
	}

	pm.mu.Lock()
	delete(pm.plugins, mp.config.Name)
	pm.mu.Unlock()
	pm.registry.UnregisterPrefix(mp.config.Name)

	if err := pm.Load(ctx, mp.config); err != nil {
		pm.logger.Error("failed to restart plugin",
			slog.String("name", mp.config.Name),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := pm.Discover(ctx, mp.config.Name); err != nil {
		pm.logger.Error("failed to rediscover plugin tools",
			slog.String("name", mp.config.Name),
			slog.String("error", err.Error()),
		)
	}
}

// Discover sends a tools/list request and registers discovered tools under
// the plugin's prefix.
func (pm *Manager) Discover(ctx context.Context, pluginName string) error {
	pm.mu.RLock()
	mp, ok := pm.plugins[pluginName]
	pm.mu.RUnlock()

	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "plugin %q not found", pluginName)
	}

	resp, err := mp.call(10*time.Second, "tools/list", map[string]any{})
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	result, ok := resp["result"].(map[string]any)
	if !ok {
		return fmt.Errorf("unexpected tools/list response format")
	}

	toolsRaw, ok := result["tools"].([]any)
	if !ok {
		return nil // no tools
	}

	var discovered []tools.Tool
	for _, t := range toolsRaw {
		tool, ok := t.(map[string]any)
		if !ok {
			continue
		}
		name, _ := tool["name"].(string)
		desc, _ := tool["description"].(string)
		inputSchema, _ := json.Marshal(tool["inputSchema"])

		discovered = append(discovered, &mcpTool{
			name:        name,
			description: desc,
			inputSchema: inputSchema,
			plugin:      mp,
		})
	}

	if len(discovered) > 0 {
		if _, err := pm.registry.RegisterPlugin(mp.config.Name, discovered); err != nil {
			return fmt.Errorf("register plugin tools: %w", err)
		}
		pm.logger.Info("discovered plugin tools",
			slog.String("name", pluginName),
			slog.Int("count", len(discovered)),
		)
	}

	return nil
}

// Invoke routes a plugin_action step to the named plugin's tool.
func (pm *Manager) Invoke(ctx context.Context, pluginName, action string, args map[string]any) (string, error) {
	pm.mu.RLock()
	mp, ok := pm.plugins[pluginName]
	pm.mu.RUnlock()

	if !ok {
		return "", schema.NewErrorf(schema.ErrCodeNotFound, "plugin %q not found", pluginName)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resp, err := mp.call(30*time.Second, "tools/call", map[string]any{
		"name":      action,
		"arguments": args,
	})
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodePluginFailed, "plugin %q action %q: %s", pluginName, action, err.Error()).WithCause(err)
	}

	return flattenCallResult(resp["result"]), nil
}

// flattenCallResult extracts the text content from an MCP tools/call
// result, falling back to the raw JSON for non-text payloads.
func flattenCallResult(result any) string {
	m, ok := result.(map[string]any)
	if ok {
		if content, ok := m["content"].([]any); ok {
			var parts []string
			for _, c := range content {
				entry, ok := c.(map[string]any)
				if !ok {
					continue
				}
				if text, ok := entry["text"].(string); ok {
					parts = append(parts, text)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, "\n")
			}
		}
	}
	raw, _ := json.Marshal(result)
	return string(raw)
}

// Stop gracefully stops a plugin subprocess and unregisters its tools.
func (pm *Manager) Stop(ctx context.Context, name string) error {
	pm.mu.Lock()
	mp, ok := pm.plugins[name]
	if ok {
		delete(pm.plugins, name)
	}
	pm.mu.Unlock()
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "plugin %q not found", name)
	}

	pm.registry.UnregisterPrefix(name)
	mp.cancelFunc()

	if mp.cmd.Process != nil {
		// Close stdin to signal shutdown.
		_ = mp.stdin.Close()

		done := make(chan error, 1)
		go func() { done <- mp.cmd.Wait() }()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = mp.cmd.Process.Kill()
			<-done
		case <-ctx.Done():
			_ = mp.cmd.Process.Kill()
		}
	}

	mp.status = "stopped"
	pm.logger.Info("plugin stopped", slog.String("name", name))
	return nil
}

// StopAll stops all managed plugins.
func (pm *Manager) StopAll(ctx context.Context) error {
	pm.mu.RLock()
	names := make([]string, 0, len(pm.plugins))
	for name := range pm.plugins {
		names = append(names, name)
	}
	pm.mu.RUnlock()

	var lastErr error
	for _, name := range names {
		if err := pm.Stop(ctx, name); err != nil {
			lastErr = err
			pm.logger.Error("failed to stop plugin",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
		}
	}
	return lastErr
}

// Status returns the current status of all managed plugins.
func (pm *Manager) Status() map[string]string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	result := make(map[string]string, len(pm.plugins))
	for name, mp := range pm.plugins {
		result[name] = mp.status
	}
	return result
}

// mcpTool wraps a discovered MCP tool as a registry Tool.
type mcpTool struct {
	name        string
	description string
	inputSchema json.RawMessage
	plugin      *managedPlugin
}

func (t *mcpTool) Name() string { return t.name }

func (t *mcpTool) Schema() tools.ToolSchema {
	return tools.ToolSchema{
		InputSchema: t.inputSchema,
		Description: t.description,
	}
}

func (t *mcpTool) Validate(_ map[string]any) error { return nil }

func (t *mcpTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resp, err := t.plugin.call(30*time.Second, "tools/call", map[string]any{
		"name":      t.name,
		"arguments": args,
	})
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodePluginFailed, "tool %q: %s", t.name, err.Error()).WithCause(err)
	}

	return flattenCallResult(resp["result"]), nil
}
