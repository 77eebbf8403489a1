package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/calvex/runbook/internal/store"
	"github.com/calvex/runbook/pkg/schema"
)

// handleWorkflowList lists workflows available in the library.
func (s *RunbookServer) handleWorkflowList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.library == nil {
		return mcp.NewToolResultError("workflow library is not configured"), nil
	}

	type summary struct {
		ID          string   `json:"id"`
		Name        string   `json:"name"`
		Description string   `json:"description,omitempty"`
		Tags        []string `json:"tags,omitempty"`
		Steps       int      `json:"steps"`
		Arguments   int      `json:"arguments"`
	}

	workflows := s.library.List()
	summaries := make([]summary, 0, len(workflows))
	for _, wf := range workflows {
		summaries = append(summaries, summary{
			ID:          wf.ID,
			Name:        wf.Name,
			Description: wf.Description,
			Tags:        wf.Tags,
			Steps:       len(wf.Steps),
			Arguments:   len(wf.Arguments),
		})
	}
	return marshalResult(map[string]any{"workflows": summaries})
}

// handleWorkflowGet returns the full definition of one workflow.
func (s *RunbookServer) handleWorkflowGet(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	if s.library == nil {
		return mcp.NewToolResultError("workflow library is not configured"), nil
	}

	wf, getErr := s.library.Get(name)
	if getErr != nil {
		return mcp.NewToolResultError(getErr.Error()), nil
	}
	return marshalResult(wf)
}

// handleWorkflowValidate validates a library workflow or an inline
// definition and reports all issues.
func (s *RunbookServer) handleWorkflowValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.validator == nil {
		return mcp.NewToolResultError("validator is not configured"), nil
	}

	var wf *schema.Workflow
	if def := mcp.ParseStringMap(req, "definition", nil); def != nil {
		raw, marshalErr := json.Marshal(def)
		if marshalErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", marshalErr)), nil
		}
		parsed, parseErr := schema.ParseWorkflow(raw)
		if parseErr != nil {
			return marshalResult(map[string]any{
				"valid":  false,
				"errors": []map[string]any{{"message": parseErr.Error()}},
			})
		}
		wf = parsed
	} else {
		name := req.GetString("name", "")
		if name == "" {
			return mcp.NewToolResultError("either name or definition is required"), nil
		}
		if s.library == nil {
			return mcp.NewToolResultError("workflow library is not configured"), nil
		}
		loaded, getErr := s.library.Get(name)
		if getErr != nil {
			return mcp.NewToolResultError(getErr.Error()), nil
		}
		wf = loaded
	}

	result := s.validator.Validate(wf)
	return marshalResult(map[string]any{
		"valid":    result.Valid(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

// handleWorkflowRun runs a workflow to completion (blocking) and returns
// the outcome with per-step records.
func (s *RunbookServer) handleWorkflowRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	if s.library == nil || s.executor == nil {
		return mcp.NewToolResultError("executor is not configured"), nil
	}

	wf, getErr := s.library.Get(name)
	if getErr != nil {
		return mcp.NewToolResultError(getErr.Error()), nil
	}

	args := mcp.ParseStringMap(req, "args", nil)

	run, newErr := s.executor.NewRun(wf, args)
	if newErr != nil {
		return mcp.NewToolResultError(newErr.Error()), nil
	}

	// Tie the run to this client so prompt_requested events reach it.
	s.captureSession(ctx, run.ID)

	result, execErr := s.executor.Execute(ctx, run)
	if result == nil && execErr != nil {
		return mcp.NewToolResultError(execErr.Error()), nil
	}
	return marshalResult(result)
}

// handleDebugStart creates a debug session, optionally with initial
// breakpoints.
func (s *RunbookServer) handleDebugStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	if s.library == nil || s.debug == nil {
		return mcp.NewToolResultError("debug controller is not configured"), nil
	}

	wf, getErr := s.library.Get(name)
	if getErr != nil {
		return mcp.NewToolResultError(getErr.Error()), nil
	}

	args := mcp.ParseStringMap(req, "args", nil)

	session, createErr := s.debug.Create(ctx, wf, args)
	if createErr != nil {
		return mcp.NewToolResultError(createErr.Error()), nil
	}

	for _, stepID := range splitList(req.GetString("breakpoints", "")) {
		if bpErr := session.SetBreakpoint(stepID); bpErr != nil {
			_ = s.debug.Remove(session.ID)
			return mcp.NewToolResultError(bpErr.Error()), nil
		}
	}

	s.captureSession(ctx, session.ID)

	view, viewErr := session.View()
	if viewErr != nil {
		return mcp.NewToolResultError(viewErr.Error()), nil
	}
	return marshalResult(view)
}

// handleDebugCommand dispatches one debugger command and returns the
// resulting session snapshot.
func (s *RunbookServer) handleDebugCommand(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	command, err := req.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError("command is required"), nil
	}
	if s.debug == nil {
		return mcp.NewToolResultError("debug controller is not configured"), nil
	}

	session, getErr := s.debug.Get(sessionID)
	if getErr != nil {
		s.emitEngineError(ctx, sessionID, getErr)
		return mcp.NewToolResultError(getErr.Error()), nil
	}

	s.captureSession(ctx, sessionID)

	var cmdErr error
	switch command {
	case "start":
		cmdErr = session.Start()
	case "pause":
		cmdErr = session.Pause()
	case "resume":
		cmdErr = session.Resume()
	case "step_over":
		cmdErr = session.StepOver()
	case "step_into":
		cmdErr = session.StepInto()
	case "step_out":
		cmdErr = session.StepOut()
	case "stop":
		cmdErr = session.Stop()
	case "restart":
		cmdErr = session.Restart()
	case "set_breakpoint":
		stepID := req.GetString("step_id", "")
		if stepID == "" {
			return mcp.NewToolResultError("step_id is required for set_breakpoint"), nil
		}
		cmdErr = session.SetBreakpoint(stepID)
	case "remove_breakpoint":
		stepID := req.GetString("step_id", "")
		if stepID == "" {
			return mcp.NewToolResultError("step_id is required for remove_breakpoint"), nil
		}
		cmdErr = session.RemoveBreakpoint(stepID)
	case "set_variable":
		varName := req.GetString("name", "")
		if varName == "" {
			return mcp.NewToolResultError("name is required for set_variable"), nil
		}
		cmdErr = session.SetVariable(varName, parseValue(req.GetString("value", "")))
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown command: %s", command)), nil
	}

	if cmdErr != nil {
		return mcp.NewToolResultError(cmdErr.Error()), nil
	}

	view, viewErr := session.View()
	if viewErr != nil {
		return mcp.NewToolResultError(viewErr.Error()), nil
	}
	return marshalResult(view)
}

// handleDebugState returns a snapshot of one debug session.
func (s *RunbookServer) handleDebugState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	if s.debug == nil {
		return mcp.NewToolResultError("debug controller is not configured"), nil
	}

	session, getErr := s.debug.Get(sessionID)
	if getErr != nil {
		s.emitEngineError(ctx, sessionID, getErr)
		return mcp.NewToolResultError(getErr.Error()), nil
	}
	view, viewErr := session.View()
	if viewErr != nil {
		return mcp.NewToolResultError(viewErr.Error()), nil
	}
	return marshalResult(view)
}

// handleDebugSessions lists all live debug sessions.
func (s *RunbookServer) handleDebugSessions(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.debug == nil {
		return mcp.NewToolResultError("debug controller is not configured"), nil
	}
	return marshalResult(map[string]any{"sessions": s.debug.List()})
}

// handlePromptRespond answers a pending agent prompt.
func (s *RunbookServer) handlePromptRespond(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	promptID, err := req.RequireString("prompt_id")
	if err != nil {
		return mcp.NewToolResultError("prompt_id is required"), nil
	}
	reply, err := req.RequireString("reply")
	if err != nil {
		return mcp.NewToolResultError("reply is required"), nil
	}
	if s.executor == nil {
		return mcp.NewToolResultError("executor is not configured"), nil
	}

	if respondErr := s.executor.Prompts().Respond(promptID, reply); respondErr != nil {
		return mcp.NewToolResultError(respondErr.Error()), nil
	}
	return marshalResult(map[string]any{"ok": true, "prompt_id": promptID})
}

// handleRunHistory queries past runs from the journal.
func (s *RunbookServer) handleRunHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("store is not configured"), nil
	}

	filter := store.RunFilter{
		WorkflowID: req.GetString("workflow_id", ""),
		SessionID:  req.GetString("session_id", ""),
		Status:     schema.RunStatus(req.GetString("status", "")),
		Limit:      parseIntOr(req.GetString("limit", ""), 50),
	}

	runs, listErr := s.store.ListRuns(ctx, filter)
	if listErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", listErr)), nil
	}
	return marshalResult(map[string]any{"runs": runs})
}

// handleRunEvents replays the ordered event journal of one run.
func (s *RunbookServer) handleRunEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}
	if s.store == nil {
		return mcp.NewToolResultError("store is not configured"), nil
	}

	since := int64(parseIntOr(req.GetString("since", ""), 0))
	events, listErr := s.store.ListEvents(ctx, runID, since)
	if listErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", listErr)), nil
	}
	return marshalResult(map[string]any{"run_id": runID, "events": events})
}

// --- Internal helpers ---

// captureSession maps a run or debug session ID to the calling MCP
// client for notifications.
func (s *RunbookServer) captureSession(ctx context.Context, ownerID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(ownerID, session.SessionID())
	}
}

// emitEngineError journals a control-surface fault as an engine_error
// event so stream and journal consumers see it, not only the failing
// tool call.
func (s *RunbookServer) emitEngineError(ctx context.Context, sessionID string, err error) {
	if s.executor == nil {
		return
	}
	s.executor.EmitEngineError(ctx, "", sessionID, err.Error())
}

// parseValue decodes a set_variable value: JSON if it parses, otherwise
// the raw string.
func parseValue(raw string) any {
	if raw == "" {
		return ""
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// splitList parses a comma-separated list, trimming blanks.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseIntOr parses a decimal string, returning a default on failure.
func parseIntOr(raw string, defaultVal int) int {
	if raw == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	return defaultVal
}

// marshalResult converts a value to a JSON tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
