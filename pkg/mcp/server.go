package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/calvex/runbook/internal/debug"
	"github.com/calvex/runbook/internal/engine"
	"github.com/calvex/runbook/internal/library"
	"github.com/calvex/runbook/internal/store"
	"github.com/calvex/runbook/internal/streaming"
	"github.com/calvex/runbook/internal/validation"
)

// RunbookServerDeps holds the dependencies for creating a RunbookServer.
type RunbookServerDeps struct {
	Executor  *engine.Executor
	Store     store.Store
	Library   *library.Library
	Debug     *debug.Registry
	Validator validation.Validator
	Hub       streaming.EventHub
	Logger    *slog.Logger
}

// RunbookServer wraps an MCP server with runbook-specific tool handlers.
type RunbookServer struct {
	executor  *engine.Executor
	store     store.Store
	library   *library.Library
	debug     *debug.Registry
	validator validation.Validator
	hub       streaming.EventHub
	logger    *slog.Logger
	sessions  *SessionRegistry
	notifier  *MCPNotifier
	mcpServer *server.MCPServer
}

// NewRunbookServer creates a RunbookServer with all tools registered.
func NewRunbookServer(deps RunbookServerDeps) *RunbookServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &RunbookServer{
		executor:  deps.Executor,
		store:     deps.Store,
		library:   deps.Library,
		debug:     deps.Debug,
		validator: deps.Validator,
		hub:       deps.Hub,
		logger:    logger,
		sessions:  NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"runbook",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Runbook executes step-based workflows with an interactive debugger. Use workflow_run for a blocking run, debug_start plus debug_command to drive a session step by step, prompt_respond to answer agent prompts, and run_history/run_events to inspect past runs."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or
// stdin closes. Hub events are forwarded to the owning client while
// serving.
func (s *RunbookServer) Serve(ctx context.Context) error {
	if s.hub != nil {
		go s.forwardEvents(ctx)
	}
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *RunbookServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// forwardEvents pushes engine events to the MCP client that owns the run
// or debug session, so agents see prompts and breakpoints without polling.
func (s *RunbookServer) forwardEvents(ctx context.Context) {
	events, cancel, err := s.hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		s.logger.Error("event forwarding unavailable", slog.String("error", err.Error()))
		return
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			owner := ev.SessionID
			if owner == "" {
				owner = ev.RunID
			}
			payload := map[string]any{
				"event":      ev.Type,
				"run_id":     ev.RunID,
				"session_id": ev.SessionID,
				"step_id":    ev.StepID,
				"sequence":   ev.Sequence,
				"payload":    ev.Payload,
			}
			if err := s.notifier.Notify(ctx, owner, payload); err != nil {
				s.logger.Debug("event notification failed",
					slog.String("run_id", ev.RunID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *RunbookServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: workflowListTool(), Handler: s.handleWorkflowList},
		{Tool: workflowGetTool(), Handler: s.handleWorkflowGet},
		{Tool: workflowValidateTool(), Handler: s.handleWorkflowValidate},
		{Tool: workflowRunTool(), Handler: s.handleWorkflowRun},
		{Tool: debugStartTool(), Handler: s.handleDebugStart},
		{Tool: debugCommandTool(), Handler: s.handleDebugCommand},
		{Tool: debugStateTool(), Handler: s.handleDebugState},
		{Tool: debugSessionsTool(), Handler: s.handleDebugSessions},
		{Tool: promptRespondTool(), Handler: s.handlePromptRespond},
		{Tool: runHistoryTool(), Handler: s.handleRunHistory},
		{Tool: runEventsTool(), Handler: s.handleRunEvents},
	}
}

// --- Tool definitions ---

func workflowListTool() mcp.Tool {
	return mcp.NewTool("workflow_list",
		mcp.WithDescription("List workflows available in the library"),
	)
}

func workflowGetTool() mcp.Tool {
	return mcp.NewTool("workflow_get",
		mcp.WithDescription("Get the full definition of a workflow"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Workflow name")),
	)
}

func workflowValidateTool() mcp.Tool {
	return mcp.NewTool("workflow_validate",
		mcp.WithDescription("Validate a workflow definition and report all issues"),
		mcp.WithString("name", mcp.Description("Name of a library workflow to validate")),
		mcp.WithObject("definition", mcp.Description("Inline workflow definition to validate instead of a library lookup")),
	)
}

func workflowRunTool() mcp.Tool {
	return mcp.NewTool("workflow_run",
		mcp.WithDescription("Run a workflow to completion and return the outcome with per-step records"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Workflow name")),
		mcp.WithObject("args", mcp.Description("Workflow argument values")),
	)
}

func debugStartTool() mcp.Tool {
	return mcp.NewTool("debug_start",
		mcp.WithDescription("Create a debug session for a workflow. The session starts parked; use debug_command to start or step"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Workflow name")),
		mcp.WithObject("args", mcp.Description("Workflow argument values, fixed for the session")),
		mcp.WithString("breakpoints", mcp.Description("Comma-separated step IDs to break on")),
	)
}

func debugCommandTool() mcp.Tool {
	return mcp.NewTool("debug_command",
		mcp.WithDescription("Send a command to a debug session and return the resulting session state"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Debug session ID")),
		mcp.WithString("command", mcp.Required(),
			mcp.Enum("start", "pause", "resume", "step_over", "step_into", "step_out",
				"stop", "restart", "set_breakpoint", "remove_breakpoint", "set_variable"),
			mcp.Description("Command to execute"),
		),
		mcp.WithString("step_id", mcp.Description("Step ID (set_breakpoint/remove_breakpoint)")),
		mcp.WithString("name", mcp.Description("Variable name (set_variable)")),
		mcp.WithString("value", mcp.Description("Variable value as JSON or plain text (set_variable)")),
	)
}

func debugStateTool() mcp.Tool {
	return mcp.NewTool("debug_state",
		mcp.WithDescription("Get a snapshot of a debug session: state, next step, breakpoints, records, variables"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Debug session ID")),
	)
}

func debugSessionsTool() mcp.Tool {
	return mcp.NewTool("debug_sessions",
		mcp.WithDescription("List all live debug sessions"),
	)
}

func promptRespondTool() mcp.Tool {
	return mcp.NewTool("prompt_respond",
		mcp.WithDescription("Answer a pending agent prompt. Each prompt accepts exactly one reply"),
		mcp.WithString("prompt_id", mcp.Required(), mcp.Description("Prompt ID from the prompt_requested event")),
		mcp.WithString("reply", mcp.Required(), mcp.Description("Reply text")),
	)
}

func runHistoryTool() mcp.Tool {
	return mcp.NewTool("run_history",
		mcp.WithDescription("Query past runs from the journal"),
		mcp.WithString("workflow_id", mcp.Description("Filter by workflow ID")),
		mcp.WithString("session_id", mcp.Description("Filter by debug session ID")),
		mcp.WithString("status", mcp.Description("Filter by run status")),
		mcp.WithString("limit", mcp.Description("Maximum number of runs (default 50)")),
	)
}

func runEventsTool() mcp.Tool {
	return mcp.NewTool("run_events",
		mcp.WithDescription("Replay the ordered event journal of a run"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run ID")),
		mcp.WithString("since", mcp.Description("Only events after this sequence number")),
	)
}
