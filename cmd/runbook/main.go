package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calvex/runbook/internal/debug"
	"github.com/calvex/runbook/internal/engine"
	"github.com/calvex/runbook/internal/library"
	"github.com/calvex/runbook/internal/logging"
	"github.com/calvex/runbook/internal/plugins"
	"github.com/calvex/runbook/internal/procrun"
	"github.com/calvex/runbook/internal/scheduler"
	"github.com/calvex/runbook/internal/store"
	"github.com/calvex/runbook/internal/streaming"
	"github.com/calvex/runbook/internal/tools"
	"github.com/calvex/runbook/internal/validation"
	"github.com/calvex/runbook/pkg/mcp"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "version" || os.Args[1] == "--version") {
		printVersion()
		return
	}

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	if err := os.MkdirAll(runbookDir(), 0o755); err != nil {
		return err
	}

	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	hub := streaming.NewMemoryHub()

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, tools.BuiltinConfig{}); err != nil {
		return err
	}

	manager := plugins.NewManager(registry, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := manager.StopAll(shutdownCtx); err != nil {
			logger.Warn("plugin shutdown", "error", err)
		}
	}()
	for _, pc := range cfg.pluginConfigs() {
		if err := manager.Load(ctx, pc); err != nil {
			logger.Warn("plugin load failed", "plugin", pc.Name, "error", err)
			continue
		}
		if err := manager.Discover(ctx, pc.Name); err != nil {
			logger.Warn("plugin discovery failed", "plugin", pc.Name, "error", err)
		}
	}

	lib, err := library.New(cfg.LibraryDir, logger)
	if err != nil {
		return err
	}

	validator, err := validation.NewWorkflowValidator(registry, lib)
	if err != nil {
		return err
	}

	stepTimeout := parseDurationOr(cfg.StepTimeout, 5*time.Minute)
	runner := procrun.NewLocalRunner(procrun.Config{DefaultTimeout: stepTimeout}, logger)

	exec, err := engine.New(engine.Deps{
		Runner:    runner,
		Tools:     registry,
		Plugins:   manager,
		Source:    lib,
		Store:     st,
		Hub:       hub,
		Validator: validator,
		Logger:    logger,
	}, engine.Config{
		DefaultStepTimeout: stepTimeout,
		WorkflowTimeout:    parseDurationOr(cfg.WorkflowTimeout, time.Hour),
		PromptTimeout:      parseDurationOr(cfg.PromptTimeout, 10*time.Minute),
	})
	if err != nil {
		return err
	}

	debugSessions := debug.NewRegistry(exec, logger)

	if cfg.Scheduler {
		sched := scheduler.New(st, &libraryRunner{library: lib, exec: exec}, logger)
		if err := sched.RecoverMissed(ctx); err != nil {
			logger.Warn("missed job recovery", "error", err)
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := sched.Stop(); err != nil {
				logger.Warn("scheduler shutdown", "error", err)
			}
		}()
	}

	srv := mcp.NewRunbookServer(mcp.RunbookServerDeps{
		Executor:  exec,
		Store:     st,
		Library:   lib,
		Debug:     debugSessions,
		Validator: validator,
		Hub:       hub,
		Logger:    logger,
	})

	logger.Info("runbook server starting",
		"version", version,
		"db", cfg.DBPath,
		"library", cfg.LibraryDir,
		"workflows", lib.Count(),
		"scheduler", cfg.Scheduler)

	return srv.Serve(ctx)
}

// newLogger builds the root logger. Output goes to stderr: stdout is
// reserved for the MCP stdio transport.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// libraryRunner adapts the library and executor to the scheduler's
// runner interface.
type libraryRunner struct {
	library *library.Library
	exec    *engine.Executor
}

func (r *libraryRunner) RunByName(ctx context.Context, workflowName string, args map[string]any) error {
	wf, err := r.library.Get(workflowName)
	if err != nil {
		return err
	}
	_, err = r.exec.Run(ctx, wf, args)
	return err
}
