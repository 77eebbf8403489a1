package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/calvex/runbook/internal/plugins"
)

// PluginConfig describes one MCP plugin subprocess to launch at startup.
type PluginConfig struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Env     []string `json:"env,omitempty"`
}

// Config holds all runbook server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath          string         `json:"db_path"`
	LibraryDir      string         `json:"library_dir"`
	LogLevel        string         `json:"log_level"`
	StepTimeout     string         `json:"step_timeout"`
	WorkflowTimeout string         `json:"workflow_timeout"`
	PromptTimeout   string         `json:"prompt_timeout"`
	Scheduler       bool           `json:"scheduler"`
	Plugins         []PluginConfig `json:"plugins,omitempty"`
}

func defaultConfig() Config {
	return Config{
		DBPath:          filepath.Join(runbookDir(), "runbook.db"),
		LibraryDir:      filepath.Join(runbookDir(), "workflows"),
		LogLevel:        "info",
		StepTimeout:     "5m",
		WorkflowTimeout: "1h",
		PromptTimeout:   "10m",
		Scheduler:       true,
	}
}

func runbookDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".runbook"
	}
	return filepath.Join(home, ".runbook")
}

func settingsPath() string {
	return filepath.Join(runbookDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("RUNBOOK_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("RUNBOOK_LIBRARY_DIR"); v != "" {
		cfg.LibraryDir = v
	}
	if v := os.Getenv("RUNBOOK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RUNBOOK_STEP_TIMEOUT"); v != "" {
		cfg.StepTimeout = v
	}
	if v := os.Getenv("RUNBOOK_WORKFLOW_TIMEOUT"); v != "" {
		cfg.WorkflowTimeout = v
	}
	if v := os.Getenv("RUNBOOK_PROMPT_TIMEOUT"); v != "" {
		cfg.PromptTimeout = v
	}
	if v := os.Getenv("RUNBOOK_SCHEDULER"); v != "" {
		cfg.Scheduler = v == "true" || v == "1"
	}

	return cfg
}

func (c Config) pluginConfigs() []plugins.Config {
	out := make([]plugins.Config, 0, len(c.Plugins))
	for _, p := range c.Plugins {
		out = append(out, plugins.Config{
			Name:    p.Name,
			Command: p.Command,
			Args:    p.Args,
			Env:     p.Env,
		})
	}
	return out
}
