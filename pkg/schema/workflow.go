package schema

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Workflow is a named, ordered sequence of steps with declared arguments.
// Constructed by the library loader and treated as read-only by the engine.
type Workflow struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	SourceURL   string            `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	Author      string            `json:"author,omitempty" yaml:"author,omitempty"`
	AuthorURL   string            `json:"author_url,omitempty" yaml:"author_url,omitempty"`
	Shells      []string          `json:"shells,omitempty" yaml:"shells,omitempty"`
	Arguments   []Argument        `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	Steps       []Step            `json:"steps" yaml:"steps"`
	Environment map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
	Timeout     string            `json:"timeout,omitempty" yaml:"timeout,omitempty"` // e.g. "5m"
}

// ArgumentType enumerates the declared types of workflow arguments.
type ArgumentType string

const (
	ArgumentTypeString  ArgumentType = "string"
	ArgumentTypeNumber  ArgumentType = "number"
	ArgumentTypeBoolean ArgumentType = "boolean"
	ArgumentTypePath    ArgumentType = "path"
	ArgumentTypeURL     ArgumentType = "url"
	ArgumentTypeEmail   ArgumentType = "email"
	ArgumentTypeEnum    ArgumentType = "enum"
)

// Argument declares a named workflow parameter.
type Argument struct {
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Type        ArgumentType `json:"type,omitempty" yaml:"type,omitempty"` // default: string
	Default     any          `json:"default,omitempty" yaml:"default,omitempty"`
	Required    bool         `json:"required,omitempty" yaml:"required,omitempty"`
	Options     []string     `json:"options,omitempty" yaml:"options,omitempty"` // enum only
}

// StepKind enumerates the closed set of step variants.
type StepKind string

const (
	StepKindCommand      StepKind = "command"
	StepKindAgentPrompt  StepKind = "agent_prompt"
	StepKindToolCall     StepKind = "tool_call"
	StepKindSubWorkflow  StepKind = "sub_workflow"
	StepKindPluginAction StepKind = "plugin_action"
)

var knownStepKinds = map[StepKind]bool{
	StepKindCommand:      true,
	StepKindAgentPrompt:  true,
	StepKindToolCall:     true,
	StepKindSubWorkflow:  true,
	StepKindPluginAction: true,
}

// Step is one unit of work inside a workflow. Exactly one of the
// kind-specific spec fields is set, matching Kind. Unknown kind tags are
// rejected at decode time, never at execution time.
type Step struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Kind        StepKind          `json:"kind" yaml:"kind"`
	Command     *CommandSpec      `json:"command,omitempty" yaml:"command,omitempty"`
	Prompt      *AgentPromptSpec  `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Tool        *ToolCallSpec     `json:"tool,omitempty" yaml:"tool,omitempty"`
	Sub         *SubWorkflowSpec  `json:"sub_workflow,omitempty" yaml:"sub_workflow,omitempty"`
	Plugin      *PluginActionSpec `json:"plugin,omitempty" yaml:"plugin,omitempty"`
	Environment map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
	Timeout     string            `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retries     int               `json:"retries,omitempty" yaml:"retries,omitempty"`
	Condition   string            `json:"condition,omitempty" yaml:"condition,omitempty"`
	Output      *OutputSpec       `json:"output,omitempty" yaml:"output,omitempty"`
}

// CommandSpec runs an executable through the process runner.
type CommandSpec struct {
	Command    string   `json:"command" yaml:"command"`
	Args       []string `json:"args,omitempty" yaml:"args,omitempty"`
	WorkingDir string   `json:"working_dir,omitempty" yaml:"working_dir,omitempty"`
}

// AgentPromptSpec suspends the run awaiting one correlated human reply.
type AgentPromptSpec struct {
	Message       string `json:"message" yaml:"message"`
	InputVariable string `json:"input_variable" yaml:"input_variable"`
}

// ToolCallSpec invokes a registered tool with structured arguments.
type ToolCallSpec struct {
	ToolName  string         `json:"tool_name" yaml:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}

// SubWorkflowSpec runs a nested workflow looked up by name.
type SubWorkflowSpec struct {
	WorkflowName string            `json:"workflow_name" yaml:"workflow_name"`
	Args         map[string]string `json:"args,omitempty" yaml:"args,omitempty"`
}

// PluginActionSpec routes structured arguments to an external plugin process.
type PluginActionSpec struct {
	PluginName string         `json:"plugin_name" yaml:"plugin_name"`
	ActionName string         `json:"action_name" yaml:"action_name"`
	Arguments  map[string]any `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}

// OutputMode controls how a step's raw output is post-processed.
type OutputMode string

const (
	OutputModeRaw   OutputMode = "raw"   // verbatim text
	OutputModeJSON  OutputMode = "json"  // parse as JSON, fail on invalid
	OutputModeRegex OutputMode = "regex" // extract the single capture group
	OutputModeJQ    OutputMode = "jq"    // run a jq query over parsed JSON
)

// OutputSpec configures output capture for a step. Variable names the
// context binding the processed output is stored under; empty means the
// output is recorded but not captured.
type OutputSpec struct {
	Mode     OutputMode `json:"mode,omitempty" yaml:"mode,omitempty"` // default: raw
	Pattern  string     `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Query    string     `json:"query,omitempty" yaml:"query,omitempty"`
	Variable string     `json:"variable,omitempty" yaml:"variable,omitempty"`
}

// stepAlias avoids recursion in the custom unmarshalers.
type stepAlias Step

// UnmarshalJSON decodes a step and rejects unknown kind tags.
func (s *Step) UnmarshalJSON(data []byte) error {
	var alias stepAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*s = Step(alias)
	return s.checkKind()
}

// UnmarshalYAML decodes a step from YAML and rejects unknown kind tags.
func (s *Step) UnmarshalYAML(unmarshal func(any) error) error {
	var alias stepAlias
	if err := unmarshal(&alias); err != nil {
		return err
	}
	*s = Step(alias)
	return s.checkKind()
}

// checkKind enforces the closed step-kind set and that the matching
// kind-specific payload is present.
func (s *Step) checkKind() error {
	if !knownStepKinds[s.Kind] {
		return NewErrorf(ErrCodeValidation, "unknown step kind %q in step %q", s.Kind, s.ID).
			WithDetails(map[string]any{"known_kinds": []string{
				string(StepKindCommand), string(StepKindAgentPrompt), string(StepKindToolCall),
				string(StepKindSubWorkflow), string(StepKindPluginAction),
			}})
	}
	var ok bool
	switch s.Kind {
	case StepKindCommand:
		ok = s.Command != nil
	case StepKindAgentPrompt:
		ok = s.Prompt != nil
	case StepKindToolCall:
		ok = s.Tool != nil
	case StepKindSubWorkflow:
		ok = s.Sub != nil
	case StepKindPluginAction:
		ok = s.Plugin != nil
	}
	if !ok {
		return NewErrorf(ErrCodeValidation, "step %q: kind %q has no matching spec block", s.ID, s.Kind)
	}
	return nil
}

// FindStep returns the step with the given ID, or nil.
func (w *Workflow) FindStep(id string) *Step {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i]
		}
	}
	return nil
}

// ArgumentByName returns the argument declaration with the given name, or nil.
func (w *Workflow) ArgumentByName(name string) *Argument {
	for i := range w.Arguments {
		if w.Arguments[i].Name == name {
			return &w.Arguments[i]
		}
	}
	return nil
}

// ParseWorkflow decodes a JSON workflow definition.
func ParseWorkflow(data []byte) (*Workflow, error) {
	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		var rbErr *RunbookError
		if errors.As(err, &rbErr) {
			return nil, rbErr
		}
		return nil, NewErrorf(ErrCodeValidation, "parse workflow: %s", err.Error()).WithCause(err)
	}
	return &wf, nil
}

// EffectiveMode returns the configured output mode, defaulting to raw.
func (o *OutputSpec) EffectiveMode() OutputMode {
	if o == nil || o.Mode == "" {
		return OutputModeRaw
	}
	return o.Mode
}

func (k StepKind) String() string { return string(k) }

// Describe returns a short human-readable label for a step.
func (s *Step) Describe() string {
	if s.Name != "" {
		return fmt.Sprintf("%s (%s)", s.Name, s.Kind)
	}
	return fmt.Sprintf("%s (%s)", s.ID, s.Kind)
}
