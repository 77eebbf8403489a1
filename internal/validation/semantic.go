package validation

import (
	"fmt"
	"regexp"
	"time"

	"github.com/itchyny/gojq"

	"github.com/calvex/runbook/pkg/schema"
)

// maxRecommendedRetries is the retry count above which a warning is issued.
const maxRecommendedRetries = 10

// ToolLookup answers whether a tool name is registered. Optional; when nil
// the semantic validator skips tool existence checks.
type ToolLookup interface {
	Has(name string) bool
}

// WorkflowLookup answers whether a workflow name resolves in the library.
// Optional; when nil sub_workflow references are not checked.
type WorkflowLookup interface {
	Has(name string) bool
}

// SemanticValidator performs checks the JSON Schema cannot express:
// cross-step uniqueness, expression syntax, and reference resolution.
type SemanticValidator struct {
	tools     ToolLookup
	workflows WorkflowLookup
}

// NewSemanticValidator creates a SemanticValidator. Either lookup may be
// nil to skip the corresponding reference checks.
func NewSemanticValidator(tools ToolLookup, workflows WorkflowLookup) *SemanticValidator {
	return &SemanticValidator{tools: tools, workflows: workflows}
}

// ValidateWorkflow runs all semantic checks and aggregates issues.
func (v *SemanticValidator) ValidateWorkflow(wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if wf == nil {
		result.AddError("/", schema.ErrCodeValidation, "workflow is nil")
		return result
	}

	v.checkArguments(wf, result)
	v.checkSteps(wf, result)
	v.checkWorkflowTimeout(wf, result)

	return result
}

func (v *SemanticValidator) checkArguments(wf *schema.Workflow, result *schema.ValidationResult) {
	seen := make(map[string]bool, len(wf.Arguments))
	for i, arg := range wf.Arguments {
		path := fmt.Sprintf("/arguments/%d", i)

		if seen[arg.Name] {
			result.AddError(path, schema.ErrCodeDuplicateArg,
				fmt.Sprintf("duplicate argument name %q", arg.Name))
		}
		seen[arg.Name] = true

		if arg.Type == schema.ArgumentTypeEnum {
			if len(arg.Options) == 0 {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("enum argument %q declares no options", arg.Name))
				continue
			}
			if arg.Default != nil {
				def, ok := arg.Default.(string)
				if !ok || !containsString(arg.Options, def) {
					result.AddError(path, schema.ErrCodeValidation,
						fmt.Sprintf("enum argument %q has default %v outside its options", arg.Name, arg.Default))
				}
			}
		} else if len(arg.Options) > 0 {
			result.AddWarning(path, schema.ErrCodeValidation,
				fmt.Sprintf("argument %q declares options but is not an enum", arg.Name))
		}
	}
}

func (v *SemanticValidator) checkSteps(wf *schema.Workflow, result *schema.ValidationResult) {
	seen := make(map[string]bool, len(wf.Steps))
	for i := range wf.Steps {
		step := &wf.Steps[i]
		path := fmt.Sprintf("/steps/%d", i)

		if step.ID == "" {
			result.AddError(path, schema.ErrCodeValidation, "step has an empty id")
		} else if seen[step.ID] {
			result.AddError(path, schema.ErrCodeDuplicateStepID,
				fmt.Sprintf("duplicate step id %q", step.ID))
		}
		seen[step.ID] = true

		v.checkStepSpec(step, path, result)
		v.checkStepOutput(step, path, result)

		if step.Timeout != "" {
			if _, err := time.ParseDuration(step.Timeout); err != nil {
				result.AddError(path+"/timeout", schema.ErrCodeValidation,
					fmt.Sprintf("step %q: invalid timeout %q", step.ID, step.Timeout))
			}
		}
		if step.Retries < 0 {
			result.AddError(path+"/retries", schema.ErrCodeValidation,
				fmt.Sprintf("step %q: retries must not be negative", step.ID))
		} else if step.Retries > maxRecommendedRetries {
			result.AddWarning(path+"/retries", schema.ErrCodeValidation,
				fmt.Sprintf("step %q: %d retries is unusually high", step.ID, step.Retries))
		}
	}
}

func (v *SemanticValidator) checkStepSpec(step *schema.Step, path string, result *schema.ValidationResult) {
	switch step.Kind {
	case schema.StepKindCommand:
		if step.Command == nil || step.Command.Command == "" {
			result.AddError(path+"/command", schema.ErrCodeValidation,
				fmt.Sprintf("step %q: command is empty", step.ID))
		}
	case schema.StepKindAgentPrompt:
		if step.Prompt == nil || step.Prompt.Message == "" {
			result.AddError(path+"/prompt", schema.ErrCodeValidation,
				fmt.Sprintf("step %q: prompt message is empty", step.ID))
		}
		if step.Prompt != nil && step.Prompt.InputVariable == "" {
			result.AddError(path+"/prompt", schema.ErrCodeValidation,
				fmt.Sprintf("step %q: prompt has no input variable", step.ID))
		}
	case schema.StepKindToolCall:
		if step.Tool == nil || step.Tool.ToolName == "" {
			result.AddError(path+"/tool", schema.ErrCodeValidation,
				fmt.Sprintf("step %q: tool name is empty", step.ID))
		} else if v.tools != nil && !v.tools.Has(step.Tool.ToolName) {
			result.AddError(path+"/tool", schema.ErrCodeToolNotFound,
				fmt.Sprintf("step %q: tool %q is not registered", step.ID, step.Tool.ToolName))
		}
	case schema.StepKindSubWorkflow:
		if step.Sub == nil || step.Sub.WorkflowName == "" {
			result.AddError(path+"/sub_workflow", schema.ErrCodeValidation,
				fmt.Sprintf("step %q: sub-workflow name is empty", step.ID))
		} else if v.workflows != nil && !v.workflows.Has(step.Sub.WorkflowName) {
			result.AddError(path+"/sub_workflow", schema.ErrCodeWorkflowNotFound,
				fmt.Sprintf("step %q: workflow %q not found in library", step.ID, step.Sub.WorkflowName))
		}
	case schema.StepKindPluginAction:
		if step.Plugin == nil || step.Plugin.PluginName == "" || step.Plugin.ActionName == "" {
			result.AddError(path+"/plugin", schema.ErrCodeValidation,
				fmt.Sprintf("step %q: plugin action is incomplete", step.ID))
		}
	}
}

func (v *SemanticValidator) checkStepOutput(step *schema.Step, path string, result *schema.ValidationResult) {
	if step.Output == nil {
		return
	}

	switch step.Output.EffectiveMode() {
	case schema.OutputModeRegex:
		if step.Output.Pattern == "" {
			result.AddError(path+"/output", schema.ErrCodeValidation,
				fmt.Sprintf("step %q: regex output has no pattern", step.ID))
			return
		}
		re, err := regexp.Compile(step.Output.Pattern)
		if err != nil {
			result.AddError(path+"/output", schema.ErrCodeValidation,
				fmt.Sprintf("step %q: invalid regex pattern: %v", step.ID, err))
			return
		}
		if re.NumSubexp() != 1 {
			result.AddError(path+"/output", schema.ErrCodeValidation,
				fmt.Sprintf("step %q: regex pattern must have exactly one capture group, has %d", step.ID, re.NumSubexp()))
		}
	case schema.OutputModeJQ:
		if step.Output.Query == "" {
			result.AddError(path+"/output", schema.ErrCodeValidation,
				fmt.Sprintf("step %q: jq output has no query", step.ID))
			return
		}
		if _, err := gojq.Parse(step.Output.Query); err != nil {
			result.AddError(path+"/output", schema.ErrCodeValidation,
				fmt.Sprintf("step %q: invalid jq query: %v", step.ID, err))
		}
	}
}

func (v *SemanticValidator) checkWorkflowTimeout(wf *schema.Workflow, result *schema.ValidationResult) {
	if wf.Timeout == "" {
		return
	}
	if _, err := time.ParseDuration(wf.Timeout); err != nil {
		result.AddError("/timeout", schema.ErrCodeValidation,
			fmt.Sprintf("invalid workflow timeout %q", wf.Timeout))
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
