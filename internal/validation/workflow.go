package validation

import (
	"fmt"

	"github.com/calvex/runbook/pkg/schema"
)

// WorkflowValidator is the two-stage validation pipeline: structural checks
// against the JSON Schema first, then semantic checks over the decoded
// workflow. Structural failures short-circuit; semantic checks assume a
// structurally sound document.
type WorkflowValidator struct {
	structural *JSONSchemaValidator
	semantic   *SemanticValidator
}

// NewWorkflowValidator builds the full pipeline. Lookups may be nil to
// validate workflows in isolation.
func NewWorkflowValidator(tools ToolLookup, workflows WorkflowLookup) (*WorkflowValidator, error) {
	structural, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("create schema validator: %w", err)
	}
	return &WorkflowValidator{
		structural: structural,
		semantic:   NewSemanticValidator(tools, workflows),
	}, nil
}

// Validate runs the pipeline and returns the aggregated result.
func (v *WorkflowValidator) Validate(wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if err := v.structural.ValidateWorkflow(wf); err != nil {
		appendStructural(result, err)
		return result
	}

	result.Merge(v.semantic.ValidateWorkflow(wf))
	return result
}

// appendStructural flattens a structural validation error into issues.
func appendStructural(result *schema.ValidationResult, err error) {
	rbErr, ok := err.(*schema.RunbookError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return
	}
	violations, _ := rbErr.Details["violations"].([]string)
	if len(violations) == 0 {
		result.AddError("/", rbErr.Code, rbErr.Message)
		return
	}
	for _, violation := range violations {
		result.AddError("/", rbErr.Code, violation)
	}
}
