package validation

import (
	"github.com/calvex/runbook/pkg/schema"
)

// Validator checks a workflow definition and reports all issues found.
// Implementations must be safe for concurrent use.
type Validator interface {
	Validate(wf *schema.Workflow) *schema.ValidationResult
}

// ValidateAndReport runs a validator and converts the result to an error,
// nil when the workflow is valid.
func ValidateAndReport(v Validator, wf *schema.Workflow) error {
	return v.Validate(wf).ToError()
}
