package schema

import "fmt"

// Error codes for structured error reporting.
const (
	// Validation errors: raised before a run starts, prevent it from starting.
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeDuplicateStepID = "DUPLICATE_STEP_ID"
	ErrCodeDuplicateArg    = "DUPLICATE_ARGUMENT"

	// Step-level errors: caught per step, roll up to a failed outcome.
	ErrCodeMissingVariable = "MISSING_VARIABLE"
	ErrCodeUnsupportedType = "UNSUPPORTED_TYPE"
	ErrCodeCondition       = "CONDITION_ERROR"
	ErrCodeCommandFailed   = "COMMAND_FAILED"
	ErrCodeToolNotFound    = "TOOL_NOT_FOUND"
	ErrCodeToolFailed      = "TOOL_FAILED"
	ErrCodePluginFailed    = "PLUGIN_FAILED"
	ErrCodeOutputParse     = "OUTPUT_PARSE_ERROR"
	ErrCodePromptAborted   = "PROMPT_ABORTED"
	ErrCodeStepFailed      = "STEP_FAILED"
	ErrCodeTimeout         = "TIMEOUT_ERROR"
	ErrCodeRetryExhausted  = "RETRY_EXHAUSTED"

	// Lookup and control errors.
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeWorkflowNotFound  = "WORKFLOW_NOT_FOUND"
	ErrCodeSessionNotFound   = "SESSION_NOT_FOUND"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeCancelled         = "CANCELLED"

	// Infrastructure errors.
	ErrCodeEventDelivery = "EVENT_DELIVERY_ERROR"
	ErrCodeStore         = "STORE_ERROR"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// RunbookError is the structured error type for all runbook operations.
type RunbookError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	StepID  string         `json:"step_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *RunbookError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.StepID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *RunbookError) Unwrap() error {
	return e.Cause
}

// NewError creates a new RunbookError.
func NewError(code, message string) *RunbookError {
	return &RunbookError{Code: code, Message: message}
}

// NewErrorf creates a new RunbookError with a formatted message.
func NewErrorf(code, format string, args ...any) *RunbookError {
	return &RunbookError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step ID to the error.
func (e *RunbookError) WithStep(stepID string) *RunbookError {
	e.StepID = stepID
	return e
}

// WithCause attaches an underlying cause.
func (e *RunbookError) WithCause(err error) *RunbookError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *RunbookError) WithDetails(details map[string]any) *RunbookError {
	e.Details = details
	return e
}

// ErrCode extracts the code from a RunbookError, or ErrCodeInternal for
// any other error.
func ErrCode(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := err.(*RunbookError); ok {
		return e.Code
	}
	return ErrCodeInternal
}
