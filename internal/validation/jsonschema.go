package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/calvex/runbook/pkg/schema"
)

// workflowSchemaJSON is the JSON Schema for workflow validation.
// Embedded as a constant to avoid filesystem dependencies.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://runbook.dev/schemas/workflow.json",
  "type": "object",
  "required": ["id", "name", "steps"],
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "name": { "type": "string", "minLength": 1 },
    "description": { "type": "string" },
    "tags": { "type": "array", "items": { "type": "string" } },
    "source_url": { "type": "string" },
    "author": { "type": "string" },
    "author_url": { "type": "string" },
    "shells": { "type": "array", "items": { "type": "string" } },
    "arguments": {
      "type": "array",
      "items": { "$ref": "#/$defs/argument" }
    },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/step" }
    },
    "environment": {
      "type": "object",
      "additionalProperties": { "type": "string" }
    },
    "timeout": { "$ref": "#/$defs/duration" }
  },
  "additionalProperties": false,
  "$defs": {
    "duration": {
      "type": "string",
      "pattern": "^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"
    },
    "argument": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "description": { "type": "string" },
        "type": {
          "type": "string",
          "enum": ["string", "number", "boolean", "path", "url", "email", "enum"]
        },
        "default": {},
        "required": { "type": "boolean" },
        "options": {
          "type": "array",
          "items": { "type": "string" }
        }
      },
      "additionalProperties": false
    },
    "step": {
      "type": "object",
      "required": ["id", "kind"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "name": { "type": "string" },
        "description": { "type": "string" },
        "kind": {
          "type": "string",
          "enum": ["command", "agent_prompt", "tool_call", "sub_workflow", "plugin_action"]
        },
        "command": { "$ref": "#/$defs/command_spec" },
        "prompt": { "$ref": "#/$defs/prompt_spec" },
        "tool": { "$ref": "#/$defs/tool_spec" },
        "sub_workflow": { "$ref": "#/$defs/sub_workflow_spec" },
        "plugin": { "$ref": "#/$defs/plugin_spec" },
        "environment": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        },
        "timeout": { "$ref": "#/$defs/duration" },
        "retries": { "type": "integer", "minimum": 0 },
        "condition": { "type": "string" },
        "output": { "$ref": "#/$defs/output_spec" }
      },
      "additionalProperties": false
    },
    "command_spec": {
      "type": "object",
      "required": ["command"],
      "properties": {
        "command": { "type": "string", "minLength": 1 },
        "args": { "type": "array", "items": { "type": "string" } },
        "working_dir": { "type": "string" }
      },
      "additionalProperties": false
    },
    "prompt_spec": {
      "type": "object",
      "required": ["message", "input_variable"],
      "properties": {
        "message": { "type": "string", "minLength": 1 },
        "input_variable": { "type": "string", "minLength": 1 }
      },
      "additionalProperties": false
    },
    "tool_spec": {
      "type": "object",
      "required": ["tool_name"],
      "properties": {
        "tool_name": { "type": "string", "minLength": 1 },
        "arguments": { "type": "object" }
      },
      "additionalProperties": false
    },
    "sub_workflow_spec": {
      "type": "object",
      "required": ["workflow_name"],
      "properties": {
        "workflow_name": { "type": "string", "minLength": 1 },
        "args": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        }
      },
      "additionalProperties": false
    },
    "plugin_spec": {
      "type": "object",
      "required": ["plugin_name", "action_name"],
      "properties": {
        "plugin_name": { "type": "string", "minLength": 1 },
        "action_name": { "type": "string", "minLength": 1 },
        "arguments": { "type": "object" }
      },
      "additionalProperties": false
    },
    "output_spec": {
      "type": "object",
      "properties": {
        "mode": {
          "type": "string",
          "enum": ["raw", "json", "regex", "jq"]
        },
        "pattern": { "type": "string" },
        "query": { "type": "string" },
        "variable": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator checks workflows against the embedded JSON Schema
// (Draft 2020-12). It is safe for concurrent use.
type JSONSchemaValidator struct {
	workflowSchema *jsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator with the workflow
// schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := c.AddResource("https://runbook.dev/schemas/workflow.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}

	wfSchema, err := c.Compile("https://runbook.dev/schemas/workflow.json")
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}

	return &JSONSchemaValidator{workflowSchema: wfSchema}, nil
}

// ValidateWorkflow validates a workflow against the JSON Schema.
func (v *JSONSchemaValidator) ValidateWorkflow(wf *schema.Workflow) error {
	if wf == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}

	doc, err := toJSONValue(wf)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize workflow").WithCause(err)
	}

	if err := v.workflowSchema.Validate(doc); err != nil {
		return toRunbookError(err)
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toRunbookError converts a jsonschema.ValidationError into a RunbookError
// with per-location violation messages.
func toRunbookError(err error) *schema.RunbookError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
