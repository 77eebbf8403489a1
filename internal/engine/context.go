package engine

import (
	"github.com/calvex/runbook/pkg/schema"
)

// SeedContext builds the initial execution context for a workflow run:
// argument defaults first, then caller-supplied values override them.
func SeedContext(wf *schema.Workflow, args map[string]any) map[string]any {
	vars := make(map[string]any, len(wf.Arguments)+len(args))
	for _, arg := range wf.Arguments {
		if arg.Default != nil {
			vars[arg.Name] = cloneValue(arg.Default)
		}
	}
	for k, v := range args {
		vars[k] = cloneValue(v)
	}
	return vars
}

// MissingRequiredArgs returns the names of required arguments that have
// neither a default nor a caller-supplied value.
func MissingRequiredArgs(wf *schema.Workflow, args map[string]any) []string {
	var missing []string
	for _, arg := range wf.Arguments {
		if !arg.Required || arg.Default != nil {
			continue
		}
		if _, ok := args[arg.Name]; !ok {
			missing = append(missing, arg.Name)
		}
	}
	return missing
}

// Snapshot deep-copies the variable bindings. Step records hold snapshots
// taken before each step, so later mutations must never alias them.
func Snapshot(vars map[string]any) map[string]any {
	if vars == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = cloneValue(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		// Scalars are immutable once stored.
		return v
	}
}
