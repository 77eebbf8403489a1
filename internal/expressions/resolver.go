package expressions

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/calvex/runbook/pkg/schema"
)

// ResolveText substitutes {{identifier}} tokens in text using the given
// variable bindings. Identifiers are letters, digits, and underscores.
// Strings render verbatim, numbers as canonical decimal text, booleans as
// "true"/"false". A missing binding or a non-scalar value at a token
// position is an error. Text without tokens passes through unchanged.
func ResolveText(text string, vars map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	var result strings.Builder
	result.Grow(len(text))

	i := 0
	for i < len(text) {
		idx := strings.Index(text[i:], "{{")
		if idx == -1 {
			result.WriteString(text[i:])
			break
		}

		// Write everything before the marker.
		result.WriteString(text[i : i+idx])
		start := i + idx + 2

		// Scan the identifier.
		end := start
		for end < len(text) && isIdentChar(text[end]) {
			end++
		}

		if end == start || end+1 >= len(text) || text[end] != '}' || text[end+1] != '}' {
			// Not a well-formed token. Emit one brace and rescan from the
			// next character so overlapping markers still match.
			result.WriteByte('{')
			i = i + idx + 1
			continue
		}

		name := text[start:end]
		val, ok := vars[name]
		if !ok {
			available := mapKeys(vars)
			return "", schema.NewErrorf(schema.ErrCodeMissingVariable,
				"variable %q not found in {{%s}}; available: [%s]", name, name, strings.Join(available, ", ")).
				WithDetails(map[string]any{"variable": name, "available_variables": available})
		}

		rendered, err := renderScalar(name, val)
		if err != nil {
			return "", err
		}
		result.WriteString(rendered)

		i = end + 2 // skip "}}".
	}

	return result.String(), nil
}

// ResolveValue recursively applies ResolveText to every string leaf of a
// structured value. Container shapes are preserved and non-string leaves
// pass through untouched. Used for tool-call and plugin argument payloads.
func ResolveValue(value any, vars map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return ResolveText(v, vars)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			resolved, err := ResolveValue(elem, vars)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			resolved, err := ResolveValue(elem, vars)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

// ResolveStringMap resolves every value of a string map as a template.
func ResolveStringMap(m map[string]string, vars map[string]any) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		resolved, err := ResolveText(v, vars)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

// HasPlaceholder checks whether text contains a {{identifier}} token.
func HasPlaceholder(text string) bool {
	i := 0
	for i < len(text) {
		idx := strings.Index(text[i:], "{{")
		if idx == -1 {
			return false
		}
		start := i + idx + 2
		end := start
		for end < len(text) && isIdentChar(text[end]) {
			end++
		}
		if end > start && end+1 < len(text) && text[end] == '}' && text[end+1] == '}' {
			return true
		}
		i = i + idx + 1
	}
	return false
}

// renderScalar converts a bound value into its text form.
func renderScalar(name string, val any) (string, error) {
	switch v := val.(type) {
	case string:
		return v, nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return "", schema.NewErrorf(schema.ErrCodeUnsupportedType,
			"variable %q in {{%s}} holds a %s; only string, number, and boolean render as text",
			name, name, typeName(val)).
			WithDetails(map[string]any{"variable": name, "type": typeName(val)})
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// mapKeys returns sorted keys from a map[string]any.
func mapKeys(m map[string]any) []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Simple insertion sort for small slices.
	for i := 1; i < len(keys); i++ {
		key := keys[i]
		j := i - 1
		for j >= 0 && keys[j] > key {
			keys[j+1] = keys[j]
			j--
		}
		keys[j+1] = key
	}
	return keys
}
