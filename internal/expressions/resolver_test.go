package expressions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvex/runbook/pkg/schema"
)

func TestResolveText_StringVariable(t *testing.T) {
	out, err := ResolveText("{{x}}", map[string]any{"x": "a"})
	require.NoError(t, err)
	assert.Equal(t, "a", out)
}

func TestResolveText_NoTokensPassThrough(t *testing.T) {
	for _, text := range []string{"", "plain text", "echo hello", "{ not a token }", "{{ spaced }}"} {
		out, err := ResolveText(text, map[string]any{"x": "a"})
		require.NoError(t, err)
		assert.Equal(t, text, out)
	}
}

func TestResolveText_MissingVariable(t *testing.T) {
	_, err := ResolveText("{{x}}", map[string]any{})
	require.Error(t, err)

	var rbErr *schema.RunbookError
	require.ErrorAs(t, err, &rbErr)
	assert.Equal(t, schema.ErrCodeMissingVariable, rbErr.Code)
	assert.Contains(t, rbErr.Message, `"x"`)
}

func TestResolveText_MissingVariableListsAvailable(t *testing.T) {
	_, err := ResolveText("{{missing}}", map[string]any{"b": "2", "a": "1"})
	require.Error(t, err)

	var rbErr *schema.RunbookError
	require.ErrorAs(t, err, &rbErr)
	assert.Contains(t, rbErr.Message, "[a, b]")
}

func TestResolveText_NumberCanonicalDecimal(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want string
	}{
		{"whole float", float64(12), "12"},
		{"fraction", 1.5, "1.5"},
		{"negative", -0.25, "-0.25"},
		{"int", 7, "7"},
		{"int64", int64(42), "42"},
		{"zero", float64(0), "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ResolveText("{{n}}", map[string]any{"n": tt.val})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestResolveText_Booleans(t *testing.T) {
	out, err := ResolveText("{{a}}-{{b}}", map[string]any{"a": true, "b": false})
	require.NoError(t, err)
	assert.Equal(t, "true-false", out)
}

func TestResolveText_UnsupportedTypes(t *testing.T) {
	tests := []struct {
		name string
		val  any
	}{
		{"array", []any{1, 2}},
		{"object", map[string]any{"k": "v"}},
		{"null", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveText("{{v}}", map[string]any{"v": tt.val})
			require.Error(t, err)

			var rbErr *schema.RunbookError
			require.ErrorAs(t, err, &rbErr)
			assert.Equal(t, schema.ErrCodeUnsupportedType, rbErr.Code)
		})
	}
}

func TestResolveText_MultipleTokens(t *testing.T) {
	out, err := ResolveText("{{greeting}}, {{name}}!", map[string]any{
		"greeting": "hello",
		"name":     "world",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello, world!", out)
}

func TestResolveText_EmbeddedInCommand(t *testing.T) {
	out, err := ResolveText("echo {{name}}", map[string]any{"name": "world"})
	require.NoError(t, err)
	assert.Equal(t, "echo world", out)
}

func TestResolveText_OverlappingBraces(t *testing.T) {
	// The inner pair still forms a token when the outer brace is stray.
	out, err := ResolveText("{{{x}}", map[string]any{"x": "a"})
	require.NoError(t, err)
	assert.Equal(t, "{a", out)
}

func TestResolveText_UnclosedToken(t *testing.T) {
	out, err := ResolveText("{{x", map[string]any{"x": "a"})
	require.NoError(t, err)
	assert.Equal(t, "{{x", out)
}

func TestResolveValue_Structured(t *testing.T) {
	in := map[string]any{
		"a": "{{x}}",
		"b": []any{float64(1), "{{x}}"},
	}

	out, err := ResolveValue(in, map[string]any{"x": "v"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": "v",
		"b": []any{float64(1), "v"},
	}, out)
}

func TestResolveValue_NonStringLeavesUntouched(t *testing.T) {
	in := map[string]any{
		"num":  42.5,
		"flag": true,
		"null": nil,
		"nested": map[string]any{
			"deep": []any{"{{x}}", false},
		},
	}

	out, err := ResolveValue(in, map[string]any{"x": "v"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"num":  42.5,
		"flag": true,
		"null": nil,
		"nested": map[string]any{
			"deep": []any{"v", false},
		},
	}, out)
}

func TestResolveValue_MissingVariablePropagates(t *testing.T) {
	_, err := ResolveValue(map[string]any{"a": "{{nope}}"}, map[string]any{})
	require.Error(t, err)

	var rbErr *schema.RunbookError
	require.ErrorAs(t, err, &rbErr)
	assert.Equal(t, schema.ErrCodeMissingVariable, rbErr.Code)
}

func TestResolveStringMap(t *testing.T) {
	out, err := ResolveStringMap(map[string]string{
		"HOME": "/home/{{user}}",
		"MODE": "fast",
	}, map[string]any{"user": "amy"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"HOME": "/home/amy",
		"MODE": "fast",
	}, out)
}

func TestResolveStringMap_Nil(t *testing.T) {
	out, err := ResolveStringMap(nil, map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestHasPlaceholder(t *testing.T) {
	assert.True(t, HasPlaceholder("{{x}}"))
	assert.True(t, HasPlaceholder("echo {{name}}"))
	assert.False(t, HasPlaceholder("plain"))
	assert.False(t, HasPlaceholder("{{ spaced }}"))
	assert.False(t, HasPlaceholder("{{x"))
}

func TestResolveText_Idempotent(t *testing.T) {
	vars := map[string]any{"name": "world"}
	once, err := ResolveText("echo {{name}}", vars)
	require.NoError(t, err)

	twice, err := ResolveText(once, vars)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}
