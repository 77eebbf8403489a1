package expressions

import "context"

// Engine evaluates step condition expressions against the run context.
// Two implementations: CEL (default, bindings exposed under the `vars`
// map) and Expr (bindings exposed as top-level identifiers). GoJQ is a
// third implementation used for jq output queries rather than conditions.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
