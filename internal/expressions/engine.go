package expressions

import "context"

// Engine evaluates template expressions against a bindings object.
// Three implementations: Expr (default), CEL and GoJQ.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Names of the top-level bindings every template is evaluated against.
const (
	BindingInput = "input"
	BindingAuth  = "auth"
	BindingCtx   = "ctx"
)

// Bindings builds the evaluation data for a template. Nil maps are replaced
// with empty ones so expressions never see a missing binding.
func Bindings(input, auth, ctx map[string]any) map[string]any {
	return map[string]any{
		BindingInput: orEmpty(input),
		BindingAuth:  orEmpty(auth),
		BindingCtx:   orEmpty(ctx),
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
