package engine

import (
	"context"
	"sort"

	"github.com/sinteflow/sinte/internal/expressions"
	"github.com/sinteflow/sinte/pkg/schema"
)

// resolveProps evaluates every template prop of step against the bindings
// {input, auth, ctx}. Literal and block props pass through untouched. The
// auth binding is the step's own entry only.
func (e *Engine) resolveProps(ctx context.Context, step schema.Step, visible Context, input map[string]any, auth AuthMap) (map[string]any, error) {
	props := step.StepProps()
	resolved := make(map[string]any, len(props)+1)
	if len(props) == 0 {
		return resolved, nil
	}

	bindings := expressions.Bindings(input, auth.For(step.StepID()), map[string]any(visible))

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := props[name]
		if spec.Type != schema.PropTemplate {
			resolved[name] = spec.Value
			continue
		}

		source, ok := spec.Value.(string)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"prop %q: template value must be a string, got %T", name, spec.Value).WithStep(step.StepID())
		}

		val, err := e.scripts.EvaluateExpression(ctx, spec.Lang, source, bindings)
		if err != nil {
			return nil, propError(err, name, step.StepID())
		}
		resolved[name] = val
	}
	return resolved, nil
}

// propError names the failing prop. Cancellation and timeouts keep their
// code; everything else is an EXPRESSION_ERROR.
func propError(err error, prop, stepID string) error {
	code := schema.ErrorCode(err)
	switch code {
	case schema.ErrCodeCancelled, schema.ErrCodeTimeout:
	default:
		code = schema.ErrCodeExpression
	}
	return schema.NewErrorf(code, "prop %q: %s", prop, err.Error()).WithStep(stepID).WithCause(err)
}
