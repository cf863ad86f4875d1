package engine

import (
	"context"

	"github.com/sinteflow/sinte/pkg/schema"
)

// AuthProp is the prop under which a handler receives its step's credentials.
const AuthProp = "auth"

// runAction resolves the step's props, adds its auth entry, looks up the
// handler and runs it. The handler's return value is the step result as is.
func (e *Engine) runAction(ctx context.Context, step *schema.ActionStep, visible Context, input map[string]any, auth AuthMap) (any, error) {
	props, err := e.resolveProps(ctx, step, visible, input, auth)
	if err != nil {
		return nil, err
	}
	props[AuthProp] = auth.For(step.ID)

	source, err := e.resolver.Resolve(ctx, step.Provider, step.Action)
	if err != nil {
		if schema.ErrorCode(err) == "" {
			return nil, schema.NewErrorf(schema.ErrCodeResolution,
				"resolve %s/%s: %s", step.Provider, step.Action, err.Error()).WithStep(step.ID).WithCause(err)
		}
		return nil, err
	}

	return e.scripts.RunHandler(ctx, source, props)
}
