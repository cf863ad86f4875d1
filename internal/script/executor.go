// Package script is the production script executor: template expressions
// through the expression registry, handlers in a fresh Lua sandbox per call.
package script

import (
	"context"

	"github.com/sinteflow/sinte/internal/expressions"
	"github.com/sinteflow/sinte/internal/sandbox"
)

// Config configures an Executor.
type Config struct {
	Limits       sandbox.Limits
	Capabilities []sandbox.Capability
}

// Executor implements the engine's ScriptExecutor.
type Executor struct {
	exprs  *expressions.Registry
	limits sandbox.Limits
	caps   []sandbox.Capability
}

// NewExecutor creates an Executor. Handlers see exactly cfg.Capabilities.
func NewExecutor(exprs *expressions.Registry, cfg Config) *Executor {
	caps := make([]sandbox.Capability, len(cfg.Capabilities))
	copy(caps, cfg.Capabilities)
	return &Executor{exprs: exprs, limits: cfg.Limits, caps: caps}
}

// EvaluateExpression evaluates source in dialect lang ("" selects the
// registry default).
func (x *Executor) EvaluateExpression(ctx context.Context, lang, source string, bindings map[string]any) (any, error) {
	return x.exprs.Evaluate(ctx, lang, source, bindings)
}

// RunHandler runs source in a new sandbox that is discarded afterwards.
func (x *Executor) RunHandler(ctx context.Context, source string, props map[string]any) (any, error) {
	return sandbox.NewLuaSandbox(x.limits, x.caps).RunHandler(ctx, source, props)
}
