package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sinteflow/sinte/internal/integrations"
	"github.com/sinteflow/sinte/internal/logging"
	"github.com/sinteflow/sinte/pkg/schema"
)

// ScriptExecutor evaluates template expressions and runs handler sources.
// RunHandler must use a fresh sandbox for every call.
type ScriptExecutor interface {
	EvaluateExpression(ctx context.Context, lang, source string, bindings map[string]any) (any, error)
	RunHandler(ctx context.Context, source string, props map[string]any) (any, error)
}

// Engine runs a chain of steps. It holds no per-run state, so one Engine
// may serve any number of concurrent runs.
type Engine struct {
	chain    schema.Chain
	resolver integrations.Resolver
	scripts  ScriptExecutor
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for step tracing.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine for chain.
func New(chain schema.Chain, resolver integrations.Resolver, scripts ScriptExecutor, opts ...Option) *Engine {
	e := &Engine{
		chain:    chain,
		resolver: resolver,
		scripts:  scripts,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Chain returns the chain the engine runs.
func (e *Engine) Chain() schema.Chain { return e.chain }

// Run executes the engine's chain from an empty context. Each call gets a
// run ID for log correlation unless ctx already carries one. On failure no
// partial result is returned.
func (e *Engine) Run(ctx context.Context, input map[string]any, auth AuthMap) (*Result, error) {
	if logging.RunID(ctx) == "" {
		ctx = logging.WithRunID(ctx, uuid.NewString())
	}

	start := time.Now()
	e.logger.DebugContext(ctx, "run started", slog.Int("steps", len(e.chain)))

	res, err := e.RunChain(ctx, e.chain, NewContext(), input, auth)
	if err != nil {
		e.logger.ErrorContext(ctx, "run failed",
			slog.String("code", schema.ErrorCode(err)),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)))
		return nil, err
	}

	e.logger.DebugContext(ctx, "run completed", slog.Duration("elapsed", time.Since(start)))
	return res, nil
}

// RunChain executes chain below parent. Steps run strictly in declaration
// order; each sees parent's steps overlaid with the results of its earlier
// siblings. The returned Result carries parent unchanged.
func (e *Engine) RunChain(ctx context.Context, chain schema.Chain, parent Context, input map[string]any, auth AuthMap) (*Result, error) {
	if parent == nil {
		parent = NewContext()
	}
	if input == nil {
		input = map[string]any{}
	}

	local := NewSteps()
	for _, step := range chain {
		if err := ctx.Err(); err != nil {
			return nil, schema.NewError(schema.ErrCodeCancelled, "run cancelled").
				WithStep(step.StepID()).WithCause(err)
		}

		visible := parent.WithSteps(local)
		stepCtx := logging.WithStepID(ctx, step.StepID())

		start := time.Now()
		e.logger.DebugContext(stepCtx, "step started")

		var err error
		switch s := step.(type) {
		case *schema.ControlStep:
			err = e.runControl(stepCtx, s, visible, local, input, auth)
		case *schema.ActionStep:
			var result any
			result, err = e.runAction(stepCtx, s, visible, input, auth)
			if err == nil {
				local.Set(s.ID, result)
			}
		default:
			err = schema.NewErrorf(schema.ErrCodeValidation, "unsupported step type %T", step)
		}
		if err != nil {
			return nil, withStep(err, step.StepID())
		}

		e.logger.DebugContext(stepCtx, "step completed", slog.Duration("elapsed", time.Since(start)))
	}

	return &Result{Ctx: parent, Local: LocalContext{Steps: local}}, nil
}

// withStep attaches stepID to err unless an inner step already claimed it.
// Errors that are not SinteErrors become EXECUTION_ERROR.
func withStep(err error, stepID string) error {
	var se *schema.SinteError
	if errors.As(err, &se) {
		if se.StepID == "" {
			se.StepID = stepID
		}
		return err
	}
	return schema.NewErrorf(schema.ErrCodeExecution, "%s", err.Error()).WithStep(stepID).WithCause(err)
}
