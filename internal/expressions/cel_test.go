package expressions

import (
	"context"
	"testing"

	"github.com/sinteflow/sinte/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCELEngine(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	assert.Equal(t, "cel", e.Name())
}

func TestCEL_Bindings(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	tests := []struct {
		name string
		expr string
		want any
	}{
		{"comparison", `1 > 2`, false},
		{"input", `input.message == "test"`, true},
		{"auth", `auth.token`, "secret"},
		{"prior step", `"was: " + ctx.steps.logMessage1.result`, "was: Hello world!"},
		{"list size", `size(ctx.steps.query1.result)`, int64(2)},
		{"has macro", `has(ctx.steps.missing)`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.Evaluate(context.Background(), tt.expr, templateData())
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestCEL_MissingBindingsDefaultToEmpty(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), `size(input)`, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), out)
}

func TestCEL_Errors(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), "", nil)
	assert.Equal(t, schema.ErrCodeExpression, schema.ErrorCode(err))

	_, err = e.Evaluate(context.Background(), `unknown_var > 1`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile error")

	_, err = e.Evaluate(context.Background(), `ctx.steps.nope.result`, templateData())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evaluation failed")
}

func TestCEL_CollectionResultsAreNative(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), `ctx.steps.query1.result.map(r, r.id)`, templateData())
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, out)

	out, err = e.Evaluate(context.Background(), `{"a": [1, "x"], "b": null}`, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": []any{int64(1), "x"}, "b": nil}, out)
}
