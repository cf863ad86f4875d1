package script

import (
	"context"
	"testing"
	"time"

	"github.com/sinteflow/sinte/internal/expressions"
	"github.com/sinteflow/sinte/internal/sandbox"
	"github.com/sinteflow/sinte/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecutor(t *testing.T, caps ...sandbox.Capability) *Executor {
	t.Helper()
	reg, err := expressions.NewRegistry(expressions.DefaultLang)
	require.NoError(t, err)
	return NewExecutor(reg, Config{Limits: sandbox.Limits{Timeout: 2 * time.Second}, Capabilities: caps})
}

func TestExecutor_EvaluateExpression(t *testing.T) {
	x := newExecutor(t)
	bindings := expressions.Bindings(map[string]any{"message": "test"}, nil, map[string]any{"steps": map[string]any{}})

	out, err := x.EvaluateExpression(context.Background(), "", `input.message + "!"`, bindings)
	require.NoError(t, err)
	assert.Equal(t, "test!", out)

	out, err = x.EvaluateExpression(context.Background(), "jq", `.input.message`, bindings)
	require.NoError(t, err)
	assert.Equal(t, "test", out)
}

func TestExecutor_UnknownLanguage(t *testing.T) {
	_, err := newExecutor(t).EvaluateExpression(context.Background(), "xpath", "1", nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeExpression, schema.ErrorCode(err))
}

func TestExecutor_HandlersDoNotShareState(t *testing.T) {
	x := newExecutor(t)
	src := `
counter = (counter or 0) + 1
function handler(props)
  return counter
end`
	for i := 0; i < 3; i++ {
		out, err := x.RunHandler(context.Background(), src, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, out)
	}
}

func TestExecutor_PassesCapabilities(t *testing.T) {
	echo := sandbox.NewCapability("echo", func(_ context.Context, args []any) (any, error) {
		return args[0], nil
	})
	out, err := newExecutor(t, echo).RunHandler(context.Background(), `
function handler(props)
  return echo(props.value)
end`, map[string]any{"value": "ping"})
	require.NoError(t, err)
	assert.Equal(t, "ping", out)
}

func TestExecutor_RequireIsViolation(t *testing.T) {
	_, err := newExecutor(t).RunHandler(context.Background(), `
local os = require("os")
function handler(props) return 1 end`, nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeSandbox, schema.ErrorCode(err))
}
