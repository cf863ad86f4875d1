package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinteflow/sinte/pkg/schema"
)

// --- Helpers ---

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "first content should be text, got %T", result.Content[0])
	return text.Text
}

func decodeResult(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	return out
}

// --- Tests ---

func TestListTool(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleList(context.Background(), buildRequest("sinte.list", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	out := decodeResult(t, result)
	chains, ok := out["chains"].([]any)
	require.True(t, ok)
	require.Len(t, chains, 3)

	first := chains[0].(map[string]any)
	assert.Equal(t, "choice", first["name"])
	greet := chains[1].(map[string]any)
	assert.Equal(t, "greet", greet["name"])
	assert.Equal(t, "greets the caller", greet["description"])
	assert.Equal(t, float64(1), greet["steps"])
	assert.NotNil(t, greet["input_schema"])
}

func TestRunTool(t *testing.T) {
	s := newTestServer(t)

	req := buildRequest("sinte.run", map[string]any{
		"chain": "greet",
		"input": map[string]any{"name": "agent"},
	})

	result, err := s.handleRun(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	assert.JSONEq(t,
		`{"ctx":{"steps":{}},"localCtx":{"steps":{"logMessage1":{"result":"Hello agent"}}}}`,
		resultText(t, result))
}

func TestRunToolCondition(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleRun(context.Background(), buildRequest("sinte.run", map[string]any{
		"chain": "choice",
		"input": map[string]any{"big": true},
	}))
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"ctx":{"steps":{}},"localCtx":{"steps":{"bigOne":{"result":"big"}}}}`,
		resultText(t, result))
}

func TestRunToolAuth(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		auth any
		want bool
	}{
		{"matching entry", map[string]any{"check": map[string]any{"test": "token"}}, true},
		{"entry for another step", map[string]any{"other": map[string]any{"test": "token"}}, false},
		{"no auth", nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args := map[string]any{"chain": "guarded"}
			if tc.auth != nil {
				args["auth"] = tc.auth
			}
			result, err := s.handleRun(context.Background(), buildRequest("sinte.run", args))
			require.NoError(t, err)
			require.False(t, result.IsError, resultText(t, result))

			out := decodeResult(t, result)
			steps := out["localCtx"].(map[string]any)["steps"].(map[string]any)
			assert.Equal(t, map[string]any{"result": tc.want}, steps["check"])
		})
	}
}

func TestRunToolErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		args map[string]any
		code string
	}{
		{"unknown chain", map[string]any{"chain": "nope"}, schema.ErrCodeNotFound},
		{"input rejected", map[string]any{"chain": "greet", "input": map[string]any{}}, schema.ErrCodeValidation},
		{"auth not an object", map[string]any{"chain": "guarded", "auth": "token"}, schema.ErrCodeValidation},
		{"auth entry not an object", map[string]any{"chain": "guarded", "auth": map[string]any{"check": 1}}, schema.ErrCodeValidation},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleRun(context.Background(), buildRequest("sinte.run", tc.args))
			require.NoError(t, err)
			require.True(t, result.IsError)
			assert.Equal(t, tc.code, decodeResult(t, result)["code"])
		})
	}
}

func TestRunToolMissingChain(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleRun(context.Background(), buildRequest("sinte.run", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "chain is required", resultText(t, result))
}

func TestValidateTool(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleValidate(context.Background(), buildRequest("sinte.validate", map[string]any{
		"definition": greetChain,
	}))
	require.NoError(t, err)

	out := decodeResult(t, result)
	assert.Equal(t, true, out["valid"])
	assert.Equal(t, "greet", out["name"])
	assert.Equal(t, float64(1), out["steps"])
	assert.Empty(t, out["errors"])
}

func TestValidateToolInvalid(t *testing.T) {
	s := newTestServer(t)

	doc := `
- id: a
  provider: test
  action: missing
- id: b
  provider: flow
  action: parallel
`
	result, err := s.handleValidate(context.Background(), buildRequest("sinte.validate", map[string]any{
		"definition": doc,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	out := decodeResult(t, result)
	assert.Equal(t, false, out["valid"])
	errs := out["errors"].([]any)
	require.Len(t, errs, 2)

	var codes []string
	for _, e := range errs {
		codes = append(codes, e.(map[string]any)["code"].(string))
	}
	assert.ElementsMatch(t, []string{schema.ErrCodeResolution, schema.ErrCodeUnknownControl}, codes)
}

func TestValidateToolMissingDefinition(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleValidate(context.Background(), buildRequest("sinte.validate", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestDiagramTool(t *testing.T) {
	s := newTestServer(t)

	t.Run("mermaid", func(t *testing.T) {
		result, err := s.handleDiagram(context.Background(), buildRequest("sinte.diagram", map[string]any{
			"chain":  "choice",
			"format": "mermaid",
		}))
		require.NoError(t, err)
		text := resultText(t, result)
		assert.Contains(t, text, "graph TD")
		assert.Contains(t, text, "pick -->|then| pick_then_bigOne")
	})

	t.Run("ascii from definition", func(t *testing.T) {
		result, err := s.handleDiagram(context.Background(), buildRequest("sinte.diagram", map[string]any{
			"definition": greetChain,
			"format":     "ascii",
		}))
		require.NoError(t, err)
		text := resultText(t, result)
		assert.Contains(t, text, "=== greet ===")
		assert.Contains(t, text, "(test.log)")
	})

	t.Run("image", func(t *testing.T) {
		result, err := s.handleDiagram(context.Background(), buildRequest("sinte.diagram", map[string]any{
			"chain":  "greet",
			"format": "image",
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)
		require.Len(t, result.Content, 2)
		img, ok := result.Content[1].(mcp.ImageContent)
		require.True(t, ok)
		assert.Equal(t, "image/png", img.MIMEType)
		png, err := base64.StdEncoding.DecodeString(img.Data)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
	})
}

func TestDiagramToolStatusOverlay(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleRun(context.Background(), buildRequest("sinte.run", map[string]any{
		"chain": "choice",
		"input": map[string]any{"big": false},
	}))
	require.NoError(t, err)

	result, err := s.handleDiagram(context.Background(), buildRequest("sinte.diagram", map[string]any{
		"chain":          "choice",
		"format":         "mermaid",
		"include_status": true,
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "class pick completed")
	assert.Contains(t, text, "class pick_then_bigOne skipped")
	assert.Contains(t, text, "class pick_otherwise_smallOne completed")
}

func TestDiagramToolErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing format", map[string]any{"chain": "greet"}},
		{"bad format", map[string]any{"chain": "greet", "format": "gif"}},
		{"no source", map[string]any{"format": "ascii"}},
		{"unknown chain", map[string]any{"chain": "nope", "format": "ascii"}},
		{"broken definition", map[string]any{"definition": "- id: [", "format": "ascii"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleDiagram(context.Background(), buildRequest("sinte.diagram", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}
