package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHandlers = "../../examples/handlers"

const greetYAML = `
name: greet
description: greets the caller
steps:
  - id: logMessage1
    provider: test
    action: log
    props:
      message:
        type: template
        value: '''Hello '' + input.name'
`

const echoYAML = `
name: echo
steps:
  - id: e
    provider: core
    action: echo
    props:
      who:
        type: template
        value: input.name
`

const brokenYAML = `
- id: s1
  provider: nope
  action: missing
`

// execute runs the root command against chainsDir and returns stdout.
func execute(t *testing.T, chainsDir string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(filepath.Join(t.TempDir(), "settings.json"), envMap(nil))

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--handlers", testHandlers, "--chains", chainsDir, "--log-level", "error"}, args...))

	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func chainsDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestRunCommand_ByName(t *testing.T) {
	dir := chainsDir(t, map[string]string{"greet.yaml": greetYAML})

	out, err := execute(t, dir, "run", "greet", "--input", `{"name": "cli"}`)
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t,
		map[string]any{"logMessage1": map[string]any{"result": "Hello cli"}},
		res["localCtx"].(map[string]any)["steps"])
}

func TestRunCommand_FileAndInputFile(t *testing.T) {
	dir := chainsDir(t, map[string]string{
		"echo.yaml":  echoYAML,
		"input.yaml": "name: from-file\n",
	})

	out, err := execute(t, t.TempDir(), "run", filepath.Join(dir, "echo.yaml"),
		"--input", "@"+filepath.Join(dir, "input.yaml"))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"ctx":{"steps":{}},"localCtx":{"steps":{"e":{"who":"from-file"}}}}`, out)
}

func TestRunCommand_Errors(t *testing.T) {
	dir := chainsDir(t, map[string]string{"greet.yaml": greetYAML})

	_, err := execute(t, dir, "run", "nope")
	assert.Error(t, err)

	_, err = execute(t, dir, "run", "greet", "--input", "[1, 2]")
	assert.ErrorContains(t, err, "--input")

	_, err = execute(t, dir, "run", "greet", "--auth", `{"logMessage1": "token"}`)
	assert.ErrorContains(t, err, "logMessage1")
}

func TestValidateCommand(t *testing.T) {
	dir := chainsDir(t, map[string]string{
		"greet.yaml":  greetYAML,
		"broken.yaml": brokenYAML,
	})

	out, err := execute(t, dir, "validate", filepath.Join(dir, "greet.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "is valid (1 steps)")

	out, err = execute(t, dir, "validate", filepath.Join(dir, "greet.yaml"), filepath.Join(dir, "broken.yaml"))
	assert.ErrorContains(t, err, "1 of 2")
	assert.Contains(t, out, "✗ "+filepath.Join(dir, "broken.yaml"))
}

func TestListCommand(t *testing.T) {
	dir := chainsDir(t, map[string]string{
		"greet.yaml": greetYAML,
		"echo.yaml":  echoYAML,
	})

	out, err := execute(t, dir, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "greets the caller")
	assert.Less(t, bytes.Index([]byte(out), []byte("echo")), bytes.Index([]byte(out), []byte("greet")))
}

func TestHandlersCommand(t *testing.T) {
	out, err := execute(t, t.TempDir(), "handlers")
	require.NoError(t, err)
	assert.Contains(t, out, "core/echo")
	assert.Contains(t, out, "builtin")
	assert.Contains(t, out, "test/log")
}

func TestDiagramCommand(t *testing.T) {
	dir := chainsDir(t, map[string]string{"greet.yaml": greetYAML})

	out, err := execute(t, dir, "diagram", "greet", "--format", "mermaid")
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "logMessage1")

	target := filepath.Join(t.TempDir(), "greet.dot")
	_, err = execute(t, dir, "diagram", "greet", "-f", "dot", "-o", target)
	require.NoError(t, err)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "digraph")

	_, err = execute(t, dir, "diagram", "greet", "--format", "gif")
	assert.ErrorContains(t, err, "unknown format")
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd("/nonexistent/settings.json", envMap(map[string]string{"SINTE_SANDBOX_TIMEOUT": "bogus"}))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestParseObjectFlag(t *testing.T) {
	m, err := parseObjectFlag("input", "")
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = parseObjectFlag("input", `{"a": 1}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1}, m)

	_, err = parseObjectFlag("input", "@/does/not/exist")
	assert.ErrorContains(t, err, "--input")
}

func TestExampleChains(t *testing.T) {
	const dir = "../../examples/chains"

	out, err := execute(t, dir, "list")
	require.NoError(t, err)
	for _, name := range []string{"guarded", "hello", "manifests"} {
		assert.Contains(t, out, name)
	}

	out, err = execute(t, dir, "run", "guarded", "--auth", `{"check": {"test": "token"}}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"granted"`)

	_, err = execute(t, dir, "run", "hello")
	assert.Error(t, err, "hello requires a name")
}

// lockedBuffer is written by the MCP workers and the notification loop.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServeCommand(t *testing.T) {
	dir := chainsDir(t, map[string]string{"greet.yaml": greetYAML})

	stdin := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"sinte.run","arguments":{"chain":"greet","input":{"name":"mcp"}}}}`,
	}, "\n") + "\n"

	root := newRootCmd(filepath.Join(t.TempDir(), "settings.json"), envMap(nil))
	out := &lockedBuffer{}
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--handlers", testHandlers, "--chains", dir, "--log-level", "error", "serve"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, root.ExecuteContext(ctx))

	got := out.String()
	assert.Contains(t, got, `"id":2`)
	assert.Contains(t, got, "Hello mcp")
}

func TestServeCommand_UnknownScheduledChain(t *testing.T) {
	dir := chainsDir(t, map[string]string{
		"greet.yaml":     greetYAML,
		"schedules.yaml": "jobs:\n  - name: nightly\n    chain: missing\n    cron: '@daily'\n",
	})

	root := newRootCmd(filepath.Join(t.TempDir(), "settings.json"), envMap(nil))
	root.SetIn(strings.NewReader(""))
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--handlers", testHandlers, "--chains", dir, "serve"})

	err := root.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, `schedule "nightly"`)
}
