package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sinteflow/sinte/internal/validation"
	"github.com/sinteflow/sinte/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloYAML = `
- id: logMessage1
  provider: test
  action: log
  props:
    message:
      type: template
      value: '''Hello world!'''
`

func newLoader(t *testing.T) *Loader {
	t.Helper()
	v, err := validation.New()
	require.NoError(t, err)
	return New(v)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	def, warnings, err := newLoader(t).Load(strings.NewReader(helloYAML))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, def.Steps, 1)

	step, ok := def.Steps[0].(*schema.ActionStep)
	require.True(t, ok)
	assert.Equal(t, "'Hello world!'", step.Props["message"].Value)
}

func TestLoad_JSON(t *testing.T) {
	def, _, err := newLoader(t).Load(strings.NewReader(`{
  "name": "greet",
  "steps": [
    {"id": "s1", "provider": "test", "action": "log", "props": {"count": 2}}
  ]
}`))
	require.NoError(t, err)
	assert.Equal(t, "greet", def.Name)
	step := def.Steps[0].(*schema.ActionStep)
	assert.Equal(t, 2, step.Props["count"].Value)
}

func TestLoad_Warnings(t *testing.T) {
	_, warnings, err := newLoader(t).Load(strings.NewReader(`
- id: s1
  provider: test
  action: log
- id: s1
  provider: test
  action: log
`))
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, validation.CodeDuplicateStep, warnings[0].Code)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":       "",
		"bad yaml":    "- id: [unclosed",
		"invalid":     "- id: s1\n  provider: test\n",
		"bad control": "- id: c1\n  provider: flow\n  action: repeat\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := newLoader(t).Load(strings.NewReader(src))
			require.Error(t, err)
			assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
		})
	}
}

func TestLoadFile_NameFromFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "hello.yaml", helloYAML)
	entry, err := newLoader(t).LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", entry.Name())
	assert.Equal(t, path, entry.Path)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := newLoader(t).LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hello.yaml", helloYAML)
	writeFile(t, dir, "named.json", `{"name": "greet", "steps": []}`)
	writeFile(t, dir, SchedulesFile, "jobs: []\n")
	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, "broken.yml", "- id: s1\n")

	cat, err := newLoader(t).LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.yml")

	assert.Equal(t, []string{"greet", "hello"}, cat.Names())
	assert.Equal(t, 2, cat.Len())

	entry, err := cat.Get("hello")
	require.NoError(t, err)
	assert.Len(t, entry.Definition.Steps, 1)

	_, err = cat.Get("missing")
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
}

func TestCatalog_NameConflict(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "name: same\nsteps: []\n")
	writeFile(t, dir, "b.yaml", "name: same\nsteps: []\n")

	cat, err := newLoader(t).LoadDir(dir)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, schema.ErrorCode(err))
	assert.Equal(t, 1, cat.Len())
}
