package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_WithCopiesParent(t *testing.T) {
	parent := NewContext()
	child := parent.With("currentItem", map[string]any{"id": 1})

	assert.NotContains(t, parent, "currentItem")
	assert.Equal(t, map[string]any{"id": 1}, child["currentItem"])
}

func TestContext_WithStepsOverlaysLocal(t *testing.T) {
	parent := NewContext().WithSteps(stepsOf("logMessage1", "ancestor", "query1", "q"))

	local := NewSteps()
	local.Set("logMessage1", "sibling")
	visible := parent.WithSteps(local)

	assert.Equal(t, "sibling", visible.Steps()["logMessage1"])
	assert.Equal(t, "q", visible.Steps()["query1"])
	assert.Equal(t, "ancestor", parent.Steps()["logMessage1"])
}

func TestContext_WithStepsFlattensLoopResults(t *testing.T) {
	local := NewSteps()
	local.Set("loop1", []*Steps{stepsOf("logMessage1", "a"), stepsOf("logMessage1", "b")})

	visible := NewContext().WithSteps(local)
	assert.Equal(t, []any{
		map[string]any{"logMessage1": "a"},
		map[string]any{"logMessage1": "b"},
	}, visible.Steps()["loop1"])
}

func TestContext_StepsMissing(t *testing.T) {
	assert.Equal(t, map[string]any{}, Context{}.Steps())
}

func TestSteps_KeepsFirstPositionOnOverwrite(t *testing.T) {
	s := NewSteps()
	s.Set("a", 1)
	s.Set("b", 2)
	s.Set("a", 3)

	assert.Equal(t, []string{"a", "b"}, s.Keys())
	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestSteps_Merge(t *testing.T) {
	s := stepsOf("a", 1, "b", 2)
	s.Merge(stepsOf("c", 3, "a", 4))

	assert.Equal(t, []string{"a", "b", "c"}, s.Keys())
	assert.Equal(t, map[string]any{"a": 4, "b": 2, "c": 3}, s.Map())
}

func TestSteps_MarshalJSONKeepsOrder(t *testing.T) {
	s := stepsOf("zeta", 1, "alpha", 2)
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":1,"alpha":2}`, string(data))

	var nilSteps *Steps
	data, err = json.Marshal(LocalContext{Steps: nilSteps})
	require.NoError(t, err)
	assert.JSONEq(t, `{"steps":{}}`, string(data))
}

func TestAuthMap_ForIsStepScoped(t *testing.T) {
	auth := AuthMap{"auth1": {"test": "token"}}

	assert.Equal(t, map[string]any{"test": "token"}, auth.For("auth1"))
	assert.Equal(t, map[string]any{}, auth.For("auth2"))

	entry := auth.For("auth1")
	entry["test"] = "changed"
	assert.Equal(t, "token", auth["auth1"]["test"])

	var none AuthMap
	assert.Equal(t, map[string]any{}, none.For("auth1"))
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		in   any
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{0, false},
		{int64(2), true},
		{0.0, false},
		{"", false},
		{"no", true},
		{[]any{}, true},
		{[]any(nil), false},
		{[]any{1}, true},
		{map[string]any{}, true},
		{map[string]any{"a": 1}, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, truthy(tc.in), "truthy(%#v)", tc.in)
	}
}

// stepsOf builds a Steps from alternating id, result pairs.
func stepsOf(kv ...any) *Steps {
	s := NewSteps()
	for i := 0; i+1 < len(kv); i += 2 {
		s.Set(kv[i].(string), kv[i+1])
	}
	return s
}
