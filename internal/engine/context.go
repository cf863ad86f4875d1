package engine

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// StepsKey is the ctx entry holding the results visible to a step.
const StepsKey = "steps"

// IndexSuffix is appended to a loop key to name the iteration index binding.
const IndexSuffix = "_index"

// Context is the read-only execution context (ctx) templates see. It holds
// a "steps" map plus any bindings added by enclosing loops. A Context is
// never mutated once built; With and WithSteps return extended copies.
type Context map[string]any

// NewContext returns the empty top-level context.
func NewContext() Context {
	return Context{StepsKey: map[string]any{}}
}

// Steps returns the ctx steps map, or an empty map when absent.
func (c Context) Steps() map[string]any {
	if s, ok := c[StepsKey].(map[string]any); ok {
		return s
	}
	return map[string]any{}
}

// Copy returns a shallow copy of c.
func (c Context) Copy() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// With returns a shallow copy of c with key bound to value.
func (c Context) With(key string, value any) Context {
	out := c.Copy()
	out[key] = value
	return out
}

// WithSteps returns a shallow copy of c whose steps are c's steps overlaid
// with local. Entries in local win on collision.
func (c Context) WithSteps(local *Steps) Context {
	inherited := c.Steps()
	steps := make(map[string]any, len(inherited)+local.Len())
	for k, v := range inherited {
		steps[k] = v
	}
	local.each(func(id string, result any) {
		steps[id] = plain(result)
	})
	return c.With(StepsKey, steps)
}

// Steps is an insertion-ordered map of step id to result. Setting an id that
// already exists replaces the value and keeps its original position.
type Steps struct {
	m *orderedmap.OrderedMap[string, any]
}

// NewSteps returns an empty Steps.
func NewSteps() *Steps {
	return &Steps{m: orderedmap.New[string, any]()}
}

// Set records the result of step id.
func (s *Steps) Set(id string, result any) {
	s.m.Set(id, result)
}

// Get returns the result of step id.
func (s *Steps) Get(id string) (any, bool) {
	return s.m.Get(id)
}

// Len returns the number of recorded steps.
func (s *Steps) Len() int {
	if s == nil {
		return 0
	}
	return s.m.Len()
}

// Keys returns the step ids in the order they were first recorded.
func (s *Steps) Keys() []string {
	keys := make([]string, 0, s.Len())
	s.each(func(id string, _ any) {
		keys = append(keys, id)
	})
	return keys
}

// Merge records every entry of other into s, in other's order.
func (s *Steps) Merge(other *Steps) {
	other.each(func(id string, result any) {
		s.m.Set(id, result)
	})
}

// Map returns the results as plain nested maps and slices.
func (s *Steps) Map() map[string]any {
	out := make(map[string]any, s.Len())
	s.each(func(id string, result any) {
		out[id] = plain(result)
	})
	return out
}

func (s *Steps) each(fn func(id string, result any)) {
	if s == nil {
		return
	}
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// MarshalJSON encodes the results as an object in recorded order.
func (s *Steps) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return s.m.MarshalJSON()
}

// plain converts loop results ([]*Steps) into []any of maps so templates and
// handlers only ever see plain values.
func plain(v any) any {
	switch val := v.(type) {
	case *Steps:
		return val.Map()
	case []*Steps:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s.Map()
		}
		return out
	default:
		return v
	}
}

// LocalContext holds the results produced by one chain invocation.
type LocalContext struct {
	Steps *Steps `json:"steps"`
}

// AuthMap holds per-step credentials keyed by step id.
type AuthMap map[string]map[string]any

// For returns the entry of stepID, or an empty map. No other entry is
// reachable through the result.
func (a AuthMap) For(stepID string) map[string]any {
	entry, ok := a[stepID]
	if !ok || entry == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(entry))
	for k, v := range entry {
		out[k] = v
	}
	return out
}

// Result is the outcome of a chain run: the context it was given, unchanged,
// and the results it produced.
type Result struct {
	Ctx   Context      `json:"ctx"`
	Local LocalContext `json:"localCtx"`
}
