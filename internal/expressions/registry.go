package expressions

import (
	"context"
	"sort"
	"sync"

	"github.com/sinteflow/sinte/pkg/schema"
)

// DefaultLang is the dialect used for templates that do not name one.
const DefaultLang = "expr"

// Registry selects an Engine by dialect name.
type Registry struct {
	mu       sync.RWMutex
	engines  map[string]Engine
	fallback string
}

// NewRegistry creates a Registry holding the expr, cel and jq engines, with
// defaultLang used for templates that do not name a dialect.
func NewRegistry(defaultLang string) (*Registry, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}

	r := &Registry{engines: make(map[string]Engine), fallback: DefaultLang}
	for _, e := range []Engine{NewExprEngine(), celEngine, NewGoJQEngine()} {
		r.engines[e.Name()] = e
	}

	if defaultLang != "" {
		if _, ok := r.engines[defaultLang]; !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown template language %q", defaultLang)
		}
		r.fallback = defaultLang
	}
	return r, nil
}

// Register adds or replaces an engine under its own name.
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.Name()] = e
}

// Get returns the engine for lang, or the default engine when lang is empty.
func (r *Registry) Get(lang string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if lang == "" {
		lang = r.fallback
	}
	e, ok := r.engines[lang]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeExpression, "unknown template language %q", lang)
	}
	return e, nil
}

// Evaluate runs expression in the given dialect.
func (r *Registry) Evaluate(ctx context.Context, lang, expression string, data map[string]any) (any, error) {
	e, err := r.Get(lang)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(ctx, expression, data)
}

// Languages lists the registered dialect names.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
