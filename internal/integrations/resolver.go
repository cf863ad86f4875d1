// Package integrations finds the handler source that implements a
// provider/action pair.
package integrations

import (
	"context"
	"errors"

	"github.com/sinteflow/sinte/pkg/schema"
)

// ErrHandlerNotFound is the cause of every RESOLUTION_ERROR raised because a
// resolver does not know the requested pair.
var ErrHandlerNotFound = errors.New("handler not found")

// Resolver returns the handler source for a provider/action pair.
type Resolver interface {
	Resolve(ctx context.Context, provider, action string) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, provider, action string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, provider, action string) (string, error) {
	return f(ctx, provider, action)
}

// HandlerInfo identifies a resolvable handler.
type HandlerInfo struct {
	Provider string `json:"provider"`
	Action   string `json:"action"`
}

func notFound(provider, action string) error {
	return schema.NewErrorf(schema.ErrCodeResolution, "no handler for %s/%s", provider, action).
		WithCause(ErrHandlerNotFound).
		WithDetails(map[string]any{"provider": provider, "action": action})
}

// IsNotFound reports whether err means the pair is unknown, as opposed to a
// resolver that failed while looking.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrHandlerNotFound)
}

// Chained asks each resolver in order. The first one that knows the pair
// wins; any other failure stops the search.
type Chained []Resolver

// Chain returns the resolvers as a Chained.
func Chain(resolvers ...Resolver) Chained {
	return Chained(resolvers)
}

func (c Chained) Resolve(ctx context.Context, provider, action string) (string, error) {
	for _, r := range c {
		src, err := r.Resolve(ctx, provider, action)
		if err == nil {
			return src, nil
		}
		if !IsNotFound(err) {
			return "", err
		}
	}
	return "", notFound(provider, action)
}

// Has reports whether any member that can answer without loading the source
// knows the pair.
func (c Chained) Has(provider, action string) bool {
	for _, r := range c {
		if h, ok := r.(interface{ Has(provider, action string) bool }); ok && h.Has(provider, action) {
			return true
		}
	}
	return false
}
