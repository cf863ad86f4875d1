package sandbox

import "context"

// Capability is a host function exposed to handler code as a global of the
// same name. Arguments and results are plain Go values (nil, bool, string,
// int, float64, []any, map[string]any).
type Capability interface {
	Name() string
	Call(ctx context.Context, args []any) (any, error)
}

// CapabilityFunc adapts a function to the Capability interface.
type CapabilityFunc struct {
	name string
	fn   func(ctx context.Context, args []any) (any, error)
}

// NewCapability wraps fn as a Capability named name.
func NewCapability(name string, fn func(ctx context.Context, args []any) (any, error)) *CapabilityFunc {
	return &CapabilityFunc{name: name, fn: fn}
}

func (c *CapabilityFunc) Name() string { return c.name }

func (c *CapabilityFunc) Call(ctx context.Context, args []any) (any, error) {
	return c.fn(ctx, args)
}

var _ Capability = (*CapabilityFunc)(nil)
