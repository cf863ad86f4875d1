package sandbox

import "time"

// Defaults applied to zero-valued Limits fields.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultCallStackSize   = 256
	DefaultRegistrySize    = 256 * 20
	DefaultRegistryMaxSize = 256 * 20 * 16
	DefaultMaxSourceBytes  = 1 << 20
	DefaultMaxMemoryBytes  = 8 << 20
)

// Limits bounds the resources a single handler invocation may use.
// The Lua data stack cannot grow past RegistryMaxSize slots and the call
// depth past CallStackSize frames; both overflows abort the handler.
// MaxMemoryBytes caps the bytes charged to the handler: its props, strings
// built by string.rep, string.format, string.gsub, string.upper,
// string.lower, string.reverse and table.concat, capability results and the
// returned value. Going over it is a sandbox violation.
type Limits struct {
	Timeout         time.Duration `json:"timeout,omitempty"`
	CallStackSize   int           `json:"call_stack_size,omitempty"`
	RegistrySize    int           `json:"registry_size,omitempty"`
	RegistryMaxSize int           `json:"registry_max_size,omitempty"`
	MaxSourceBytes  int           `json:"max_source_bytes,omitempty"`
	MaxMemoryBytes  int64         `json:"max_memory_bytes,omitempty"`
}

// DefaultLimits returns the limits used when nothing is configured.
func DefaultLimits() Limits {
	return Limits{
		Timeout:         DefaultTimeout,
		CallStackSize:   DefaultCallStackSize,
		RegistrySize:    DefaultRegistrySize,
		RegistryMaxSize: DefaultRegistryMaxSize,
		MaxSourceBytes:  DefaultMaxSourceBytes,
		MaxMemoryBytes:  DefaultMaxMemoryBytes,
	}
}

// withDefaults fills every zero field from DefaultLimits.
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.Timeout <= 0 {
		l.Timeout = d.Timeout
	}
	if l.CallStackSize <= 0 {
		l.CallStackSize = d.CallStackSize
	}
	if l.RegistrySize <= 0 {
		l.RegistrySize = d.RegistrySize
	}
	if l.RegistryMaxSize <= 0 {
		l.RegistryMaxSize = d.RegistryMaxSize
	}
	if l.RegistryMaxSize < l.RegistrySize {
		l.RegistryMaxSize = l.RegistrySize
	}
	if l.MaxSourceBytes <= 0 {
		l.MaxSourceBytes = d.MaxSourceBytes
	}
	if l.MaxMemoryBytes <= 0 {
		l.MaxMemoryBytes = d.MaxMemoryBytes
	}
	return l
}
