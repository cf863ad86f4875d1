package integrations

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sinteflow/sinte/pkg/schema"
)

// Registry is an in-memory, thread-safe Resolver.
type Registry struct {
	mu       sync.RWMutex
	handlers map[HandlerInfo]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[HandlerInfo]string),
	}
}

// Register adds the handler source for provider/action. Returns error on duplicate.
func (r *Registry) Register(provider, action, source string) error {
	if provider == "" || action == "" {
		return schema.NewError(schema.ErrCodeValidation, "provider and action must be set")
	}
	if provider == schema.FlowProvider {
		return schema.NewErrorf(schema.ErrCodeValidation, "provider %q is reserved", schema.FlowProvider)
	}
	if strings.TrimSpace(source) == "" {
		return schema.NewErrorf(schema.ErrCodeValidation, "handler %s/%s has empty source", provider, action)
	}

	key := HandlerInfo{Provider: provider, Action: action}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[key]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "handler %s/%s already registered", provider, action)
	}
	r.handlers[key] = source
	return nil
}

// RegisterProvider bulk-registers the handlers of one provider, keyed by action.
// It stops at the first failure and reports how many were registered.
func (r *Registry) RegisterProvider(provider string, handlers map[string]string) (int, error) {
	actions := make([]string, 0, len(handlers))
	for a := range handlers {
		actions = append(actions, a)
	}
	sort.Strings(actions)

	registered := 0
	for _, a := range actions {
		if err := r.Register(provider, a, handlers[a]); err != nil {
			return registered, err
		}
		registered++
	}
	return registered, nil
}

// Resolve returns the registered source.
func (r *Registry) Resolve(_ context.Context, provider, action string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, ok := r.handlers[HandlerInfo{Provider: provider, Action: action}]
	if !ok {
		return "", notFound(provider, action)
	}
	return src, nil
}

// Has checks if a handler is registered.
func (r *Registry) Has(provider, action string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[HandlerInfo{Provider: provider, Action: action}]
	return ok
}

// List returns all registered handlers sorted by provider then action.
func (r *Registry) List() []HandlerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]HandlerInfo, 0, len(r.handlers))
	for k := range r.handlers {
		infos = append(infos, k)
	}
	sortInfos(infos)
	return infos
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

func sortInfos(infos []HandlerInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Provider != infos[j].Provider {
			return infos[i].Provider < infos[j].Provider
		}
		return infos[i].Action < infos[j].Action
	})
}

var _ Resolver = (*Registry)(nil)
