package sensor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/sensorbridge/internal/device"
)

// Registry maps type tags to handlers. It implements device.TypeLookup.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]device.TypeHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]device.TypeHandler)}
}

// NewDefaultRegistry creates a registry holding every built-in handler.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, h := range Builtin() {
		// Built-in tags are distinct, so Register cannot fail here.
		_ = r.Register(h)
	}
	return r
}

// Builtin returns a fresh instance of every built-in handler.
func Builtin() []device.TypeHandler {
	return []device.TypeHandler{
		Touch{},
		Temperature{},
		Humidity{},
		Proximity{},
		WaterDetector{},
	}
}

// Register adds a handler. Registering a second handler for the same
// type tag returns ErrDuplicateType.
func (r *Registry) Register(h device.TypeHandler) error {
	if h == nil || h.Type() == "" {
		return ErrInvalidHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[h.Type()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, h.Type())
	}
	r.handlers[h.Type()] = h
	return nil
}

// Lookup returns the handler for a type tag.
func (r *Registry) Lookup(typeTag string) (device.TypeHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[typeTag]
	return h, ok
}

// Types returns the registered type tags in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.handlers))
	for tag := range r.handlers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
