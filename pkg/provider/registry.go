package provider

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrAlreadyRegistered = errors.New("provider already registered")
	ErrNotFound          = errors.New("provider not found")
)

// Factory returns the provider of a profile. It is called on every Lookup.
type Factory func() Provider

// Registry maps profile names to provider factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return errors.New("provider name is required")
	}
	if f == nil {
		return fmt.Errorf("provider %q: factory is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, name)
	}
	r.factories[name] = f
	return nil
}

// Lookup resolves name to a provider.
func (r *Registry) Lookup(name string) (Provider, error) {
	r.mu.RLock()
	f, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	p := f()
	if p == nil {
		return nil, fmt.Errorf("provider %q: factory returned nil", name)
	}
	return p, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// Register adds f to the process wide registry.
func Register(name string, f Factory) error {
	return defaultRegistry.Register(name, f)
}

// MustRegister is Register for init functions; it panics on error.
func MustRegister(name string, f Factory) {
	if err := Register(name, f); err != nil {
		panic(err)
	}
}

func Lookup(name string) (Provider, error) {
	return defaultRegistry.Lookup(name)
}

func Names() []string {
	return defaultRegistry.Names()
}
