package kernel

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// Registry maps names to factories of type F. It is a bijection: a name
// maps to one factory and a factory is registered under one name.
// Registry is safe for concurrent use.
type Registry[F any] struct {
	kind string

	mu     sync.RWMutex
	byName map[string]F
	byFunc map[uintptr]string
}

// NewRegistry creates an empty registry. kind names the registered
// things in error messages.
func NewRegistry[F any](kind string) *Registry[F] {
	return &Registry[F]{
		kind:   kind,
		byName: make(map[string]F),
		byFunc: make(map[uintptr]string),
	}
}

// Register adds f under name.
func (r *Registry[F]) Register(name string, f F) error {
	if name == "" {
		return fmt.Errorf("%w: empty %s name", ErrRegistration, r.kind)
	}
	key, ok := funcKey(f)
	if !ok {
		return fmt.Errorf("%w: nil %s factory for %q", ErrRegistration, r.kind, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: %s %q already registered", ErrRegistration, r.kind, name)
	}
	if other, exists := r.byFunc[key]; exists {
		return fmt.Errorf("%w: %s factory for %q already registered as %q", ErrRegistration, r.kind, name, other)
	}
	r.byName[name] = f
	r.byFunc[key] = name
	return nil
}

// MustRegister is like Register but panics on error. It is meant for
// package initialisation with constant names.
func (r *Registry[F]) MustRegister(name string, f F) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Lookup returns the factory registered under name.
func (r *Registry[F]) Lookup(name string) (F, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.byName[name]
	if !ok {
		var zero F
		return zero, fmt.Errorf("%w: unknown %s %q", ErrRegistration, r.kind, name)
	}
	return f, nil
}

// Name returns the name f is registered under.
func (r *Registry[F]) Name(f F) (string, bool) {
	key, ok := funcKey(f)
	if !ok {
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.byFunc[key]
	return name, ok
}

// Names returns all registered names in sorted order.
func (r *Registry[F]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// funcKey identifies a factory function by its code pointer.
func funcKey(f any) (uintptr, bool) {
	v := reflect.ValueOf(f)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return 0, false
	}
	return v.Pointer(), true
}
