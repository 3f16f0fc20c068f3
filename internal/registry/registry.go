// Package registry maps wire discriminators to the constructors of the
// variants of one polymorphic family.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrEmptyKind is returned when a variant has no discriminator.
	ErrEmptyKind = errors.New("registry: empty kind provided")
	// ErrNilConstructor is returned when a variant has no constructor.
	ErrNilConstructor = errors.New("registry: nil constructor provided")
	// ErrUnknownVariant matches every *UnknownVariantError.
	ErrUnknownVariant = errors.New("registry: unknown variant")
)

// UnknownVariantError reports a discriminator with no registered variant.
type UnknownVariantError struct {
	Family string
	Kind   string
}

func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("unknown %s type %q", e.Family, e.Kind)
}

func (e *UnknownVariantError) Is(target error) bool { return target == ErrUnknownVariant }

// Source tells where a variant came from.
type Source string

const (
	Builtin Source = "builtin"
	Plugin  Source = "plugin"
)

// Field describes one configurable key of a plugin-advertised variant.
type Field struct {
	Key      string
	Required bool
	Secure   bool
}

// Constructor builds a variant from its attribute sub-document. attrs may be
// empty, which means "all defaults".
type Constructor[T any] func(attrs json.RawMessage) (T, error)

// Variant is one registered shape of a family.
type Variant[T any] struct {
	Kind        string
	DisplayName string
	Source      Source
	Fields      []Field
	New         Constructor[T]
}

// Registry holds the variants of one family. It is safe for concurrent use.
type Registry[T any] struct {
	family   string
	mu       sync.RWMutex
	variants map[string]Variant[T]
}

// New returns an empty registry for family.
func New[T any](family string) *Registry[T] {
	return &Registry[T]{family: family, variants: make(map[string]Variant[T])}
}

// Family returns the family name used in error messages.
func (r *Registry[T]) Family() string { return r.family }

// Register adds v, replacing any variant already registered under v.Kind.
func (r *Registry[T]) Register(v Variant[T]) error {
	if v.Kind == "" {
		return ErrEmptyKind
	}
	if v.New == nil {
		return ErrNilConstructor
	}
	if v.Source == "" {
		v.Source = Builtin
	}
	if v.DisplayName == "" {
		v.DisplayName = v.Kind
	}
	v.Fields = append([]Field(nil), v.Fields...)
	r.mu.Lock()
	r.variants[v.Kind] = v
	r.mu.Unlock()
	return nil
}

// MustRegister is Register that panics, for package-level built-ins.
func (r *Registry[T]) MustRegister(v Variant[T]) {
	if err := r.Register(v); err != nil {
		panic(err)
	}
}

// Unregister removes kind and reports whether it was present.
func (r *Registry[T]) Unregister(kind string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.variants[kind]
	delete(r.variants, kind)
	return ok
}

// Lookup returns the variant registered under kind.
func (r *Registry[T]) Lookup(kind string) (Variant[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variants[kind]
	return v, ok
}

// Create builds the variant registered under kind from attrs.
func (r *Registry[T]) Create(kind string, attrs json.RawMessage) (T, error) {
	v, ok := r.Lookup(kind)
	if !ok {
		var zero T
		return zero, &UnknownVariantError{Family: r.family, Kind: kind}
	}
	out, err := v.New(attrs)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("build %s %q: %w", r.family, kind, err)
	}
	return out, nil
}

// Kinds returns the registered discriminators in sorted order.
func (r *Registry[T]) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.variants))
	for k := range r.variants {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Variants returns a snapshot of every variant, sorted by kind.
func (r *Registry[T]) Variants() []Variant[T] {
	kinds := r.Kinds()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Variant[T], 0, len(kinds))
	for _, k := range kinds {
		if v, ok := r.variants[k]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Len returns the number of registered variants.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.variants)
}
