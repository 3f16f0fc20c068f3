// Package collection provides the ordered, uniqueness-checked container that
// every configuration entity family lives in.
package collection

import (
	"encoding/json"
	"errors"
	"fmt"

	"cfgadmin/internal/validate"
	"cfgadmin/internal/wire"
)

// ErrNotFound matches every *NotFoundError.
var ErrNotFound = errors.New("collection: not found")

// NotFoundError is returned by First and Last on an empty collection.
type NotFoundError struct {
	Family string
}

func (e *NotFoundError) Error() string        { return fmt.Sprintf("no %s in collection", e.Family) }
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Member is an entity that can live in a collection. Members are compared by
// identity, so T is normally a pointer or an interface holding one.
type Member interface {
	comparable
	// Identity is the key checked for duplicates. "" is never a duplicate.
	Identity() string
	// Validate recomputes the member's own error set and returns it.
	Validate() *validate.Errors
	// Errors returns the error set from the last validation or decode.
	Errors() *validate.Errors
	// IsValid validates the member and everything it owns.
	IsValid() bool
}

// Factory builds members from an attribute document. *registry.Registry
// satisfies it.
type Factory[T any] interface {
	Create(kind string, attrs json.RawMessage) (T, error)
}

// Collection is an ordered sequence of members of one family.
type Collection[T Member] struct {
	family   string
	keyField string
	factory  Factory[T]
	items    []T
}

// New returns a collection whose members are unique by the field keyField.
func New[T Member](family, keyField string, factory Factory[T], items ...T) *Collection[T] {
	c := &Collection[T]{family: family, keyField: keyField, factory: factory}
	c.Add(items...)
	return c
}

func (c *Collection[T]) Family() string   { return c.family }
func (c *Collection[T]) KeyField() string { return c.keyField }

// Create builds a member of the given kind from in-memory attributes, appends
// it and returns it.
func (c *Collection[T]) Create(kind string, attrs wire.Attributes) (T, error) {
	var zero T
	if c.factory == nil {
		return zero, fmt.Errorf("%s collection has no factory", c.family)
	}
	raw, err := attrs.JSON()
	if err != nil {
		return zero, err
	}
	m, err := c.factory.Create(kind, raw)
	if err != nil {
		return zero, err
	}
	c.items = append(c.items, m)
	return m, nil
}

// Add appends members in order.
func (c *Collection[T]) Add(items ...T) {
	c.items = append(c.items, items...)
}

// Remove deletes item by identity and reports whether it was present.
func (c *Collection[T]) Remove(item T) bool {
	i := c.IndexOf(item)
	if i < 0 {
		return false
	}
	c.items = append(c.items[:i:i], c.items[i+1:]...)
	if len(c.items) == 0 {
		c.items = nil
	}
	return true
}

// IndexOf returns the position of item, or -1.
func (c *Collection[T]) IndexOf(item T) int {
	for i, it := range c.items {
		if it == item {
			return i
		}
	}
	return -1
}

func (c *Collection[T]) Len() int { return len(c.items) }

func (c *Collection[T]) At(i int) T { return c.items[i] }

// All returns the members in order. The slice is a copy.
func (c *Collection[T]) All() []T {
	return append([]T(nil), c.items...)
}

func (c *Collection[T]) First() (T, error) {
	if len(c.items) == 0 {
		var zero T
		return zero, &NotFoundError{Family: c.family}
	}
	return c.items[0], nil
}

func (c *Collection[T]) Last() (T, error) {
	if len(c.items) == 0 {
		var zero T
		return zero, &NotFoundError{Family: c.family}
	}
	return c.items[len(c.items)-1], nil
}

// Find returns the first member whose key is key.
func (c *Collection[T]) Find(key string) (T, bool) {
	for _, it := range c.items {
		if it.Identity() == key {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// Filter returns the members matching pred, in order.
func (c *Collection[T]) Filter(pred func(T) bool) []T {
	var out []T
	for _, it := range c.items {
		if pred(it) {
			out = append(out, it)
		}
	}
	return out
}

// Collect returns fn applied to every member, in order.
func Collect[T Member, V any](c *Collection[T], fn func(T) V) []V {
	out := make([]V, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, fn(it))
	}
	return out
}

// CollectProperty returns the wire value of field for every member. field is
// an in-memory name; for polymorphic members it is looked up inside the
// attributes document.
func (c *Collection[T]) CollectProperty(field string) ([]any, error) {
	key := wire.SnakeCase(field)
	out := make([]any, 0, len(c.items))
	for i, it := range c.items {
		raw, err := json.Marshal(it)
		if err != nil {
			return nil, fmt.Errorf("encode %s %d: %w", c.family, i, err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode %s %d: %w", c.family, i, err)
		}
		if attrs, ok := doc["attributes"].(map[string]any); ok {
			if _, typed := doc["type"]; typed {
				if v, ok := attrs[key]; ok {
					out = append(out, v)
					continue
				}
			}
		}
		out = append(out, doc[key])
	}
	return out, nil
}

// Validate validates every member and marks every member that shares a
// non-empty key with a sibling. It reports whether all members are valid.
func (c *Collection[T]) Validate() bool {
	counts := c.keyCounts()
	valid := true
	for _, it := range c.items {
		if !it.IsValid() {
			valid = false
		}
		if k := it.Identity(); k != "" && counts[k] > 1 {
			it.Errors().Add(c.keyField, validate.DuplicateMessage(c.keyField))
			valid = false
		}
	}
	return valid
}

// IsValid is Validate.
func (c *Collection[T]) IsValid() bool { return c.Validate() }

// ValidateMember validates one member, including the duplicate check against
// its siblings, and returns its error set.
func (c *Collection[T]) ValidateMember(m T) *validate.Errors {
	errs := m.Validate()
	if k := m.Identity(); k != "" {
		for _, it := range c.items {
			if it != m && it.Identity() == k {
				errs.Add(c.keyField, validate.DuplicateMessage(c.keyField))
				break
			}
		}
	}
	return errs
}

func (c *Collection[T]) keyCounts() map[string]int {
	counts := make(map[string]int, len(c.items))
	for _, it := range c.items {
		if k := it.Identity(); k != "" {
			counts[k]++
		}
	}
	return counts
}

// Decode appends every decodable item. Items that fail are reported in a
// *wire.BatchError; the rest are still added.
func (c *Collection[T]) Decode(items []json.RawMessage, decode func(json.RawMessage) (T, error)) error {
	out, err := wire.DecodeEach(c.family, items, decode)
	c.Add(out...)
	return err
}

func (c *Collection[T]) MarshalJSON() ([]byte, error) {
	if len(c.items) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(c.items)
}
