// Package validate holds the per-field error set and the declarative rules
// that fill it.
package validate

import (
	"sort"
	"strings"
)

// Errors maps a field name to its ordered messages. Fields keep the order in
// which they first received a message. The zero value is an empty set.
type Errors struct {
	fields []string
	msgs   map[string][]string
}

// FromMap builds a set from a plain map, such as the "errors" member a server
// sends back. Field order follows the map's sorted keys.
func FromMap(m map[string][]string) Errors {
	var e Errors
	for _, k := range sortedKeys(m) {
		for _, msg := range m[k] {
			e.Add(k, msg)
		}
	}
	return e
}

// Add appends msg to field.
func (e *Errors) Add(field, msg string) {
	if e.msgs == nil {
		e.msgs = make(map[string][]string)
	}
	if _, ok := e.msgs[field]; !ok {
		e.fields = append(e.fields, field)
	}
	e.msgs[field] = append(e.msgs[field], msg)
}

// Errors returns the messages recorded for field.
func (e *Errors) Errors(field string) []string {
	if e == nil {
		return nil
	}
	return append([]string(nil), e.msgs[field]...)
}

func (e *Errors) Has(field string) bool {
	return e != nil && len(e.msgs[field]) > 0
}

func (e *Errors) IsEmpty() bool {
	return e == nil || len(e.fields) == 0
}

// Fields lists the fields with errors, in insertion order.
func (e *Errors) Fields() []string {
	if e == nil {
		return nil
	}
	return append([]string(nil), e.fields...)
}

// ForDisplay renders a field's messages as sentences.
func (e *Errors) ForDisplay(field string) string {
	msgs := e.Errors(field)
	for i := range msgs {
		msgs[i] = strings.TrimSuffix(msgs[i], ".") + "."
	}
	return strings.Join(msgs, " ")
}

// Map returns a copy of the set as a plain map.
func (e *Errors) Map() map[string][]string {
	if e.IsEmpty() {
		return nil
	}
	out := make(map[string][]string, len(e.fields))
	for _, f := range e.fields {
		out[f] = append([]string(nil), e.msgs[f]...)
	}
	return out
}

// Reset empties the set.
func (e *Errors) Reset() {
	*e = Errors{}
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
