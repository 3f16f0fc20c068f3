// Package wire holds the JSON conventions shared by every configuration entity:
// snake_case wire names, the polymorphic envelope, nullable scalars and
// per-entity decode failures.
package wire

import (
	"strings"
	"unicode"
)

// SnakeCase converts an in-memory lowerCamelCase name to its lower_snake_case
// wire name. Every upper-case rune starts a new word, so "isSourceAFile"
// becomes "is_source_a_file".
func SnakeCase(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CamelCase is the inverse of SnakeCase.
func CamelCase(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	upper := false
	for _, r := range name {
		if r == '_' {
			upper = true
			continue
		}
		if upper && b.Len() > 0 {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteRune(r)
		}
		upper = false
	}
	return b.String()
}

// Humanize turns a field name into the label used in validation messages:
// "projectPath" becomes "Project path".
func Humanize(field string) string {
	words := strings.Split(SnakeCase(CamelCase(field)), "_")
	out := strings.Join(words, " ")
	if out == "" {
		return out
	}
	r := []rune(out)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// Attributes is a loosely typed attribute bag keyed by in-memory field names.
// It is how callers hand attributes to a registry constructor without building
// a wire document by hand.
type Attributes map[string]any

// Snake returns a copy with every key, including keys of nested maps and
// maps inside slices, converted to its wire name.
func (a Attributes) Snake() map[string]any {
	return snakeMap(a)
}

func snakeMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[SnakeCase(k)] = snakeValue(v)
	}
	return out
}

func snakeValue(v any) any {
	switch t := v.(type) {
	case Attributes:
		return snakeMap(t)
	case map[string]any:
		return snakeMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = snakeValue(t[i])
		}
		return out
	case []Attributes:
		out := make([]any, len(t))
		for i := range t {
			out[i] = snakeMap(t[i])
		}
		return out
	default:
		return v
	}
}
