package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is the wire shape of a polymorphic entity.
type Envelope struct {
	Type       string              `json:"type"`
	Attributes json.RawMessage     `json:"attributes,omitempty"`
	Errors     map[string][]string `json:"errors,omitempty"`
}

// ErrMissingType is returned when a polymorphic document has no discriminator.
var ErrMissingType = errors.New("wire: document has no type")

// Wrap encodes attrs inside a {type, attributes} envelope.
func Wrap(kind string, attrs any) ([]byte, error) {
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode %s attributes: %w", kind, err)
	}
	return json.Marshal(Envelope{Type: kind, Attributes: raw})
}

// Unwrap decodes a polymorphic document. Error keys are converted to
// in-memory field names.
func Unwrap(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	env.Errors = CamelErrors(env.Errors)
	return env, nil
}

// JSON encodes the attributes with wire names.
func (a Attributes) JSON() (json.RawMessage, error) {
	if a == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(a.Snake())
}

// CamelErrors re-keys a server error map by in-memory field names.
func CamelErrors(in map[string][]string) map[string][]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[CamelCase(k)] = append([]string(nil), v...)
	}
	return out
}

// ServerErrors extracts the "errors" member of a document, if any.
func ServerErrors(raw []byte) map[string][]string {
	var doc struct {
		Errors map[string][]string `json:"errors"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	return CamelErrors(doc.Errors)
}

// IsNull reports whether raw is absent or the JSON literal null.
func IsNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Embedded returns the members of _embedded.<name> from a list response.
func Embedded(body []byte, name string) ([]json.RawMessage, error) {
	var doc struct {
		Embedded map[string][]json.RawMessage `json:"_embedded"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	if doc.Embedded == nil {
		return nil, fmt.Errorf("list response has no _embedded member")
	}
	items, ok := doc.Embedded[name]
	if !ok {
		return nil, fmt.Errorf("list response has no _embedded.%s member", name)
	}
	return items, nil
}

// Nullable returns nil for the empty string so that an unset value is
// omitted on the wire instead of sent as "".
func Nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
