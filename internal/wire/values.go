package wire

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// StringList is a list-of-strings field. It is always emitted as an array,
// never omitted or null, and an empty list decodes back to nil.
type StringList []string

func (l StringList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

func (l *StringList) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	if len(items) == 0 {
		*l = nil
		return nil
	}
	*l = items
	return nil
}

type scalarKind int

const (
	scalarNull scalarKind = iota
	scalarNumber
	scalarText
	scalarOther
)

// Scalar is a nullable JSON scalar that remembers whether it arrived as a
// number or as a string. The zero value is null.
type Scalar struct {
	kind scalarKind
	text string
}

// Null returns the unset scalar.
func Null() Scalar { return Scalar{} }

// Int returns a numeric scalar.
func Int(n int64) Scalar { return Scalar{kind: scalarNumber, text: strconv.FormatInt(n, 10)} }

// Text returns a string scalar.
func Text(s string) Scalar { return Scalar{kind: scalarText, text: s} }

func (s Scalar) IsNull() bool   { return s.kind == scalarNull }
func (s Scalar) IsNumber() bool { return s.kind == scalarNumber }
func (s Scalar) IsText() bool   { return s.kind == scalarText }

// String returns the scalar's text; "" for null.
func (s Scalar) String() string { return s.text }

// Count parses the scalar as a non-negative base-10 integer, from either a
// number or a string. Signs, decimals, exponents and blanks are rejected.
func (s Scalar) Count() (int64, bool) {
	if s.kind != scalarNumber && s.kind != scalarText {
		return 0, false
	}
	if s.text == "" {
		return 0, false
	}
	for _, r := range s.text {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s.text, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case scalarNumber, scalarOther:
		return []byte(s.text), nil
	case scalarText:
		return json.Marshal(s.text)
	default:
		return []byte("null"), nil
	}
}

func (s *Scalar) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case IsNull(trimmed):
		*s = Scalar{}
	case trimmed[0] == '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*s = Text(text)
	case trimmed[0] == '-' || (trimmed[0] >= '0' && trimmed[0] <= '9'):
		*s = Scalar{kind: scalarNumber, text: string(trimmed)}
	default:
		*s = Scalar{kind: scalarOther, text: string(trimmed)}
	}
	return nil
}
