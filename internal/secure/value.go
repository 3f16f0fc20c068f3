// Package secure models a configuration field whose content is either clear
// text or a server-held ciphertext.
package secure

import "errors"

var (
	// ErrBothValues is returned when a value is built from both a clear text
	// and a cipher text origin.
	ErrBothValues = errors.New("secure: value has both a clear text and an encrypted origin")
	// ErrCipherNotEditable is returned by Set on a cipher value that is not
	// being edited.
	ErrCipherNotEditable = errors.New("secure: cannot edit a cipher value directly")
	// ErrNotSecure is returned by Edit on a plain value.
	ErrNotSecure = errors.New("secure: only a cipher value can be edited")
)

type snapshot struct {
	secure bool
	text   string
}

// Value is one field's content plus its confidentiality state.
type Value struct {
	secure      bool
	text        string
	original    snapshot
	editing     bool
	dirty       bool
	unencrypted bool
}

// Plain returns a clear-text value.
func Plain(text string) *Value {
	return &Value{text: text, original: snapshot{text: text}}
}

// Cipher returns a value holding a server-encrypted text.
func Cipher(text string) *Value {
	return &Value{secure: true, text: text, original: snapshot{secure: true, text: text}}
}

// New builds a value from whichever origin is supplied. Supplying both is a
// construction error. Supplying neither yields an empty plain value.
func New(clear, cipher *string) (*Value, error) {
	switch {
	case clear != nil && cipher != nil:
		return nil, ErrBothValues
	case cipher != nil:
		return Cipher(*cipher), nil
	case clear != nil:
		return Plain(*clear), nil
	default:
		return Plain(""), nil
	}
}

// MustNew is New that panics on a construction error.
func MustNew(clear, cipher *string) *Value {
	v, err := New(clear, cipher)
	if err != nil {
		panic(err)
	}
	return v
}

// FromWire builds a value from a wire pair. A secure flag on a clear text
// means the server has not encrypted it yet.
func FromWire(clear, cipher *string, secureFlag bool) (*Value, error) {
	v, err := New(clear, cipher)
	if err != nil {
		return nil, err
	}
	if secureFlag && !v.secure {
		v.BecomeSecure()
	}
	return v, nil
}

// Value returns the current content whatever the state.
func (v *Value) Value() string { return v.text }

// Set replaces the content.
func (v *Value) Set(text string) error {
	if v.secure && !v.editing && !v.unencrypted {
		return ErrCipherNotEditable
	}
	v.text = text
	v.dirty = text != v.original.text || v.editing
	return nil
}

func (v *Value) IsPlain() bool   { return !v.secure }
func (v *Value) IsSecure() bool  { return v.secure }
func (v *Value) IsDirty() bool   { return v.dirty }
func (v *Value) IsEditing() bool { return v.editing }

// BecomeSecure turns a plain value into a secure one. The change is one way:
// the current clear text becomes the committed content and is sent for
// encryption on the next write.
func (v *Value) BecomeSecure() {
	if v.secure {
		return
	}
	v.secure = true
	v.editing = false
	v.dirty = false
	v.unencrypted = true
	v.original = snapshot{secure: true, text: v.text}
}

// Edit opens an empty editable copy of a cipher value.
func (v *Value) Edit() error {
	if !v.secure {
		return ErrNotSecure
	}
	if v.editing {
		return nil
	}
	v.editing = true
	v.text = ""
	return nil
}

// ResetToOriginal restores the last committed content.
func (v *Value) ResetToOriginal() {
	v.secure = v.original.secure
	v.text = v.original.text
	v.editing = false
	v.dirty = false
}

// Wire returns the clear and cipher members to send. Exactly one is non-nil.
// A secure value that was edited, or never encrypted, is sent as clear text so
// the server can encrypt it.
func (v *Value) Wire() (clear, cipher *string) {
	text := v.text
	if !v.secure || v.dirty || v.unencrypted {
		return &text, nil
	}
	if v.editing {
		text = v.original.text
	}
	return nil, &text
}
