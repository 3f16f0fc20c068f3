package validate

import (
	"fmt"
	"regexp"
	"strings"

	"cfgadmin/internal/wire"
)

// Rule checks one aspect of v and records failures in errs.
type Rule[T any] func(v T, errs *Errors)

// Rules is an ordered rule list for one entity type.
type Rules[T any] []Rule[T]

// Apply runs every rule against v and returns a fresh error set.
func (rs Rules[T]) Apply(v T) Errors {
	var errs Errors
	for _, r := range rs {
		r(v, &errs)
	}
	return errs
}

const idMessage = "Invalid id. This must be alphanumeric and can contain hyphens, underscores and periods (however, it cannot start with a period). The maximum allowed length is 255 characters."

var (
	idPattern  = regexp.MustCompile(`^[a-zA-Z0-9_\-][a-zA-Z0-9_\-.]*$`)
	urlPattern = regexp.MustCompile(`^https?://.+`)
)

type options struct {
	label   string
	message string
}

// Option tweaks how a rule words its message.
type Option func(*options)

// Label replaces the humanized field name in the message.
func Label(label string) Option {
	return func(o *options) { o.label = label }
}

// Message replaces the whole message.
func Message(msg string) Option {
	return func(o *options) { o.message = msg }
}

func resolve(field, format string, opts []Option, args ...any) string {
	o := options{label: wire.Humanize(field)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.message != "" {
		return o.message
	}
	return fmt.Sprintf(format, append([]any{o.label}, args...)...)
}

// PresentMessage is the message used for a missing required field.
func PresentMessage(field string, opts ...Option) string {
	return resolve(field, "%s must be present", opts)
}

// DuplicateMessage is the message attached to members sharing a key.
func DuplicateMessage(field string, opts ...Option) string {
	return resolve(field, "%s is a duplicate", opts)
}

// Presence requires a non-blank string.
func Presence[T any](field string, get func(T) string, opts ...Option) Rule[T] {
	return func(v T, errs *Errors) {
		if strings.TrimSpace(get(v)) == "" {
			errs.Add(field, PresentMessage(field, opts...))
		}
	}
}

// PresenceOf requires present(v) to hold, for fields that are not strings.
func PresenceOf[T any](field string, present func(T) bool, opts ...Option) Rule[T] {
	return func(v T, errs *Errors) {
		if !present(v) {
			errs.Add(field, PresentMessage(field, opts...))
		}
	}
}

// Format requires a non-blank value to match re. Blank values pass.
func Format[T any](field string, get func(T) string, re *regexp.Regexp, opts ...Option) Rule[T] {
	return func(v T, errs *Errors) {
		s := get(v)
		if strings.TrimSpace(s) == "" || re.MatchString(s) {
			return
		}
		errs.Add(field, resolve(field, "%s format is invalid", opts))
	}
}

// URL requires a non-blank value to be an http(s) url.
func URL[T any](field string, get func(T) string, opts ...Option) Rule[T] {
	return func(v T, errs *Errors) {
		s := get(v)
		if strings.TrimSpace(s) == "" || urlPattern.MatchString(s) {
			return
		}
		errs.Add(field, resolve(field, "%s must be a valid http(s) url", opts))
	}
}

// ID requires a non-blank value to be a valid configuration identifier.
func ID[T any](field string, get func(T) string, opts ...Option) Rule[T] {
	return func(v T, errs *Errors) {
		s := get(v)
		if strings.TrimSpace(s) == "" {
			return
		}
		if len(s) > 255 || !idPattern.MatchString(s) {
			errs.Add(field, resolve(field, "", append([]Option{Message(idMessage)}, opts...)))
		}
	}
}

// Unbounded accepts null, the keyword, or a non-negative integer given as a
// number or a string. Anything else gets one message.
func Unbounded[T any](field string, get func(T) wire.Scalar, keyword string, opts ...Option) Rule[T] {
	return func(v T, errs *Errors) {
		s := get(v)
		if s.IsNull() || (s.IsText() && s.String() == keyword) {
			return
		}
		if _, ok := s.Count(); ok {
			return
		}
		errs.Add(field, resolve(field, "%s must be a non-negative integer or '%s'", opts, keyword))
	}
}

// OneOf requires every value of a list field to be in allowed.
func OneOf[T any](field string, get func(T) []string, allowed []string, opts ...Option) Rule[T] {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return func(v T, errs *Errors) {
		for _, s := range get(v) {
			if _, ok := set[s]; !ok {
				errs.Add(field, resolve(field, "%s contains an invalid value '%s'", opts, s))
			}
		}
	}
}

// When applies r only if cond holds.
func When[T any](cond func(T) bool, r Rule[T]) Rule[T] {
	return func(v T, errs *Errors) {
		if cond(v) {
			r(v, errs)
		}
	}
}

// Custom adapts a plain check into a rule. check returns "" when v is fine.
func Custom[T any](field string, check func(T) string) Rule[T] {
	return func(v T, errs *Errors) {
		if msg := check(v); msg != "" {
			errs.Add(field, msg)
		}
	}
}
