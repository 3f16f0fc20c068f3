package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ItemError is the decode failure of one member of a batch.
type ItemError struct {
	Index int
	Err   error
}

func (e ItemError) Error() string { return fmt.Sprintf("item %d: %v", e.Index, e.Err) }
func (e ItemError) Unwrap() error { return e.Err }

// BatchError reports the members of a list that could not be decoded. The
// members that did decode are still returned alongside it.
type BatchError struct {
	Family string
	Total  int
	Items  []ItemError
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		parts = append(parts, it.Error())
	}
	return fmt.Sprintf("decode %s: %d of %d entities failed: %s", e.Family, len(e.Items), e.Total, strings.Join(parts, "; "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Items))
	for _, it := range e.Items {
		errs = append(errs, it.Err)
	}
	return errs
}

// DecodeEach decodes every item, isolating failures per entity. The error is
// nil or a *BatchError.
func DecodeEach[T any](family string, items []json.RawMessage, decode func(json.RawMessage) (T, error)) ([]T, error) {
	out := make([]T, 0, len(items))
	var failed []ItemError
	for i, raw := range items {
		v, err := decode(raw)
		if err != nil {
			failed = append(failed, ItemError{Index: i, Err: err})
			continue
		}
		out = append(out, v)
	}
	if len(failed) > 0 {
		return out, &BatchError{Family: family, Total: len(items), Items: failed}
	}
	return out, nil
}

// AsBatchError is errors.As for *BatchError.
func AsBatchError(err error) (*BatchError, bool) {
	var be *BatchError
	ok := errors.As(err, &be)
	return be, ok
}
