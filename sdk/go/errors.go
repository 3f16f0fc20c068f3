package adminsdk

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrConflict matches every *ConflictError.
	ErrConflict = errors.New("adminsdk: entity was modified by someone else")
	// ErrMissingETag is returned by Update when no ETag was recorded for the
	// entity, i.e. it was never read or created through this client.
	ErrMissingETag = errors.New("adminsdk: no etag recorded for entity")
	// ErrNotListable is returned by List on item-only endpoints.
	ErrNotListable = errors.New("adminsdk: endpoint has no collection listing")
)

// APIError is a non-2xx response. Message is the body's message member,
// handed over unchanged.
type APIError struct {
	StatusCode int
	Message    string
	Data       json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d message=%s", e.StatusCode, e.Message)
}

// ConflictError is a 412 Precondition Failed on a write.
type ConflictError struct {
	Family  string
	ID      string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Family, e.ID, e.Message)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// IsConflict reports whether err is a concurrency conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// AsAPIError unwraps err to an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
