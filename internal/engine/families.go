package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"cfgadmin/internal/collection"
	adminsdk "cfgadmin/sdk/go"
)

// Entity is what every family hands back to callers.
type Entity interface {
	json.Marshaler
	Identity() string
	IsValid() bool
}

type entity interface {
	collection.Member
	json.Marshaler
}

// Action says what ApplyDocument did.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// Result describes one applied document. Errors holds the field errors the
// server reported when it rejected the document.
type Result struct {
	Family string              `json:"family"`
	ID     string              `json:"id"`
	Action Action              `json:"action"`
	ETag   string              `json:"etag,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
}

// Report is the outcome of a local validation.
type Report struct {
	Family string              `json:"family"`
	ID     string              `json:"id"`
	Valid  bool                `json:"valid"`
	Errors map[string][]string `json:"errors,omitempty"`
}

// family adapts one typed resource to the untyped workflows.
type family struct {
	endpoint adminsdk.Endpoint
	list     func(ctx context.Context) ([]Entity, error)
	get      func(ctx context.Context, id string) (Entity, error)
	remove   func(ctx context.Context, ids ...string) error
	apply    func(ctx context.Context, raw json.RawMessage) (Result, error)
	validate func(raw json.RawMessage) (Report, error)
}

func bind[T entity](res *adminsdk.Resource[T], decode func(json.RawMessage) (T, error)) family {
	e := res.Endpoint()
	return family{
		endpoint: e,
		list: func(ctx context.Context) ([]Entity, error) {
			c, err := res.List(ctx)
			if c == nil {
				return nil, err
			}
			out := make([]Entity, 0, c.Len())
			for _, v := range c.All() {
				out = append(out, v)
			}
			return out, err
		},
		get: func(ctx context.Context, id string) (Entity, error) {
			v, err := res.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			return v, nil
		},
		remove: res.Remove,
		apply: func(ctx context.Context, raw json.RawMessage) (Result, error) {
			v, err := decode(raw)
			if err != nil {
				return Result{Family: e.Family}, fmt.Errorf("decode %s: %w", e.Family, err)
			}
			return applyEntity(ctx, res, v)
		},
		validate: func(raw json.RawMessage) (Report, error) {
			v, err := decode(raw)
			if err != nil {
				return Report{Family: e.Family}, fmt.Errorf("decode %s: %w", e.Family, err)
			}
			valid := v.IsValid()
			return Report{Family: e.Family, ID: v.Identity(), Valid: valid, Errors: v.Errors().Map()}, nil
		},
	}
}

// applyEntity creates v when no ETag is recorded for it and updates it
// otherwise.
func applyEntity[T entity](ctx context.Context, res *adminsdk.Resource[T], v T) (Result, error) {
	var zero T
	e := res.Endpoint()
	out := Result{Family: e.Family, ID: v.Identity(), Action: ActionCreated}
	write := res.Create
	if v.Identity() != "" {
		_, known, err := res.ETag(ctx, v.Identity())
		if err != nil {
			return out, err
		}
		if known {
			out.Action = ActionUpdated
			write = res.Update
		}
	}
	stored, err := write(ctx, v)
	if err != nil {
		if apiErr, ok := adminsdk.AsAPIError(err); ok && apiErr.StatusCode == http.StatusUnprocessableEntity && stored != zero {
			out.Errors = stored.Errors().Map()
		}
		return out, err
	}
	out.ID = stored.Identity()
	out.ETag, _, _ = res.ETag(ctx, out.ID)
	return out, nil
}

func (e *Engine) family(name string) (family, error) {
	f, ok := e.families[name]
	if !ok {
		return family{}, fmt.Errorf("unknown family %q (known: %v)", name, e.Families())
	}
	return f, nil
}

// Families lists the family names the engine can address.
func (e *Engine) Families() []string {
	out := make([]string, 0, len(e.families))
	for name := range e.families {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Endpoint returns the endpoint of a family, with its effective version.
func (e *Engine) Endpoint(name string) (adminsdk.Endpoint, error) {
	f, err := e.family(name)
	if err != nil {
		return adminsdk.Endpoint{}, err
	}
	return f.endpoint, nil
}

// List reads a whole family. With a partial decode failure the decoded
// entities are returned next to the error.
func (e *Engine) List(ctx context.Context, name string) ([]Entity, error) {
	f, err := e.family(name)
	if err != nil {
		return nil, err
	}
	return f.list(ctx)
}

func (e *Engine) Get(ctx context.Context, name, id string) (Entity, error) {
	f, err := e.family(name)
	if err != nil {
		return nil, err
	}
	return f.get(ctx, id)
}

func (e *Engine) Remove(ctx context.Context, name string, ids ...string) error {
	f, err := e.family(name)
	if err != nil {
		return err
	}
	return f.remove(ctx, ids...)
}

// ApplyDocument writes one document of family: a create when no ETag is
// recorded for its identifier, an update with that ETag otherwise.
func (e *Engine) ApplyDocument(ctx context.Context, name string, raw json.RawMessage) (Result, error) {
	f, err := e.family(name)
	if err != nil {
		return Result{}, err
	}
	return f.apply(ctx, raw)
}

// ValidateDocument decodes and validates a document of family without
// contacting the server.
func (e *Engine) ValidateDocument(name string, raw json.RawMessage) (Report, error) {
	f, err := e.family(name)
	if err != nil {
		return Report{}, err
	}
	return f.validate(raw)
}
