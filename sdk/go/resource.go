package adminsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"cfgadmin/internal/collection"
	"cfgadmin/internal/wire"
)

// Codec binds a family's entity type to the SDK.
type Codec[T collection.Member] struct {
	Decode func(json.RawMessage) (T, error)
	// ID is the identifier used in item paths and as the ETag cache key.
	// It defaults to Identity.
	ID         func(T) string
	Collection func(items ...T) *collection.Collection[T]
}

func (c Codec[T]) id(v T) string {
	if c.ID != nil {
		return c.ID(v)
	}
	return v.Identity()
}

// Resource is the persistence client of one entity family.
type Resource[T collection.Member] struct {
	client   *Client
	endpoint Endpoint
	codec    Codec[T]
}

func NewResource[T collection.Member](c *Client, e Endpoint, codec Codec[T]) *Resource[T] {
	return &Resource[T]{client: c, endpoint: e, codec: codec}
}

func (r *Resource[T]) Endpoint() Endpoint { return r.endpoint }

// List reads the whole collection. Entities that fail to decode are reported
// in a *wire.BatchError next to the collection of those that did.
func (r *Resource[T]) List(ctx context.Context) (*collection.Collection[T], error) {
	if r.endpoint.Embedded == "" {
		return nil, fmt.Errorf("%s: %w", r.endpoint.Family, ErrNotListable)
	}
	resp, err := r.client.do(ctx, request{
		family: r.endpoint.Family, method: http.MethodGet,
		path: r.endpoint.Path, version: r.endpoint.Version,
	})
	if err != nil {
		return nil, err
	}
	items, err := wire.Embedded(resp.body, r.endpoint.Embedded)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.endpoint.Family, err)
	}
	out := r.codec.Collection()
	if err := out.Decode(items, r.codec.Decode); err != nil {
		r.client.logger().Warn("partial list", zap.String("family", r.endpoint.Family), zap.Error(err))
		return out, err
	}
	return out, nil
}

// Get reads one entity and records its ETag.
func (r *Resource[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	resp, err := r.client.do(ctx, request{
		family: r.endpoint.Family, method: http.MethodGet,
		path: r.endpoint.Item(id), version: r.endpoint.Version,
	})
	if err != nil {
		return zero, err
	}
	v, err := r.codec.Decode(resp.body)
	if err != nil {
		return zero, fmt.Errorf("decode %s %q: %w", r.endpoint.Family, id, err)
	}
	if err := r.record(ctx, r.codec.id(v), resp.etag); err != nil {
		return zero, err
	}
	return v, nil
}

// Create writes a new entity without a precondition and records the ETag of
// the stored entity, whose server-assigned fields are honoured.
func (r *Resource[T]) Create(ctx context.Context, v T) (T, error) {
	resp, err := r.client.do(ctx, request{
		family: r.endpoint.Family, method: http.MethodPost,
		path: r.endpoint.Path, version: r.endpoint.Version, body: v,
	})
	if err != nil {
		return r.rejected(err)
	}
	return r.stored(ctx, http.MethodPost, r.endpoint.Path, resp)
}

// Update writes v with the recorded ETag as precondition. v itself is never
// modified; the stored entity is returned.
func (r *Resource[T]) Update(ctx context.Context, v T) (T, error) {
	var zero T
	id := r.codec.id(v)
	etag, ok, err := r.client.tokens().Get(ctx, r.endpoint.Family, id)
	if err != nil {
		return zero, fmt.Errorf("read etag for %s %q: %w", r.endpoint.Family, id, err)
	}
	if !ok || etag == "" {
		return zero, fmt.Errorf("%s %q: %w", r.endpoint.Family, id, ErrMissingETag)
	}
	path := r.endpoint.Item(id)
	resp, err := r.client.do(ctx, request{
		family: r.endpoint.Family, method: http.MethodPut,
		path: path, version: r.endpoint.Version, body: v, ifMatch: etag,
	})
	if err != nil {
		if apiErr, ok := AsAPIError(err); ok && apiErr.StatusCode == http.StatusPreconditionFailed {
			conflictsTotal.WithLabelValues(r.endpoint.Family).Inc()
			return zero, &ConflictError{Family: r.endpoint.Family, ID: id, Message: apiErr.Message}
		}
		return r.rejected(err)
	}
	return r.stored(ctx, http.MethodPut, path, resp)
}

// Remove deletes ids, in one bulk request when the endpoint supports it.
func (r *Resource[T]) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if r.endpoint.BulkKey != "" {
		body := map[string][]string{r.endpoint.BulkKey: ids}
		resp, err := r.client.do(ctx, request{
			family: r.endpoint.Family, method: http.MethodDelete,
			path: r.endpoint.Path, version: r.endpoint.Version, body: body,
		})
		if err != nil {
			return err
		}
		for _, id := range ids {
			r.forget(ctx, id)
			r.client.observe(ctx, WriteEvent{Family: r.endpoint.Family, ID: id, Method: http.MethodDelete, Path: r.endpoint.Path, Status: resp.status})
		}
		return nil
	}
	for _, id := range ids {
		path := r.endpoint.Item(id)
		resp, err := r.client.do(ctx, request{
			family: r.endpoint.Family, method: http.MethodDelete,
			path: path, version: r.endpoint.Version,
		})
		if err != nil {
			return fmt.Errorf("delete %s %q: %w", r.endpoint.Family, id, err)
		}
		r.forget(ctx, id)
		r.client.observe(ctx, WriteEvent{Family: r.endpoint.Family, ID: id, Method: http.MethodDelete, Path: path, Status: resp.status})
	}
	return nil
}

// Patch sends a bulk document relative to the endpoint's version.
func (r *Resource[T]) Patch(ctx context.Context, path string, doc any) (json.RawMessage, error) {
	return r.client.Patch(ctx, r.endpoint.Family, path, r.endpoint.Version, doc)
}

// ETag returns the recorded ETag of id.
func (r *Resource[T]) ETag(ctx context.Context, id string) (string, bool, error) {
	return r.client.tokens().Get(ctx, r.endpoint.Family, id)
}

func (r *Resource[T]) stored(ctx context.Context, method, path string, resp *response) (T, error) {
	var zero T
	v, err := r.codec.Decode(resp.body)
	if err != nil {
		return zero, fmt.Errorf("decode stored %s: %w", r.endpoint.Family, err)
	}
	id := r.codec.id(v)
	if err := r.record(ctx, id, resp.etag); err != nil {
		return zero, err
	}
	r.client.observe(ctx, WriteEvent{
		Family: r.endpoint.Family, ID: id, Method: method, Path: path,
		Status: resp.status, ETag: resp.etag,
	})
	return v, nil
}

// rejected returns the entity carried by a 422 body, with its server errors
// attached, next to the error itself.
func (r *Resource[T]) rejected(err error) (T, error) {
	var zero T
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.StatusCode != http.StatusUnprocessableEntity || wire.IsNull(apiErr.Data) {
		return zero, err
	}
	v, decodeErr := r.codec.Decode(apiErr.Data)
	if decodeErr != nil {
		return zero, err
	}
	return v, err
}

func (r *Resource[T]) record(ctx context.Context, id, etag string) error {
	if etag == "" || id == "" {
		return nil
	}
	if err := r.client.tokens().Put(ctx, r.endpoint.Family, id, etag); err != nil {
		return fmt.Errorf("record etag for %s %q: %w", r.endpoint.Family, id, err)
	}
	return nil
}

func (r *Resource[T]) forget(ctx context.Context, id string) {
	if err := r.client.tokens().Delete(ctx, r.endpoint.Family, id); err != nil {
		r.client.logger().Warn("drop etag", zap.String("family", r.endpoint.Family), zap.String("id", id), zap.Error(err))
	}
}
