package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"cfgadmin/internal/domain"
	"cfgadmin/internal/validate"
	"cfgadmin/internal/wire"
)

// family is one resource collection served by the API.
type family struct {
	name     string
	slug     string
	path     string
	version  int
	embedded string
	// key is the document member that addresses an item.
	key     string
	bulkKey string
	// assign names a member filled with a fresh uuid when a create omits it.
	assign   string
	itemOnly bool
	readOnly bool
	check    func(json.RawMessage) (map[string][]string, error)
}

func (f family) itemPath() string { return strings.TrimRight(f.path, "/") + "/{id}" }

func defaultFamilies() []family {
	return []family{
		{name: "user", slug: "users", path: "/api/users", version: 3, embedded: "users", key: "login_name", bulkKey: "users", check: checker(domain.DecodeUser)},
		{name: "role", slug: "roles", path: "/api/admin/security/roles", version: 3, embedded: "roles", key: "name", bulkKey: "roles", check: checker(domain.DecodeRole)},
		{name: "scm", slug: "scms", path: "/api/admin/scms", version: 4, embedded: "scms", key: "name", assign: "id", check: checker(domain.DecodeSCM)},
		{name: "elastic profile", slug: "elastic-profiles", path: "/api/elastic/profiles", version: 2, embedded: "profiles", key: "id", check: checker(domain.DecodeElasticProfile)},
		{name: "package repository", slug: "package-repositories", path: "/api/admin/repositories", version: 1, embedded: "package_repositories", key: "repo_id", assign: "repo_id", check: checker(domain.DecodePackageRepository)},
		{name: "pipeline", slug: "pipelines", path: "/api/admin/pipelines", version: 11, key: "name", itemOnly: true, check: checker(domain.DecodePipeline)},
		{name: "plugin info", slug: "plugin-info", path: "/api/admin/plugin_info", version: 4, embedded: "plugin_info", key: "id", readOnly: true},
	}
}

// checker validates a document with the entity's own rules and returns the
// failures keyed by wire name.
func checker[T interface{ Validate() *validate.Errors }](decode func(json.RawMessage) (T, error)) func(json.RawMessage) (map[string][]string, error) {
	return func(raw json.RawMessage) (map[string][]string, error) {
		v, err := decode(raw)
		if err != nil {
			return nil, err
		}
		errs := v.Validate().Map()
		if len(errs) == 0 {
			return nil, nil
		}
		out := make(map[string][]string, len(errs))
		for k, msgs := range errs {
			out[wire.SnakeCase(k)] = msgs
		}
		return out, nil
	}
}

type itemInput struct {
	ID string `path:"id"`
}

type writeInput struct {
	ID      string `path:"id"`
	IfMatch string `header:"If-Match"`
}

type docOutput struct {
	ETag string         `header:"ETag"`
	Body map[string]any `json:"body"`
}

type listOutput struct {
	Body map[string]any `json:"body"`
}

type messageOutput struct {
	Body map[string]any `json:"body"`
}

func message(format string, args ...any) *messageOutput {
	return &messageOutput{Body: map[string]any{"message": fmt.Sprintf(format, args...)}}
}

func registerFamily(api huma.API, store *Store, f family) {
	errs := []int{http.StatusBadRequest, http.StatusNotFound, http.StatusPreconditionFailed,
		http.StatusPreconditionRequired, http.StatusUnprocessableEntity}

	if !f.itemOnly {
		huma.Register(api, huma.Operation{
			OperationID: "list-" + f.slug,
			Method:      http.MethodGet,
			Path:        f.path,
			Summary:     "List " + f.name + " collection",
		}, func(ctx context.Context, _ *struct{}) (*listOutput, error) {
			docs := store.List(f.name)
			items := make([]any, 0, len(docs))
			for _, d := range docs {
				items = append(items, rawToMap(d))
			}
			return &listOutput{Body: map[string]any{"_embedded": map[string]any{f.embedded: items}}}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-" + f.slug,
		Method:      http.MethodGet,
		Path:        f.itemPath(),
		Summary:     "Get " + f.name,
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, in *itemInput) (*docOutput, error) {
		doc, etag, err := store.Get(f.name, in.ID)
		if err != nil {
			return nil, notFound(f, in.ID, err)
		}
		return &docOutput{ETag: etag, Body: rawToMap(doc)}, nil
	})

	if f.readOnly {
		return
	}

	huma.Register(api, huma.Operation{
		OperationID: "create-" + f.slug,
		Method:      http.MethodPost,
		Path:        f.path,
		Summary:     "Create " + f.name,
		Errors:      errs,
	}, func(ctx context.Context, _ *struct{}) (*docOutput, error) {
		doc, herr := bodyMap(ctx)
		if herr != nil {
			return nil, herr
		}
		if f.assign != "" && stringField(doc, f.assign) == "" {
			doc[f.assign] = uuid.NewString()
		}
		id := stringField(doc, f.key)
		if herr := f.validateDoc(doc, id); herr != nil {
			return nil, herr
		}
		raw, etag, err := store.Create(f.name, id, doc)
		if errors.Is(err, ErrExists) {
			doc["errors"] = map[string][]string{f.key: {fmt.Sprintf("%s '%s' already exists", humanKey(f.key), id)}}
			return nil, newAPIError(http.StatusUnprocessableEntity,
				fmt.Sprintf("Failed to add %s '%s'. Another %s with the same %s already exists.", f.name, id, f.name, humanKey(f.key)), doc)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &docOutput{ETag: etag, Body: rawToMap(raw)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-" + f.slug,
		Method:      http.MethodPut,
		Path:        f.itemPath(),
		Summary:     "Update " + f.name,
		Errors:      errs,
	}, func(ctx context.Context, in *writeInput) (*docOutput, error) {
		cur, _, err := store.Get(f.name, in.ID)
		if err != nil {
			return nil, notFound(f, in.ID, err)
		}
		if strings.TrimSpace(in.IfMatch) == "" {
			return nil, newAPIError(http.StatusPreconditionRequired,
				fmt.Sprintf("Updating %s '%s' requires an If-Match header with the current ETag.", f.name, in.ID), nil)
		}
		doc, herr := bodyMap(ctx)
		if herr != nil {
			return nil, herr
		}
		id := stringField(doc, f.key)
		if id == "" {
			doc[f.key] = in.ID
			id = in.ID
		}
		if id != in.ID {
			return nil, newAPIError(http.StatusUnprocessableEntity,
				fmt.Sprintf("Renaming the %s '%s' to '%s' is not supported by this API.", f.name, in.ID, id), nil)
		}
		if f.assign != "" && f.assign != f.key && stringField(doc, f.assign) == "" {
			doc[f.assign] = rawToMap(cur)[f.assign]
		}
		if herr := f.validateDoc(doc, id); herr != nil {
			return nil, herr
		}
		raw, etag, err := store.Update(f.name, id, in.IfMatch, doc)
		if errors.Is(err, ErrStale) {
			return nil, newAPIError(http.StatusPreconditionFailed,
				fmt.Sprintf("Someone has modified the configuration for %s '%s'. Please update your copy of the config with the changes and try again.", f.name, id), nil)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &docOutput{ETag: etag, Body: rawToMap(raw)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-" + f.slug,
		Method:      http.MethodDelete,
		Path:        f.itemPath(),
		Summary:     "Delete " + f.name,
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, in *itemInput) (*messageOutput, error) {
		if err := store.Delete(f.name, in.ID); err != nil {
			return nil, notFound(f, in.ID, err)
		}
		return message("The %s '%s' was deleted successfully.", f.name, in.ID), nil
	})

	if f.bulkKey == "" {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "bulk-delete-" + f.slug,
		Method:      http.MethodDelete,
		Path:        f.path,
		Summary:     "Delete several " + f.name + " entities",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, _ *struct{}) (*messageOutput, error) {
		var body map[string][]string
		if herr := decodeBody(ctx, &body); herr != nil {
			return nil, herr
		}
		ids := body[f.bulkKey]
		if len(ids) == 0 {
			return nil, newAPIError(http.StatusBadRequest, fmt.Sprintf("Request body must contain a non-empty '%s' list.", f.bulkKey), nil)
		}
		if err := store.Delete(f.name, ids...); err != nil {
			return nil, newAPIError(http.StatusUnprocessableEntity, fmt.Sprintf("Deletion failed: %v", err), nil)
		}
		return message("%s '%s' were deleted successfully.", humanKey(f.bulkKey), strings.Join(ids, ", ")), nil
	})
}

// validateDoc rejects a document without identifier or failing its entity
// rules with a 422 that carries the document and its errors.
func (f family) validateDoc(doc map[string]any, id string) huma.StatusError {
	if id == "" {
		doc["errors"] = map[string][]string{f.key: {humanKey(f.key) + " must be present"}}
		return newAPIError(http.StatusUnprocessableEntity,
			fmt.Sprintf("Validations failed for %s. Please correct and resubmit.", f.name), doc)
	}
	if f.check == nil {
		return nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return handleError(err)
	}
	fieldErrs, err := f.check(raw)
	if err != nil {
		return newAPIError(http.StatusUnprocessableEntity, fmt.Sprintf("Failed to parse %s '%s': %v", f.name, id, err), nil)
	}
	if len(fieldErrs) > 0 {
		doc["errors"] = fieldErrs
		return newAPIError(http.StatusUnprocessableEntity,
			fmt.Sprintf("Validations failed for %s '%s'. Please correct and resubmit.", f.name, id), doc)
	}
	return nil
}

func notFound(f family, id string, err error) huma.StatusError {
	if errors.Is(err, ErrNotFound) {
		return newAPIError(http.StatusNotFound, fmt.Sprintf("Either the resource you requested was not found, or you are not authorized to perform this action. No %s '%s'.", f.name, id), nil)
	}
	return handleError(err)
}

func humanKey(key string) string { return wire.Humanize(wire.CamelCase(key)) }

// Seed loads documents into the table of the named family.
func Seed(store *Store, name string, docs ...json.RawMessage) error {
	for _, f := range defaultFamilies() {
		if f.name == name {
			return store.Seed(f.name, f.key, docs...)
		}
	}
	return fmt.Errorf("unknown family %q", name)
}
