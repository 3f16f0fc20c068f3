// Package domain registers the concrete configuration entities of the admin
// API into the generic framework: their fields, wire shapes, validation rules
// and collections.
package domain

import (
	"encoding/json"
	"fmt"

	"cfgadmin/internal/collection"
	"cfgadmin/internal/registry"
	"cfgadmin/internal/validate"
	"cfgadmin/internal/wire"
)

// Kinds of the single-variant families, usable with Collection.Create.
const (
	KindEnvironmentVariable = "environment_variable"
	KindTab                 = "tab"
	KindProperty            = "property"
	KindParameter           = "parameter"
	KindConfigProperty      = "configuration_property"
	KindJob                 = "job"
	KindStage               = "stage"
	KindPackage             = "package"
	KindUser                = "user"
	KindPipeline            = "pipeline"
	KindPackageRepository   = "package_repository"
)

func unmarshalAttrs(raw json.RawMessage, v any) error {
	if wire.IsNull(raw) {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// decodeEntity unmarshals a non-polymorphic document and returns the server
// errors it carries.
func decodeEntity(raw json.RawMessage, v any) (validate.Errors, error) {
	if wire.IsNull(raw) {
		return validate.Errors{}, fmt.Errorf("empty document")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return validate.Errors{}, err
	}
	return validate.FromMap(wire.ServerErrors(raw)), nil
}

// decodeList fills c from a JSON array. A member that fails to decode fails
// the owning entity.
func decodeList[T collection.Member](c *collection.Collection[T], raw json.RawMessage, decode func(json.RawMessage) (T, error)) error {
	if wire.IsNull(raw) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("decode %s list: %w", c.Family(), err)
	}
	return c.Decode(items, decode)
}

func mustSingle[T any](r *registry.Registry[T], kind string, decode registry.Constructor[T]) {
	r.MustRegister(registry.Variant[T]{Kind: kind, New: decode})
}

// allValid evaluates every check so that every error set is filled.
func allValid(checks ...bool) bool {
	for _, ok := range checks {
		if !ok {
			return false
		}
	}
	return true
}
