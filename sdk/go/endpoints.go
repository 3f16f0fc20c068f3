package adminsdk

import (
	"net/url"
	"strings"
)

// Endpoint describes where and at which API version a family lives.
type Endpoint struct {
	Family string
	// Path is the collection path, also used for create and bulk delete.
	Path    string
	Version int
	// Embedded is the _embedded member listing the collection. Empty for
	// item-only endpoints.
	Embedded string
	// BulkKey names the id list in a bulk DELETE body. Empty means one DELETE
	// per item.
	BulkKey string
	// ItemPath is the item path template with an {id} placeholder. It
	// defaults to Path + "/{id}".
	ItemPath string
}

// Item returns the path of one entity.
func (e Endpoint) Item(id string) string {
	tmpl := e.ItemPath
	if tmpl == "" {
		tmpl = strings.TrimRight(e.Path, "/") + "/{id}"
	}
	return strings.ReplaceAll(tmpl, "{id}", url.PathEscape(id))
}

// The admin API endpoints, with their pinned versions.
var (
	Users = Endpoint{
		Family: "user", Path: "/api/users", Version: 3,
		Embedded: "users", BulkKey: "users",
	}
	Roles = Endpoint{
		Family: "role", Path: "/api/admin/security/roles", Version: 3,
		Embedded: "roles", BulkKey: "roles",
	}
	SCMs = Endpoint{
		Family: "scm", Path: "/api/admin/scms", Version: 4,
		Embedded: "scms",
	}
	ElasticProfiles = Endpoint{
		Family: "elastic profile", Path: "/api/elastic/profiles", Version: 2,
		Embedded: "profiles",
	}
	PackageRepositories = Endpoint{
		Family: "package repository", Path: "/api/admin/repositories", Version: 1,
		Embedded: "package_repositories",
	}
	Pipelines = Endpoint{
		Family: "pipeline", Path: "/api/admin/pipelines", Version: 11,
		ItemPath: "/api/admin/pipelines/{id}",
	}
	PluginInfos = Endpoint{
		Family: "plugin info", Path: "/api/admin/plugin_info", Version: 4,
		Embedded: "plugin_info",
	}
	MaterialTest = Endpoint{
		Family: "material", Path: "/api/admin/internal/material_test", Version: 1,
	}
)

// UserStatePath is the bulk enable/disable endpoint.
const UserStatePath = "/api/users/operations/state"
