package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"cfgadmin/internal/domain"
	"cfgadmin/internal/selection"
	"cfgadmin/internal/wire"
	adminsdk "cfgadmin/sdk/go"
)

// Engine runs the admin workflows over one client.
type Engine struct {
	Client       *adminsdk.Client
	Users        *adminsdk.Resource[*domain.User]
	Roles        *adminsdk.Resource[domain.Role]
	SCMs         *adminsdk.Resource[*domain.SCM]
	Profiles     *adminsdk.Resource[*domain.ElasticProfile]
	Repositories *adminsdk.Resource[*domain.PackageRepository]
	Pipelines    *adminsdk.Resource[*domain.Pipeline]
	Log          *zap.Logger

	families map[string]family
	versions func(family string, def int) int
}

type Options struct {
	// Versions overrides the pinned Accept version of a family.
	Versions func(family string, def int) int
	Logger   *zap.Logger
}

func New(c *adminsdk.Client, opts Options) *Engine {
	e := &Engine{Client: c, Log: opts.Logger, versions: opts.Versions}
	if e.Log == nil {
		e.Log = zap.NewNop()
	}
	e.Users = adminsdk.NewResource(c, e.pin(adminsdk.Users),
		adminsdk.Codec[*domain.User]{Decode: domain.DecodeUser, Collection: domain.NewUsers})
	e.Roles = adminsdk.NewResource(c, e.pin(adminsdk.Roles),
		adminsdk.Codec[domain.Role]{Decode: domain.DecodeRole, Collection: domain.NewRoles})
	e.SCMs = adminsdk.NewResource(c, e.pin(adminsdk.SCMs),
		adminsdk.Codec[*domain.SCM]{Decode: domain.DecodeSCM, Collection: domain.NewSCMs})
	e.Profiles = adminsdk.NewResource(c, e.pin(adminsdk.ElasticProfiles),
		adminsdk.Codec[*domain.ElasticProfile]{Decode: domain.DecodeElasticProfile, Collection: domain.NewElasticProfiles})
	e.Repositories = adminsdk.NewResource(c, e.pin(adminsdk.PackageRepositories),
		adminsdk.Codec[*domain.PackageRepository]{Decode: domain.DecodePackageRepository, Collection: domain.NewPackageRepositories})
	e.Pipelines = adminsdk.NewResource(c, e.pin(adminsdk.Pipelines),
		adminsdk.Codec[*domain.Pipeline]{Decode: domain.DecodePipeline, Collection: domain.NewPipelines})

	e.families = map[string]family{}
	for _, f := range []family{
		bind(e.Users, domain.DecodeUser),
		bind(e.Roles, domain.DecodeRole),
		bind(e.SCMs, domain.DecodeSCM),
		bind(e.Profiles, domain.DecodeElasticProfile),
		bind(e.Repositories, domain.DecodePackageRepository),
		bind(e.Pipelines, domain.DecodePipeline),
	} {
		e.families[f.endpoint.Family] = f
	}
	return e
}

func (e *Engine) pin(ep adminsdk.Endpoint) adminsdk.Endpoint {
	if e.versions != nil {
		ep.Version = e.versions(ep.Family, ep.Version)
	}
	return ep
}

// FilterUsers lists the users matching f, in server order.
func (e *Engine) FilterUsers(ctx context.Context, f domain.UserFilter) ([]*domain.User, error) {
	users, err := e.Users.List(ctx)
	if users == nil {
		return nil, err
	}
	if err != nil {
		e.Log.Warn("some users could not be decoded", zap.Error(err))
	}
	return domain.FilterUsers(users, f), nil
}

// RoleSelection builds the role selection of the named users. Users and roles
// that cannot be decoded are left out; a named user among them is reported as
// not found.
func (e *Engine) RoleSelection(ctx context.Context, logins []string) (*selection.Selection, error) {
	if len(logins) == 0 {
		return nil, fmt.Errorf("select at least one user")
	}
	users, usersErr := e.Users.List(ctx)
	if users == nil {
		return nil, fmt.Errorf("list users: %w", usersErr)
	}
	if usersErr != nil {
		e.Log.Warn("some users could not be decoded", zap.Error(usersErr))
	}
	roles, err := e.Roles.List(ctx)
	if roles == nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	if err != nil {
		e.Log.Warn("some roles could not be decoded", zap.Error(err))
	}
	selected := make([]*domain.User, 0, len(logins))
	var missing []string
	for _, login := range logins {
		u, ok := users.Find(login)
		if !ok {
			missing = append(missing, login)
			continue
		}
		selected = append(selected, u)
	}
	if len(missing) > 0 {
		if usersErr != nil {
			return nil, fmt.Errorf("users %v are unknown or could not be decoded: %w", missing, usersErr)
		}
		return nil, fmt.Errorf("unknown users %v", missing)
	}
	return domain.RoleSelection(roles, selected), nil
}

// ApplyRoles sends the net changes of sel. Nothing is sent when sel has no
// net change; the returned update is then empty.
func (e *Engine) ApplyRoles(ctx context.Context, sel *selection.Selection) (domain.RoleUpdate, error) {
	update := domain.NewRoleUpdate(sel.Diff())
	if update.IsEmpty() {
		e.Log.Debug("role selection unchanged")
		return update, nil
	}
	if _, err := e.Roles.Patch(ctx, e.Roles.Endpoint().Path, update); err != nil {
		return update, fmt.Errorf("update roles: %w", err)
	}
	return update, nil
}

// SetUsersEnabled enables or disables users and returns the server message.
func (e *Engine) SetUsersEnabled(ctx context.Context, enable bool, logins ...string) (string, error) {
	if len(logins) == 0 {
		return "", fmt.Errorf("select at least one user")
	}
	body, err := e.Users.Patch(ctx, adminsdk.UserStatePath, domain.NewUserStateUpdate(enable, logins...))
	if err != nil {
		return "", err
	}
	var doc struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decode user state response: %w", err)
	}
	return doc.Message, nil
}

// DeleteUsers removes users in one request.
func (e *Engine) DeleteUsers(ctx context.Context, logins ...string) error {
	return e.Users.Remove(ctx, logins...)
}

// LoadPlugins reads the plugin infos from the server and registers the
// variants of the active ones. It returns the registered plugin ids.
func (e *Engine) LoadPlugins(ctx context.Context) ([]string, error) {
	ep := e.pin(adminsdk.PluginInfos)
	body, _, err := e.Client.GetRaw(ctx, ep.Family, ep.Path, ep.Version)
	if err != nil {
		return nil, err
	}
	items, err := wire.Embedded(body, ep.Embedded)
	if err != nil {
		return nil, err
	}
	infos, err := wire.DecodeEach(ep.Family, items, domain.DecodePluginInfo)
	if err != nil {
		e.Log.Warn("some plugin infos could not be decoded", zap.Error(err))
	}
	return domain.RegisterPlugins(infos)
}
