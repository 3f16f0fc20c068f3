package domain

import (
	"encoding/json"
	"fmt"
	"slices"

	"cfgadmin/internal/collection"
	"cfgadmin/internal/registry"
	"cfgadmin/internal/selection"
	"cfgadmin/internal/validate"
	"cfgadmin/internal/wire"
)

// Role types.
const (
	RoleGoCD   = "gocd"
	RolePlugin = "plugin"
)

// Role is a named group of users, either managed by the server (gocd) or
// resolved by an authorization plugin.
type Role interface {
	json.Marshaler
	Identity() string
	Validate() *validate.Errors
	Errors() *validate.Errors
	IsValid() bool
	Type() string
	Base() *RoleBase
}

// RoleBase holds what every role variant shares.
type RoleBase struct {
	Name string

	errs validate.Errors
}

func (b *RoleBase) Base() *RoleBase          { return b }
func (b *RoleBase) Identity() string         { return b.Name }
func (b *RoleBase) Errors() *validate.Errors { return &b.errs }

type Roles = collection.Collection[Role]

var RoleRegistry = registry.New[Role]("role")

func init() {
	RoleRegistry.MustRegister(registry.Variant[Role]{Kind: RoleGoCD, DisplayName: "GoCD", New: newGoCDRole})
	RoleRegistry.MustRegister(registry.Variant[Role]{Kind: RolePlugin, DisplayName: "Plugin", New: newPluginRole})
}

func NewRoles(items ...Role) *Roles {
	return collection.New[Role]("role", "name", RoleRegistry, items...)
}

func roleNameRules[T Role]() validate.Rules[T] {
	return validate.Rules[T]{
		validate.Presence("name", func(r T) string { return r.Base().Name }),
		validate.ID("name", func(r T) string { return r.Base().Name }),
	}
}

// GoCDRole lists its members explicitly.
type GoCDRole struct {
	RoleBase
	Users wire.StringList
}

var gocdRoleRules = roleNameRules[*GoCDRole]()

func (r *GoCDRole) Type() string { return RoleGoCD }
func (r *GoCDRole) Validate() *validate.Errors {
	r.errs = gocdRoleRules.Apply(r)
	return &r.errs
}
func (r *GoCDRole) IsValid() bool { return r.Validate().IsEmpty() }

func (r *GoCDRole) HasUser(login string) bool { return slices.Contains(r.Users, login) }

func (r *GoCDRole) AddUser(login string) {
	if !r.HasUser(login) {
		r.Users = append(r.Users, login)
	}
}

func (r *GoCDRole) RemoveUser(login string) {
	r.Users = slices.DeleteFunc(r.Users, func(u string) bool { return u == login })
	if len(r.Users) == 0 {
		r.Users = nil
	}
}

type gocdRoleAttrs struct {
	Name  string          `json:"name,omitempty"`
	Users wire.StringList `json:"users"`
}

func (r *GoCDRole) MarshalJSON() ([]byte, error) {
	return wrapRole(r, gocdRoleAttrs{Users: r.Users})
}

func newGoCDRole(raw json.RawMessage) (Role, error) {
	var a gocdRoleAttrs
	if err := unmarshalAttrs(raw, &a); err != nil {
		return nil, err
	}
	return &GoCDRole{RoleBase: RoleBase{Name: a.Name}, Users: a.Users}, nil
}

// PluginRole is resolved by the authorization configuration it names.
type PluginRole struct {
	RoleBase
	AuthConfigID string
	Properties   *ConfigProperties
}

var pluginRoleRules = append(roleNameRules[*PluginRole](),
	validate.Presence("authConfigId", func(r *PluginRole) string { return r.AuthConfigID },
		validate.Label("Auth config id")),
)

func (r *PluginRole) Type() string { return RolePlugin }
func (r *PluginRole) Validate() *validate.Errors {
	r.errs = pluginRoleRules.Apply(r)
	return &r.errs
}
func (r *PluginRole) IsValid() bool {
	return allValid(r.Validate().IsEmpty(), r.Properties == nil || r.Properties.IsValid())
}

type pluginRoleAttrs struct {
	Name         string          `json:"name,omitempty"`
	AuthConfigID string          `json:"auth_config_id"`
	Properties   json.RawMessage `json:"properties"`
}

func (r *PluginRole) MarshalJSON() ([]byte, error) {
	props, err := marshalOwned(r.Properties)
	if err != nil {
		return nil, err
	}
	return wrapRole(r, pluginRoleAttrs{AuthConfigID: r.AuthConfigID, Properties: props})
}

func newPluginRole(raw json.RawMessage) (Role, error) {
	var a pluginRoleAttrs
	if err := unmarshalAttrs(raw, &a); err != nil {
		return nil, err
	}
	r := &PluginRole{RoleBase: RoleBase{Name: a.Name}, AuthConfigID: a.AuthConfigID, Properties: NewConfigProperties()}
	if err := decodeList(r.Properties, a.Properties, DecodeConfigProperty); err != nil {
		return nil, err
	}
	return r, nil
}

// roleEnvelope is the polymorphic envelope with the name kept at the top
// level.
type roleEnvelope struct {
	Name       string              `json:"name"`
	Type       string              `json:"type"`
	Attributes json.RawMessage     `json:"attributes"`
	Errors     map[string][]string `json:"errors,omitempty"`
}

func wrapRole(r Role, attrs any) ([]byte, error) {
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode role attributes: %w", err)
	}
	return json.Marshal(roleEnvelope{Name: r.Base().Name, Type: r.Type(), Attributes: raw})
}

// DecodeRole reads a {name, type, attributes, errors} role document.
func DecodeRole(raw json.RawMessage) (Role, error) {
	var env roleEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env.Type == "" {
		return nil, wire.ErrMissingType
	}
	r, err := RoleRegistry.Create(env.Type, env.Attributes)
	if err != nil {
		return nil, err
	}
	r.Base().Name = env.Name
	r.Base().errs = validate.FromMap(wire.CamelErrors(env.Errors))
	return r, nil
}

// RoleSelection builds the tri-state selection of the gocd roles over the
// selected users.
func RoleSelection(roles *Roles, users []*User) *selection.Selection {
	var groups []string
	for _, r := range roles.All() {
		if r.Type() == RoleGoCD {
			groups = append(groups, r.Identity())
		}
	}
	members := make([]selection.Member, 0, len(users))
	for _, u := range users {
		var held []string
		for _, name := range u.RoleNames("") {
			if slices.Contains(groups, name) {
				held = append(held, name)
			}
		}
		members = append(members, selection.Member{ID: u.LoginName, Groups: held})
	}
	return selection.New(groups, members)
}

// RoleOperation adds and removes users from one role.
type RoleOperation struct {
	Role  string `json:"role"`
	Users struct {
		Add    []string `json:"add"`
		Remove []string `json:"remove"`
	} `json:"users"`
}

// RoleUpdate is the bulk role assignment document.
type RoleUpdate struct {
	Operations []RoleOperation `json:"operations"`
}

// NewRoleUpdate converts a selection diff.
func NewRoleUpdate(ops []selection.Operation) RoleUpdate {
	u := RoleUpdate{Operations: make([]RoleOperation, 0, len(ops))}
	for _, op := range ops {
		ro := RoleOperation{Role: op.Group}
		ro.Users.Add = append([]string{}, op.Add...)
		ro.Users.Remove = append([]string{}, op.Remove...)
		u.Operations = append(u.Operations, ro)
	}
	return u
}

func (u RoleUpdate) IsEmpty() bool { return len(u.Operations) == 0 }

// Apply performs the update on local roles and users. Unknown roles and
// users are reported and left alone.
func (u RoleUpdate) Apply(roles *Roles, users *Users) error {
	var missing []string
	for _, op := range u.Operations {
		r, ok := roles.Find(op.Role)
		if !ok {
			missing = append(missing, "role "+op.Role)
			continue
		}
		gr, ok := r.(*GoCDRole)
		if !ok {
			missing = append(missing, "gocd role "+op.Role)
			continue
		}
		for _, login := range op.Users.Add {
			gr.AddUser(login)
			if usr, ok := users.Find(login); ok {
				usr.GrantRole(op.Role)
			}
		}
		for _, login := range op.Users.Remove {
			gr.RemoveUser(login)
			if usr, ok := users.Find(login); ok {
				usr.RevokeRole(op.Role)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("role update: unknown %v", missing)
	}
	return nil
}
