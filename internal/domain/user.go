package domain

import (
	"encoding/json"
	"regexp"
	"slices"
	"strings"

	"cfgadmin/internal/collection"
	"cfgadmin/internal/registry"
	"cfgadmin/internal/validate"
	"cfgadmin/internal/wire"
)

// RoleRef is a role as listed on a user.
type RoleRef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// User is a server account.
type User struct {
	LoginName      string
	DisplayName    string
	Email          string
	EmailMe        bool
	CheckinAliases wire.StringList
	Enabled        bool
	IsAdmin        bool
	Roles          []RoleRef

	errs validate.Errors
}

type Users = collection.Collection[*User]

var UserRegistry = registry.New[*User]("user")

func init() {
	mustSingle(UserRegistry, KindUser, DecodeUser)
}

func NewUsers(items ...*User) *Users {
	return collection.New("user", "loginName", UserRegistry, items...)
}

var emailFormat = regexp.MustCompile(`^[^@\s]+@[^@\s]+$`)

var userRules = validate.Rules[*User]{
	validate.Presence("loginName", func(u *User) string { return u.LoginName }),
	validate.When(func(u *User) bool { return u.Email != "" },
		validate.Format("email", func(u *User) string { return u.Email }, emailFormat)),
}

func (u *User) Identity() string { return u.LoginName }
func (u *User) Validate() *validate.Errors {
	u.errs = userRules.Apply(u)
	return &u.errs
}
func (u *User) Errors() *validate.Errors { return &u.errs }
func (u *User) IsValid() bool            { return u.Validate().IsEmpty() }

// HasRole reports whether u holds a role called name.
func (u *User) HasRole(name string) bool {
	return slices.ContainsFunc(u.Roles, func(r RoleRef) bool { return r.Name == name })
}

// RoleNames lists the names of the roles of type kind, or of every role when
// kind is empty.
func (u *User) RoleNames(kind string) []string {
	var out []string
	for _, r := range u.Roles {
		if kind == "" || r.Type == kind {
			out = append(out, r.Name)
		}
	}
	return out
}

// GrantRole adds a GoCD role unless u already holds it.
func (u *User) GrantRole(name string) {
	if !u.HasRole(name) {
		u.Roles = append(u.Roles, RoleRef{Name: name, Type: RoleGoCD})
	}
}

// RevokeRole removes every role called name.
func (u *User) RevokeRole(name string) {
	u.Roles = slices.DeleteFunc(u.Roles, func(r RoleRef) bool { return r.Name == name })
	if len(u.Roles) == 0 {
		u.Roles = nil
	}
}

type userDoc struct {
	LoginName      string          `json:"login_name"`
	DisplayName    string          `json:"display_name,omitempty"`
	Email          string          `json:"email,omitempty"`
	EmailMe        bool            `json:"email_me"`
	CheckinAliases wire.StringList `json:"checkin_aliases"`
	Enabled        bool            `json:"enabled"`
	IsAdmin        bool            `json:"is_admin"`
	Roles          []RoleRef       `json:"roles"`
}

func (u *User) MarshalJSON() ([]byte, error) {
	roles := u.Roles
	if roles == nil {
		roles = []RoleRef{}
	}
	return json.Marshal(userDoc{
		LoginName:      u.LoginName,
		DisplayName:    u.DisplayName,
		Email:          u.Email,
		EmailMe:        u.EmailMe,
		CheckinAliases: u.CheckinAliases,
		Enabled:        u.Enabled,
		IsAdmin:        u.IsAdmin,
		Roles:          roles,
	})
}

// DecodeUser reads a user document. Users are enabled unless the document
// says otherwise.
func DecodeUser(raw json.RawMessage) (*User, error) {
	doc := userDoc{Enabled: true}
	errs, err := decodeEntity(raw, &doc)
	if err != nil {
		return nil, err
	}
	u := &User{
		LoginName:      doc.LoginName,
		DisplayName:    doc.DisplayName,
		Email:          doc.Email,
		EmailMe:        doc.EmailMe,
		CheckinAliases: doc.CheckinAliases,
		Enabled:        doc.Enabled,
		IsAdmin:        doc.IsAdmin,
		errs:           errs,
	}
	if len(doc.Roles) > 0 {
		u.Roles = doc.Roles
	}
	return u, nil
}

// UserFilter selects users. Nil pointers and empty strings match everything.
type UserFilter struct {
	Admin   *bool
	Enabled *bool
	Role    string
	// Query matches login name, display name or email, case-insensitively.
	Query string
}

func (f UserFilter) Match(u *User) bool {
	if f.Admin != nil && u.IsAdmin != *f.Admin {
		return false
	}
	if f.Enabled != nil && u.Enabled != *f.Enabled {
		return false
	}
	if f.Role != "" && !u.HasRole(f.Role) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		return strings.Contains(strings.ToLower(u.LoginName), q) ||
			strings.Contains(strings.ToLower(u.DisplayName), q) ||
			strings.Contains(strings.ToLower(u.Email), q)
	}
	return true
}

// FilterUsers returns the users matching f in collection order.
func FilterUsers(users *Users, f UserFilter) []*User {
	return users.Filter(f.Match)
}

// UserStateUpdate is the bulk enable/disable document.
type UserStateUpdate struct {
	Users      []string `json:"users"`
	Operations struct {
		Enable bool `json:"enable"`
	} `json:"operations"`
}

func NewUserStateUpdate(enable bool, logins ...string) UserStateUpdate {
	u := UserStateUpdate{Users: append([]string{}, logins...)}
	u.Operations.Enable = enable
	return u
}
