package domain

import (
	"encoding/json"

	"cfgadmin/internal/collection"
	"cfgadmin/internal/registry"
	"cfgadmin/internal/secure"
	"cfgadmin/internal/validate"
	"cfgadmin/internal/wire"
)

// Material discriminators.
const (
	MaterialGit        = "git"
	MaterialSvn        = "svn"
	MaterialHg         = "hg"
	MaterialP4         = "p4"
	MaterialTfs        = "tfs"
	MaterialDependency = "dependency"
	MaterialPackage    = "package"
	MaterialPlugin     = "plugin"
)

// Material is one variant of the material family. Materials are unique by
// name within a pipeline.
type Material interface {
	json.Marshaler
	Identity() string
	Validate() *validate.Errors
	Errors() *validate.Errors
	IsValid() bool
	Type() string
	Base() *MaterialBase
}

// MaterialBase holds the name every material variant carries.
type MaterialBase struct {
	Name string

	errs validate.Errors
}

func (b *MaterialBase) Base() *MaterialBase      { return b }
func (b *MaterialBase) Identity() string         { return b.Name }
func (b *MaterialBase) Errors() *validate.Errors { return &b.errs }

// Filter lists the paths whose changes do not trigger a pipeline.
type Filter struct {
	Ignore wire.StringList `json:"ignore"`
}

type Materials = collection.Collection[Material]

var MaterialRegistry = registry.New[Material]("material")

func init() {
	MaterialRegistry.MustRegister(registry.Variant[Material]{Kind: MaterialGit, DisplayName: "Git", New: newGitMaterial})
	MaterialRegistry.MustRegister(registry.Variant[Material]{Kind: MaterialSvn, DisplayName: "Subversion", New: newSvnMaterial})
	MaterialRegistry.MustRegister(registry.Variant[Material]{Kind: MaterialHg, DisplayName: "Mercurial", New: newHgMaterial})
	MaterialRegistry.MustRegister(registry.Variant[Material]{Kind: MaterialP4, DisplayName: "Perforce", New: newP4Material})
	MaterialRegistry.MustRegister(registry.Variant[Material]{Kind: MaterialTfs, DisplayName: "Team Foundation Server", New: newTfsMaterial})
	MaterialRegistry.MustRegister(registry.Variant[Material]{Kind: MaterialDependency, DisplayName: "Pipeline Dependency", New: newDependencyMaterial})
	MaterialRegistry.MustRegister(registry.Variant[Material]{Kind: MaterialPackage, DisplayName: "Package", New: newPackageMaterial})
	MaterialRegistry.MustRegister(registry.Variant[Material]{Kind: MaterialPlugin, DisplayName: "Plugin SCM", New: newPluginMaterial})
}

func NewMaterials(items ...Material) *Materials {
	return collection.New[Material]("material", "name", MaterialRegistry, items...)
}

// DecodeMaterial reads a {type, attributes, errors} material document.
func DecodeMaterial(raw json.RawMessage) (Material, error) {
	env, err := wire.Unwrap(raw)
	if err != nil {
		return nil, err
	}
	m, err := MaterialRegistry.Create(env.Type, env.Attributes)
	if err != nil {
		return nil, err
	}
	m.Base().errs = validate.FromMap(env.Errors)
	return m, nil
}

func urlRule[T Material](get func(T) string) validate.Rule[T] {
	return validate.Presence("url", get, validate.Label("URL"))
}

// scmFields are the fields the source-control variants share.
type scmFields struct {
	Name         string  `json:"name,omitempty"`
	AutoUpdate   bool    `json:"auto_update"`
	Destination  *string `json:"destination,omitempty"`
	Filter       *Filter `json:"filter,omitempty"`
	InvertFilter bool    `json:"invert_filter"`
}

func defaultSCMFields() scmFields { return scmFields{AutoUpdate: true} }

type credentialFields struct {
	Username          *string `json:"username,omitempty"`
	Password          *string `json:"password,omitempty"`
	EncryptedPassword *string `json:"encrypted_password,omitempty"`
}

func credentialsOut(username *string, password *secure.Value) credentialFields {
	c := credentialFields{Username: username}
	c.Password, c.EncryptedPassword = passwordOut(password)
	return c
}

// passwordOut is the wire pair of a material password. An empty plain text
// is omitted; an emptied cipher edit is sent.
func passwordOut(password *secure.Value) (clear, cipher *string) {
	if password == nil || (password.IsPlain() && password.Value() == "") {
		return nil, nil
	}
	return password.Wire()
}

func (c credentialFields) password() (*secure.Value, error) {
	if c.Password == nil && c.EncryptedPassword == nil {
		return nil, nil
	}
	return secure.New(c.Password, c.EncryptedPassword)
}

// defaultBranch is the branch of a git material whose document names none.
const defaultBranch = "master"

// GitMaterial is a git repository.
type GitMaterial struct {
	MaterialBase
	URL          string
	Branch       string
	Username     *string
	Password     *secure.Value
	Destination  *string
	Filter       *Filter
	InvertFilter bool
	AutoUpdate   bool
	ShallowClone bool
}

type gitAttrs struct {
	URL          string  `json:"url,omitempty"`
	Branch       *string `json:"branch"`
	ShallowClone bool    `json:"shallow_clone"`
	scmFields
	credentialFields
}

var gitRules = validate.Rules[*GitMaterial]{
	urlRule(func(m *GitMaterial) string { return m.URL }),
}

func (m *GitMaterial) Type() string { return MaterialGit }
func (m *GitMaterial) Validate() *validate.Errors {
	m.errs = gitRules.Apply(m)
	return &m.errs
}
func (m *GitMaterial) IsValid() bool { return m.Validate().IsEmpty() }

func (m *GitMaterial) MarshalJSON() ([]byte, error) {
	return wire.Wrap(MaterialGit, gitAttrs{
		URL:              m.URL,
		Branch:           &m.Branch,
		ShallowClone:     m.ShallowClone,
		scmFields:        scmFields{Name: m.Name, AutoUpdate: m.AutoUpdate, Destination: m.Destination, Filter: m.Filter, InvertFilter: m.InvertFilter},
		credentialFields: credentialsOut(m.Username, m.Password),
	})
}

func newGitMaterial(raw json.RawMessage) (Material, error) {
	a := gitAttrs{scmFields: defaultSCMFields()}
	if err := unmarshalAttrs(raw, &a); err != nil {
		return nil, err
	}
	branch := defaultBranch
	if a.Branch != nil {
		branch = *a.Branch
	}
	pw, err := a.password()
	if err != nil {
		return nil, err
	}
	return &GitMaterial{
		MaterialBase: MaterialBase{Name: a.Name},
		URL:          a.URL,
		Branch:       branch,
		Username:     a.Username,
		Password:     pw,
		Destination:  a.Destination,
		Filter:       a.Filter,
		InvertFilter: a.InvertFilter,
		AutoUpdate:   a.AutoUpdate,
		ShallowClone: a.ShallowClone,
	}, nil
}

// SvnMaterial is a Subversion repository.
type SvnMaterial struct {
	MaterialBase
	URL            string
	Username       *string
	Password       *secure.Value
	CheckExternals bool
	Destination    *string
	Filter         *Filter
	InvertFilter   bool
	AutoUpdate     bool
}

type svnAttrs struct {
	URL            string `json:"url,omitempty"`
	CheckExternals bool   `json:"check_externals"`
	scmFields
	credentialFields
}

var svnRules = validate.Rules[*SvnMaterial]{
	urlRule(func(m *SvnMaterial) string { return m.URL }),
}

func (m *SvnMaterial) Type() string { return MaterialSvn }
func (m *SvnMaterial) Validate() *validate.Errors {
	m.errs = svnRules.Apply(m)
	return &m.errs
}
func (m *SvnMaterial) IsValid() bool { return m.Validate().IsEmpty() }

func (m *SvnMaterial) MarshalJSON() ([]byte, error) {
	return wire.Wrap(MaterialSvn, svnAttrs{
		URL:              m.URL,
		CheckExternals:   m.CheckExternals,
		scmFields:        scmFields{Name: m.Name, AutoUpdate: m.AutoUpdate, Destination: m.Destination, Filter: m.Filter, InvertFilter: m.InvertFilter},
		credentialFields: credentialsOut(m.Username, m.Password),
	})
}

func newSvnMaterial(raw json.RawMessage) (Material, error) {
	a := svnAttrs{scmFields: defaultSCMFields()}
	if err := unmarshalAttrs(raw, &a); err != nil {
		return nil, err
	}
	pw, err := a.password()
	if err != nil {
		return nil, err
	}
	return &SvnMaterial{
		MaterialBase:   MaterialBase{Name: a.Name},
		URL:            a.URL,
		Username:       a.Username,
		Password:       pw,
		CheckExternals: a.CheckExternals,
		Destination:    a.Destination,
		Filter:         a.Filter,
		InvertFilter:   a.InvertFilter,
		AutoUpdate:     a.AutoUpdate,
	}, nil
}

// HgMaterial is a Mercurial repository.
type HgMaterial struct {
	MaterialBase
	URL          string
	Branch       *string
	Destination  *string
	Filter       *Filter
	InvertFilter bool
	AutoUpdate   bool
}

type hgAttrs struct {
	URL    string  `json:"url,omitempty"`
	Branch *string `json:"branch,omitempty"`
	scmFields
}

var hgRules = validate.Rules[*HgMaterial]{
	urlRule(func(m *HgMaterial) string { return m.URL }),
}

func (m *HgMaterial) Type() string { return MaterialHg }
func (m *HgMaterial) Validate() *validate.Errors {
	m.errs = hgRules.Apply(m)
	return &m.errs
}
func (m *HgMaterial) IsValid() bool { return m.Validate().IsEmpty() }

func (m *HgMaterial) MarshalJSON() ([]byte, error) {
	return wire.Wrap(MaterialHg, hgAttrs{
		URL:       m.URL,
		Branch:    m.Branch,
		scmFields: scmFields{Name: m.Name, AutoUpdate: m.AutoUpdate, Destination: m.Destination, Filter: m.Filter, InvertFilter: m.InvertFilter},
	})
}

func newHgMaterial(raw json.RawMessage) (Material, error) {
	a := hgAttrs{scmFields: defaultSCMFields()}
	if err := unmarshalAttrs(raw, &a); err != nil {
		return nil, err
	}
	return &HgMaterial{
		MaterialBase: MaterialBase{Name: a.Name},
		URL:          a.URL,
		Branch:       a.Branch,
		Destination:  a.Destination,
		Filter:       a.Filter,
		InvertFilter: a.InvertFilter,
		AutoUpdate:   a.AutoUpdate,
	}, nil
}

// P4Material is a Perforce depot view.
type P4Material struct {
	MaterialBase
	Port         string
	Username     *string
	Password     *secure.Value
	UseTickets   bool
	View         string
	Destination  *string
	Filter       *Filter
	InvertFilter bool
	AutoUpdate   bool
}

type p4Attrs struct {
	Port       string `json:"port,omitempty"`
	UseTickets bool   `json:"use_tickets"`
	View       string `json:"view,omitempty"`
	scmFields
	credentialFields
}

var p4Rules = validate.Rules[*P4Material]{
	validate.Presence("port", func(m *P4Material) string { return m.Port }),
	validate.Presence("view", func(m *P4Material) string { return m.View }),
}

func (m *P4Material) Type() string { return MaterialP4 }
func (m *P4Material) Validate() *validate.Errors {
	m.errs = p4Rules.Apply(m)
	return &m.errs
}
func (m *P4Material) IsValid() bool { return m.Validate().IsEmpty() }

func (m *P4Material) MarshalJSON() ([]byte, error) {
	return wire.Wrap(MaterialP4, p4Attrs{
		Port:             m.Port,
		UseTickets:       m.UseTickets,
		View:             m.View,
		scmFields:        scmFields{Name: m.Name, AutoUpdate: m.AutoUpdate, Destination: m.Destination, Filter: m.Filter, InvertFilter: m.InvertFilter},
		credentialFields: credentialsOut(m.Username, m.Password),
	})
}

func newP4Material(raw json.RawMessage) (Material, error) {
	a := p4Attrs{scmFields: defaultSCMFields()}
	if err := unmarshalAttrs(raw, &a); err != nil {
		return nil, err
	}
	pw, err := a.password()
	if err != nil {
		return nil, err
	}
	return &P4Material{
		MaterialBase: MaterialBase{Name: a.Name},
		Port:         a.Port,
		Username:     a.Username,
		Password:     pw,
		UseTickets:   a.UseTickets,
		View:         a.View,
		Destination:  a.Destination,
		Filter:       a.Filter,
		InvertFilter: a.InvertFilter,
		AutoUpdate:   a.AutoUpdate,
	}, nil
}

// TfsMaterial is a Team Foundation Server project.
type TfsMaterial struct {
	MaterialBase
	URL          string
	Domain       *string
	Username     string
	Password     *secure.Value
	ProjectPath  string
	Destination  *string
	Filter       *Filter
	InvertFilter bool
	AutoUpdate   bool
}

type tfsAttrs struct {
	URL               string  `json:"url,omitempty"`
	Domain            *string `json:"domain,omitempty"`
	Username          string  `json:"username,omitempty"`
	Password          *string `json:"password,omitempty"`
	EncryptedPassword *string `json:"encrypted_password,omitempty"`
	ProjectPath       string  `json:"project_path,omitempty"`
	scmFields
}

var tfsRules = validate.Rules[*TfsMaterial]{
	urlRule(func(m *TfsMaterial) string { return m.URL }),
	validate.Presence("username", func(m *TfsMaterial) string { return m.Username }),
	validate.Presence("projectPath", func(m *TfsMaterial) string { return m.ProjectPath }),
}

func (m *TfsMaterial) Type() string { return MaterialTfs }
func (m *TfsMaterial) Validate() *validate.Errors {
	m.errs = tfsRules.Apply(m)
	return &m.errs
}
func (m *TfsMaterial) IsValid() bool { return m.Validate().IsEmpty() }

func (m *TfsMaterial) MarshalJSON() ([]byte, error) {
	a := tfsAttrs{
		URL:         m.URL,
		Domain:      m.Domain,
		Username:    m.Username,
		ProjectPath: m.ProjectPath,
		scmFields:   scmFields{Name: m.Name, AutoUpdate: m.AutoUpdate, Destination: m.Destination, Filter: m.Filter, InvertFilter: m.InvertFilter},
	}
	a.Password, a.EncryptedPassword = passwordOut(m.Password)
	return wire.Wrap(MaterialTfs, a)
}

func newTfsMaterial(raw json.RawMessage) (Material, error) {
	a := tfsAttrs{scmFields: defaultSCMFields()}
	if err := unmarshalAttrs(raw, &a); err != nil {
		return nil, err
	}
	pw, err := credentialFields{Password: a.Password, EncryptedPassword: a.EncryptedPassword}.password()
	if err != nil {
		return nil, err
	}
	return &TfsMaterial{
		MaterialBase: MaterialBase{Name: a.Name},
		URL:          a.URL,
		Domain:       a.Domain,
		Username:     a.Username,
		Password:     pw,
		ProjectPath:  a.ProjectPath,
		Destination:  a.Destination,
		Filter:       a.Filter,
		InvertFilter: a.InvertFilter,
		AutoUpdate:   a.AutoUpdate,
	}, nil
}

// DependencyMaterial triggers on the completion of an upstream stage.
type DependencyMaterial struct {
	MaterialBase
	Pipeline            string
	Stage               string
	AutoUpdate          bool
	IgnoreForScheduling bool
}

type dependencyAttrs struct {
	Name                string `json:"name,omitempty"`
	Pipeline            string `json:"pipeline,omitempty"`
	Stage               string `json:"stage,omitempty"`
	AutoUpdate          bool   `json:"auto_update"`
	IgnoreForScheduling bool   `json:"ignore_for_scheduling"`
}

var dependencyRules = validate.Rules[*DependencyMaterial]{
	validate.Presence("pipeline", func(m *DependencyMaterial) string { return m.Pipeline }),
	validate.Presence("stage", func(m *DependencyMaterial) string { return m.Stage }),
}

func (m *DependencyMaterial) Type() string { return MaterialDependency }
func (m *DependencyMaterial) Validate() *validate.Errors {
	m.errs = dependencyRules.Apply(m)
	return &m.errs
}
func (m *DependencyMaterial) IsValid() bool { return m.Validate().IsEmpty() }

func (m *DependencyMaterial) MarshalJSON() ([]byte, error) {
	return wire.Wrap(MaterialDependency, dependencyAttrs{
		Name:                m.Name,
		Pipeline:            m.Pipeline,
		Stage:               m.Stage,
		AutoUpdate:          m.AutoUpdate,
		IgnoreForScheduling: m.IgnoreForScheduling,
	})
}

func newDependencyMaterial(raw json.RawMessage) (Material, error) {
	a := dependencyAttrs{AutoUpdate: true}
	if err := unmarshalAttrs(raw, &a); err != nil {
		return nil, err
	}
	return &DependencyMaterial{
		MaterialBase:        MaterialBase{Name: a.Name},
		Pipeline:            a.Pipeline,
		Stage:               a.Stage,
		AutoUpdate:          a.AutoUpdate,
		IgnoreForScheduling: a.IgnoreForScheduling,
	}, nil
}

// PackageMaterial refers to a package defined in a package repository.
type PackageMaterial struct {
	MaterialBase
	Ref string
}

var packageMaterialRules = validate.Rules[*PackageMaterial]{
	validate.Presence("ref", func(m *PackageMaterial) string { return m.Ref }, validate.Message("Package must be present")),
}

func (m *PackageMaterial) Type() string { return MaterialPackage }
func (m *PackageMaterial) Validate() *validate.Errors {
	m.errs = packageMaterialRules.Apply(m)
	return &m.errs
}
func (m *PackageMaterial) IsValid() bool { return m.Validate().IsEmpty() }

func (m *PackageMaterial) MarshalJSON() ([]byte, error) {
	return wire.Wrap(MaterialPackage, struct {
		Name string `json:"name,omitempty"`
		Ref  string `json:"ref,omitempty"`
	}{m.Name, m.Ref})
}

func newPackageMaterial(raw json.RawMessage) (Material, error) {
	var a struct {
		Name string `json:"name"`
		Ref  string `json:"ref"`
	}
	if err := unmarshalAttrs(raw, &a); err != nil {
		return nil, err
	}
	return &PackageMaterial{MaterialBase: MaterialBase{Name: a.Name}, Ref: a.Ref}, nil
}

// PluginMaterial refers to a pluggable SCM by id.
type PluginMaterial struct {
	MaterialBase
	Ref          string
	Destination  *string
	Filter       *Filter
	InvertFilter bool
}

type pluginMaterialAttrs struct {
	Name         string  `json:"name,omitempty"`
	Ref          string  `json:"ref,omitempty"`
	Destination  *string `json:"destination,omitempty"`
	Filter       *Filter `json:"filter,omitempty"`
	InvertFilter bool    `json:"invert_filter"`
}

var pluginMaterialRules = validate.Rules[*PluginMaterial]{
	validate.Presence("ref", func(m *PluginMaterial) string { return m.Ref }, validate.Message("SCM must be present")),
}

func (m *PluginMaterial) Type() string { return MaterialPlugin }
func (m *PluginMaterial) Validate() *validate.Errors {
	m.errs = pluginMaterialRules.Apply(m)
	return &m.errs
}
func (m *PluginMaterial) IsValid() bool { return m.Validate().IsEmpty() }

// SCM resolves the referenced pluggable SCM in scms by id.
func (m *PluginMaterial) SCM(scms *SCMs) (*SCM, bool) {
	for _, s := range scms.All() {
		if s.ID == m.Ref {
			return s, true
		}
	}
	return nil, false
}

func (m *PluginMaterial) MarshalJSON() ([]byte, error) {
	return wire.Wrap(MaterialPlugin, pluginMaterialAttrs{
		Name:         m.Name,
		Ref:          m.Ref,
		Destination:  m.Destination,
		Filter:       m.Filter,
		InvertFilter: m.InvertFilter,
	})
}

func newPluginMaterial(raw json.RawMessage) (Material, error) {
	var a pluginMaterialAttrs
	if err := unmarshalAttrs(raw, &a); err != nil {
		return nil, err
	}
	return &PluginMaterial{
		MaterialBase: MaterialBase{Name: a.Name},
		Ref:          a.Ref,
		Destination:  a.Destination,
		Filter:       a.Filter,
		InvertFilter: a.InvertFilter,
	}, nil
}
