package domain

import (
	"encoding/json"
	"fmt"

	"cfgadmin/internal/collection"
	"cfgadmin/internal/registry"
	"cfgadmin/internal/secure"
	"cfgadmin/internal/validate"
)

// SCM is a pluggable source-control material definition, shared by pipelines
// through PluginMaterial.Ref.
type SCM struct {
	ID             string
	Name           string
	AutoUpdate     bool
	PluginMetadata PluginMetadata
	Configuration  *ConfigProperties

	errs validate.Errors
}

type SCMs = collection.Collection[*SCM]

// SCMRegistry has one variant per SCM plugin, keyed by plugin id.
var SCMRegistry = registry.New[*SCM]("scm")

func NewSCMs(items ...*SCM) *SCMs { return collection.New("scm", "name", SCMRegistry, items...) }

var scmRules = validate.Rules[*SCM]{
	validate.Presence("name", func(s *SCM) string { return s.Name }),
	validate.ID("name", func(s *SCM) string { return s.Name }),
	validate.Presence("pluginMetadata", func(s *SCM) string { return s.PluginMetadata.ID },
		validate.Message("Plugin must be present")),
}

// Identity is the SCM name, which is also how the admin API addresses it.
func (s *SCM) Identity() string { return s.Name }
func (s *SCM) Validate() *validate.Errors {
	s.errs = scmRules.Apply(s)
	return &s.errs
}
func (s *SCM) Errors() *validate.Errors { return &s.errs }

func (s *SCM) IsValid() bool {
	return allValid(s.Validate().IsEmpty(), s.Configuration == nil || s.Configuration.IsValid())
}

type scmDoc struct {
	ID             string          `json:"id,omitempty"`
	Name           string          `json:"name"`
	AutoUpdate     bool            `json:"auto_update"`
	PluginMetadata PluginMetadata  `json:"plugin_metadata"`
	Configuration  json.RawMessage `json:"configuration"`
}

func (s *SCM) MarshalJSON() ([]byte, error) {
	cfg, err := marshalOwned(s.Configuration)
	if err != nil {
		return nil, err
	}
	return json.Marshal(scmDoc{
		ID:             s.ID,
		Name:           s.Name,
		AutoUpdate:     s.AutoUpdate,
		PluginMetadata: s.PluginMetadata,
		Configuration:  cfg,
	})
}

func DecodeSCM(raw json.RawMessage) (*SCM, error) {
	doc := scmDoc{AutoUpdate: true}
	errs, err := decodeEntity(raw, &doc)
	if err != nil {
		return nil, err
	}
	s := &SCM{
		ID:             doc.ID,
		Name:           doc.Name,
		AutoUpdate:     doc.AutoUpdate,
		PluginMetadata: doc.PluginMetadata,
		Configuration:  NewConfigProperties(),
		errs:           errs,
	}
	if err := decodeList(s.Configuration, doc.Configuration, DecodeConfigProperty); err != nil {
		return nil, fmt.Errorf("scm %q: %w", doc.Name, err)
	}
	return s, nil
}

// fillSchema appends an empty property for every schema key cfg lacks.
// Secure keys start out as values to be encrypted by the server.
func fillSchema(cfg *ConfigProperties, fields []registry.Field) {
	for _, f := range fields {
		if _, ok := cfg.Find(f.Key); ok {
			continue
		}
		v := secure.Plain("")
		if f.Secure {
			v.BecomeSecure()
		}
		cfg.Add(&ConfigProperty{Key: f.Key, Value: v})
	}
}

// PackageRepository is a repository of packages served by a package plugin.
type PackageRepository struct {
	RepoID         string
	Name           string
	PluginMetadata PluginMetadata
	Configuration  *ConfigProperties
	Packages       *Packages

	errs validate.Errors
}

// Package is one package definition inside a repository.
type Package struct {
	ID            string
	Name          string
	AutoUpdate    bool
	Configuration *ConfigProperties

	errs validate.Errors
}

type Packages = collection.Collection[*Package]

var PackageRegistry = registry.New[*Package]("package")

func init() {
	mustSingle(PackageRegistry, KindPackage, DecodePackage)
}

func NewPackages(items ...*Package) *Packages {
	return collection.New("package", "name", PackageRegistry, items...)
}

var packageRules = validate.Rules[*Package]{
	validate.Presence("name", func(p *Package) string { return p.Name }),
}

func (p *Package) Identity() string { return p.Name }
func (p *Package) Validate() *validate.Errors {
	p.errs = packageRules.Apply(p)
	return &p.errs
}
func (p *Package) Errors() *validate.Errors { return &p.errs }
func (p *Package) IsValid() bool {
	return allValid(p.Validate().IsEmpty(), p.Configuration == nil || p.Configuration.IsValid())
}

type packageDoc struct {
	ID            string          `json:"id,omitempty"`
	Name          string          `json:"name"`
	AutoUpdate    bool            `json:"auto_update"`
	Configuration json.RawMessage `json:"configuration"`
}

func (p *Package) MarshalJSON() ([]byte, error) {
	cfg, err := marshalOwned(p.Configuration)
	if err != nil {
		return nil, err
	}
	return json.Marshal(packageDoc{ID: p.ID, Name: p.Name, AutoUpdate: p.AutoUpdate, Configuration: cfg})
}

func DecodePackage(raw json.RawMessage) (*Package, error) {
	doc := packageDoc{AutoUpdate: true}
	errs, err := decodeEntity(raw, &doc)
	if err != nil {
		return nil, err
	}
	p := &Package{ID: doc.ID, Name: doc.Name, AutoUpdate: doc.AutoUpdate, Configuration: NewConfigProperties(), errs: errs}
	if err := decodeList(p.Configuration, doc.Configuration, DecodeConfigProperty); err != nil {
		return nil, fmt.Errorf("package %q: %w", doc.Name, err)
	}
	return p, nil
}

type PackageRepositories = collection.Collection[*PackageRepository]

var PackageRepositoryRegistry = registry.New[*PackageRepository]("package repository")

func init() {
	mustSingle(PackageRepositoryRegistry, KindPackageRepository, DecodePackageRepository)
}

func NewPackageRepositories(items ...*PackageRepository) *PackageRepositories {
	return collection.New("package repository", "repoId", PackageRepositoryRegistry, items...)
}

var packageRepositoryRules = validate.Rules[*PackageRepository]{
	validate.Presence("name", func(r *PackageRepository) string { return r.Name }),
	validate.ID("name", func(r *PackageRepository) string { return r.Name }),
	validate.Presence("pluginMetadata", func(r *PackageRepository) string { return r.PluginMetadata.ID },
		validate.Message("Plugin must be present")),
}

func (r *PackageRepository) Identity() string { return r.RepoID }
func (r *PackageRepository) Validate() *validate.Errors {
	r.errs = packageRepositoryRules.Apply(r)
	return &r.errs
}
func (r *PackageRepository) Errors() *validate.Errors { return &r.errs }

func (r *PackageRepository) IsValid() bool {
	return allValid(
		r.Validate().IsEmpty(),
		r.Configuration == nil || r.Configuration.IsValid(),
		r.Packages == nil || r.Packages.IsValid(),
	)
}

type packageRepositoryDoc struct {
	RepoID         string          `json:"repo_id,omitempty"`
	Name           string          `json:"name"`
	PluginMetadata PluginMetadata  `json:"plugin_metadata"`
	Configuration  json.RawMessage `json:"configuration"`
	Embedded       struct {
		Packages json.RawMessage `json:"packages"`
	} `json:"_embedded"`
}

func (r *PackageRepository) MarshalJSON() ([]byte, error) {
	doc := packageRepositoryDoc{RepoID: r.RepoID, Name: r.Name, PluginMetadata: r.PluginMetadata}
	var err error
	if doc.Configuration, err = marshalOwned(r.Configuration); err != nil {
		return nil, err
	}
	if doc.Embedded.Packages, err = marshalOwned(r.Packages); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func DecodePackageRepository(raw json.RawMessage) (*PackageRepository, error) {
	var doc packageRepositoryDoc
	errs, err := decodeEntity(raw, &doc)
	if err != nil {
		return nil, err
	}
	r := &PackageRepository{
		RepoID:         doc.RepoID,
		Name:           doc.Name,
		PluginMetadata: doc.PluginMetadata,
		Configuration:  NewConfigProperties(),
		Packages:       NewPackages(),
		errs:           errs,
	}
	if err := decodeList(r.Configuration, doc.Configuration, DecodeConfigProperty); err != nil {
		return nil, fmt.Errorf("package repository %q: %w", doc.Name, err)
	}
	if err := decodeList(r.Packages, doc.Embedded.Packages, DecodePackage); err != nil {
		return nil, fmt.Errorf("package repository %q: %w", doc.Name, err)
	}
	return r, nil
}

// ElasticProfile configures agents started on demand by an elastic agent
// plugin.
type ElasticProfile struct {
	ID         string
	PluginID   string
	Properties *ConfigProperties

	errs validate.Errors
}

type ElasticProfiles = collection.Collection[*ElasticProfile]

// ProfileRegistry has one variant per elastic agent plugin, keyed by plugin id.
var ProfileRegistry = registry.New[*ElasticProfile]("elastic profile")

func NewElasticProfiles(items ...*ElasticProfile) *ElasticProfiles {
	return collection.New("elastic profile", "id", ProfileRegistry, items...)
}

var elasticProfileRules = validate.Rules[*ElasticProfile]{
	validate.Presence("id", func(p *ElasticProfile) string { return p.ID }),
	validate.ID("id", func(p *ElasticProfile) string { return p.ID }),
	validate.Presence("pluginId", func(p *ElasticProfile) string { return p.PluginID }, validate.Label("Plugin id")),
}

func (p *ElasticProfile) Identity() string { return p.ID }
func (p *ElasticProfile) Validate() *validate.Errors {
	p.errs = elasticProfileRules.Apply(p)
	return &p.errs
}
func (p *ElasticProfile) Errors() *validate.Errors { return &p.errs }
func (p *ElasticProfile) IsValid() bool {
	return allValid(p.Validate().IsEmpty(), p.Properties == nil || p.Properties.IsValid())
}

type elasticProfileDoc struct {
	ID         string          `json:"id"`
	PluginID   string          `json:"plugin_id"`
	Properties json.RawMessage `json:"properties"`
}

func (p *ElasticProfile) MarshalJSON() ([]byte, error) {
	props, err := marshalOwned(p.Properties)
	if err != nil {
		return nil, err
	}
	return json.Marshal(elasticProfileDoc{ID: p.ID, PluginID: p.PluginID, Properties: props})
}

func DecodeElasticProfile(raw json.RawMessage) (*ElasticProfile, error) {
	var doc elasticProfileDoc
	errs, err := decodeEntity(raw, &doc)
	if err != nil {
		return nil, err
	}
	p := &ElasticProfile{ID: doc.ID, PluginID: doc.PluginID, Properties: NewConfigProperties(), errs: errs}
	if err := decodeList(p.Properties, doc.Properties, DecodeConfigProperty); err != nil {
		return nil, fmt.Errorf("elastic profile %q: %w", doc.ID, err)
	}
	return p, nil
}
