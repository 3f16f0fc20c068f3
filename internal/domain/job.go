package domain

import (
	"encoding/json"
	"fmt"

	"cfgadmin/internal/collection"
	"cfgadmin/internal/registry"
	"cfgadmin/internal/validate"
	"cfgadmin/internal/wire"
)

// Tab is a custom artifact tab shown on the job details page.
type Tab struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path,omitempty"`

	errs validate.Errors
}

type Tabs = collection.Collection[*Tab]

var TabRegistry = registry.New[*Tab]("tab")

func NewTabs(items ...*Tab) *Tabs { return collection.New("tab", "name", TabRegistry, items...) }

var tabRules = validate.Rules[*Tab]{
	validate.Presence("name", func(t *Tab) string { return t.Name }),
	validate.Presence("path", func(t *Tab) string { return t.Path }),
}

func (t *Tab) Identity() string { return t.Name }
func (t *Tab) Validate() *validate.Errors {
	t.errs = tabRules.Apply(t)
	return &t.errs
}
func (t *Tab) Errors() *validate.Errors { return &t.errs }
func (t *Tab) IsValid() bool            { return t.Validate().IsEmpty() }

func DecodeTab(raw json.RawMessage) (*Tab, error) {
	t := &Tab{}
	errs, err := decodeEntity(raw, t)
	if err != nil {
		return nil, err
	}
	t.errs = errs
	return t, nil
}

// Property is a job property extracted from an artifact with an XPath.
type Property struct {
	Name   string `json:"name,omitempty"`
	Source string `json:"source,omitempty"`
	XPath  string `json:"xpath,omitempty"`

	errs validate.Errors
}

type Properties = collection.Collection[*Property]

var PropertyRegistry = registry.New[*Property]("property")

func NewProperties(items ...*Property) *Properties {
	return collection.New("property", "name", PropertyRegistry, items...)
}

var propertyRules = validate.Rules[*Property]{
	validate.Presence("name", func(p *Property) string { return p.Name }),
	validate.Presence("source", func(p *Property) string { return p.Source }),
	validate.Presence("xpath", func(p *Property) string { return p.XPath }, validate.Label("XPath")),
}

func (p *Property) Identity() string { return p.Name }
func (p *Property) Validate() *validate.Errors {
	p.errs = propertyRules.Apply(p)
	return &p.errs
}
func (p *Property) Errors() *validate.Errors { return &p.errs }
func (p *Property) IsValid() bool            { return p.Validate().IsEmpty() }

func DecodeProperty(raw json.RawMessage) (*Property, error) {
	p := &Property{}
	errs, err := decodeEntity(raw, p)
	if err != nil {
		return nil, err
	}
	p.errs = errs
	return p, nil
}

// Job is one unit of work inside a stage.
type Job struct {
	Name                 string
	RunInstanceCount     wire.Scalar
	Timeout              wire.Scalar
	ElasticProfileID     *string
	Resources            wire.StringList
	Tasks                *Tasks
	Tabs                 *Tabs
	Properties           *Properties
	EnvironmentVariables *EnvironmentVariables

	errs validate.Errors
}

type Jobs = collection.Collection[*Job]

var JobRegistry = registry.New[*Job]("job")

func init() {
	mustSingle(TabRegistry, KindTab, DecodeTab)
	mustSingle(PropertyRegistry, KindProperty, DecodeProperty)
	mustSingle(JobRegistry, KindJob, DecodeJob)
}

func NewJobs(items ...*Job) *Jobs { return collection.New("job", "name", JobRegistry, items...) }

// NewJob returns a job with empty owned collections.
func NewJob(name string) *Job {
	return &Job{
		Name:                 name,
		Tasks:                NewTasks(),
		Tabs:                 NewTabs(),
		Properties:           NewProperties(),
		EnvironmentVariables: NewEnvironmentVariables(),
	}
}

var jobRules = validate.Rules[*Job]{
	validate.Presence("name", func(j *Job) string { return j.Name }),
	validate.ID("name", func(j *Job) string { return j.Name }),
	validate.Unbounded("timeout", func(j *Job) wire.Scalar { return j.Timeout }, "never"),
	validate.Unbounded("runInstanceCount", func(j *Job) wire.Scalar { return j.RunInstanceCount }, "all"),
	validate.Custom("elasticProfileId", func(j *Job) string {
		if wire.Deref(j.ElasticProfileID) != "" && len(j.Resources) > 0 {
			return "Job cannot have both resources and an elastic profile id"
		}
		return ""
	}),
}

func (j *Job) Identity() string { return j.Name }
func (j *Job) Validate() *validate.Errors {
	j.errs = jobRules.Apply(j)
	return &j.errs
}
func (j *Job) Errors() *validate.Errors { return &j.errs }

func (j *Job) IsValid() bool {
	return allValid(
		j.Validate().IsEmpty(),
		j.Tasks == nil || j.Tasks.IsValid(),
		j.Tabs == nil || j.Tabs.IsValid(),
		j.Properties == nil || j.Properties.IsValid(),
		j.EnvironmentVariables == nil || j.EnvironmentVariables.IsValid(),
	)
}

type jobDoc struct {
	Name                 string          `json:"name"`
	RunInstanceCount     wire.Scalar     `json:"run_instance_count"`
	Timeout              wire.Scalar     `json:"timeout"`
	ElasticProfileID     *string         `json:"elastic_profile_id,omitempty"`
	Resources            wire.StringList `json:"resources"`
	Tasks                json.RawMessage `json:"tasks"`
	Tabs                 json.RawMessage `json:"tabs"`
	Properties           json.RawMessage `json:"properties"`
	EnvironmentVariables json.RawMessage `json:"environment_variables"`
}

func (j *Job) MarshalJSON() ([]byte, error) {
	doc := jobDoc{
		Name:             j.Name,
		RunInstanceCount: j.RunInstanceCount,
		Timeout:          j.Timeout,
		ElasticProfileID: j.ElasticProfileID,
		Resources:        j.Resources,
	}
	var err error
	if doc.Tasks, err = marshalOwned(j.Tasks); err != nil {
		return nil, err
	}
	if doc.Tabs, err = marshalOwned(j.Tabs); err != nil {
		return nil, err
	}
	if doc.Properties, err = marshalOwned(j.Properties); err != nil {
		return nil, err
	}
	if doc.EnvironmentVariables, err = marshalOwned(j.EnvironmentVariables); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func DecodeJob(raw json.RawMessage) (*Job, error) {
	var doc jobDoc
	errs, err := decodeEntity(raw, &doc)
	if err != nil {
		return nil, err
	}
	j := NewJob(doc.Name)
	j.RunInstanceCount = doc.RunInstanceCount
	j.Timeout = doc.Timeout
	j.ElasticProfileID = doc.ElasticProfileID
	j.Resources = doc.Resources
	j.errs = errs
	if err := decodeList(j.Tasks, doc.Tasks, DecodeTask); err != nil {
		return nil, fmt.Errorf("job %q: %w", doc.Name, err)
	}
	if err := decodeList(j.Tabs, doc.Tabs, DecodeTab); err != nil {
		return nil, fmt.Errorf("job %q: %w", doc.Name, err)
	}
	if err := decodeList(j.Properties, doc.Properties, DecodeProperty); err != nil {
		return nil, fmt.Errorf("job %q: %w", doc.Name, err)
	}
	if err := decodeList(j.EnvironmentVariables, doc.EnvironmentVariables, DecodeEnvironmentVariable); err != nil {
		return nil, fmt.Errorf("job %q: %w", doc.Name, err)
	}
	return j, nil
}

// marshalOwned encodes an owned collection, emitting [] for a nil one.
func marshalOwned[T collection.Member](c *collection.Collection[T]) (json.RawMessage, error) {
	if c == nil {
		return json.RawMessage("[]"), nil
	}
	return json.Marshal(c)
}
