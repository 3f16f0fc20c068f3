package domain

import (
	"encoding/json"
	"strings"

	"cfgadmin/internal/registry"
	"cfgadmin/internal/validate"
	"cfgadmin/internal/wire"
)

const (
	TrackingGeneric = "generic"
	TrackingMingle  = "mingle"
)

// TrackingTool links commit messages to an issue tracker.
type TrackingTool interface {
	json.Marshaler
	Type() string
	Validate() *validate.Errors
	Errors() *validate.Errors
	IsValid() bool
}

var TrackingToolRegistry = registry.New[TrackingTool]("tracking tool")

func init() {
	TrackingToolRegistry.MustRegister(registry.Variant[TrackingTool]{Kind: TrackingGeneric, DisplayName: "Generic", New: newGenericTracker})
	TrackingToolRegistry.MustRegister(registry.Variant[TrackingTool]{Kind: TrackingMingle, DisplayName: "Mingle", New: newMingleTracker})
}

// DecodeTrackingTool reads a tracking tool document. null yields nil.
func DecodeTrackingTool(raw json.RawMessage) (TrackingTool, error) {
	if wire.IsNull(raw) {
		return nil, nil
	}
	env, err := wire.Unwrap(raw)
	if err != nil {
		return nil, err
	}
	t, err := TrackingToolRegistry.Create(env.Type, env.Attributes)
	if err != nil {
		return nil, err
	}
	*t.Errors() = validate.FromMap(env.Errors)
	return t, nil
}

// GenericTracker turns issue ids matched by Regex into links built from
// URLPattern, where ${ID} is replaced by the id.
type GenericTracker struct {
	URLPattern string `json:"url_pattern,omitempty"`
	Regex      string `json:"regex,omitempty"`

	errs validate.Errors
}

var genericTrackerRules = validate.Rules[*GenericTracker]{
	validate.Presence("urlPattern", func(t *GenericTracker) string { return t.URLPattern }, validate.Label("URL pattern")),
	validate.Custom("urlPattern", func(t *GenericTracker) string {
		if t.URLPattern != "" && !strings.Contains(t.URLPattern, "${ID}") {
			return "URL pattern must contain the string '${ID}'"
		}
		return ""
	}),
	validate.Presence("regex", func(t *GenericTracker) string { return t.Regex }),
}

func (t *GenericTracker) Type() string             { return TrackingGeneric }
func (t *GenericTracker) Errors() *validate.Errors { return &t.errs }
func (t *GenericTracker) Validate() *validate.Errors {
	t.errs = genericTrackerRules.Apply(t)
	return &t.errs
}
func (t *GenericTracker) IsValid() bool { return t.Validate().IsEmpty() }

func (t *GenericTracker) MarshalJSON() ([]byte, error) {
	type attrs GenericTracker
	return wire.Wrap(TrackingGeneric, (*attrs)(t))
}

func newGenericTracker(raw json.RawMessage) (TrackingTool, error) {
	t := &GenericTracker{}
	type attrs GenericTracker
	return t, unmarshalAttrs(raw, (*attrs)(t))
}

// MingleTracker links to a Mingle project.
type MingleTracker struct {
	BaseURL               string  `json:"base_url,omitempty"`
	ProjectIdentifier     string  `json:"project_identifier,omitempty"`
	MQLGroupingConditions *string `json:"mql_grouping_conditions,omitempty"`

	errs validate.Errors
}

var mingleTrackerRules = validate.Rules[*MingleTracker]{
	validate.Presence("baseUrl", func(t *MingleTracker) string { return t.BaseURL }, validate.Label("Base URL")),
	validate.URL("baseUrl", func(t *MingleTracker) string { return t.BaseURL }, validate.Label("Base URL")),
	validate.Presence("projectIdentifier", func(t *MingleTracker) string { return t.ProjectIdentifier }),
}

func (t *MingleTracker) Type() string             { return TrackingMingle }
func (t *MingleTracker) Errors() *validate.Errors { return &t.errs }
func (t *MingleTracker) Validate() *validate.Errors {
	t.errs = mingleTrackerRules.Apply(t)
	return &t.errs
}
func (t *MingleTracker) IsValid() bool { return t.Validate().IsEmpty() }

func (t *MingleTracker) MarshalJSON() ([]byte, error) {
	type attrs MingleTracker
	return wire.Wrap(TrackingMingle, (*attrs)(t))
}

func newMingleTracker(raw json.RawMessage) (TrackingTool, error) {
	t := &MingleTracker{}
	type attrs MingleTracker
	return t, unmarshalAttrs(raw, (*attrs)(t))
}
