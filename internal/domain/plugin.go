package domain

import (
	"encoding/json"
	"fmt"

	"cfgadmin/internal/registry"
	"cfgadmin/internal/wire"
)

// Plugin extension types that contribute variants.
const (
	ExtensionTask         = "task"
	ExtensionSCM          = "scm"
	ExtensionElasticAgent = "elastic-agent"
)

// PluginState is the lifecycle state a server reports for a plugin.
type PluginState string

const (
	PluginActive  PluginState = "active"
	PluginInvalid PluginState = "invalid"
)

// PluginInfo is the server's description of one installed plugin.
type PluginInfo struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Status struct {
		State    PluginState `json:"state"`
		Messages []string    `json:"messages,omitempty"`
	} `json:"status"`
	About struct {
		Name        string `json:"name"`
		Version     string `json:"version"`
		Description string `json:"description,omitempty"`
	} `json:"about"`
	ExtensionInfo ExtensionInfo `json:"extension_info"`
}

// ExtensionInfo carries the settings schemas a plugin exposes.
type ExtensionInfo struct {
	DisplayName     string           `json:"display_name,omitempty"`
	PluginSettings  *PluginSettings  `json:"plugin_settings,omitempty"`
	TaskSettings    *PluginSettings  `json:"task_settings,omitempty"`
	SCMSettings     *PluginSettings  `json:"scm_settings,omitempty"`
	ProfileSettings *PluginSettings  `json:"profile_settings,omitempty"`
	View            *json.RawMessage `json:"view,omitempty"`
}

// PluginSettings is a configuration schema.
type PluginSettings struct {
	Configurations []PluginConfiguration `json:"configurations"`
}

type PluginConfiguration struct {
	Key      string `json:"key"`
	Metadata struct {
		Secure   bool `json:"secure"`
		Required bool `json:"required"`
	} `json:"metadata"`
}

// DecodePluginInfo reads one plugin info document.
func DecodePluginInfo(raw json.RawMessage) (*PluginInfo, error) {
	var p PluginInfo
	if _, err := decodeEntity(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *PluginInfo) Identity() string { return p.ID }

// Active reports whether the server loaded the plugin successfully.
func (p *PluginInfo) Active() bool { return p.Status.State == PluginActive }

// DisplayName falls back to the about name, then to the id.
func (p *PluginInfo) DisplayName() string {
	switch {
	case p.ExtensionInfo.DisplayName != "":
		return p.ExtensionInfo.DisplayName
	case p.About.Name != "":
		return p.About.Name
	}
	return p.ID
}

// Settings returns the schema for the variant the plugin contributes.
func (p *PluginInfo) Settings() *PluginSettings {
	switch p.Type {
	case ExtensionTask:
		return p.ExtensionInfo.TaskSettings
	case ExtensionSCM:
		return p.ExtensionInfo.SCMSettings
	case ExtensionElasticAgent:
		return p.ExtensionInfo.ProfileSettings
	}
	return p.ExtensionInfo.PluginSettings
}

// Fields flattens the variant schema.
func (p *PluginInfo) Fields() []registry.Field {
	s := p.Settings()
	if s == nil {
		return nil
	}
	out := make([]registry.Field, 0, len(s.Configurations))
	for _, c := range s.Configurations {
		out = append(out, registry.Field{Key: c.Key, Required: c.Metadata.Required, Secure: c.Metadata.Secure})
	}
	return out
}

// RegisterPlugins adds a variant keyed by plugin id for every active task,
// SCM and elastic agent plugin. It returns the ids it registered.
func RegisterPlugins(infos []*PluginInfo) ([]string, error) {
	var ids []string
	for _, info := range infos {
		if info == nil || !info.Active() {
			continue
		}
		var err error
		switch info.Type {
		case ExtensionTask:
			err = TaskRegistry.Register(registry.Variant[Task]{
				Kind: info.ID, DisplayName: info.DisplayName(), Source: registry.Plugin,
				Fields: info.Fields(), New: pluginTaskConstructor(info.ID, info.Fields()),
			})
		case ExtensionSCM:
			err = SCMRegistry.Register(registry.Variant[*SCM]{
				Kind: info.ID, DisplayName: info.DisplayName(), Source: registry.Plugin,
				Fields: info.Fields(), New: pluginSCMConstructor(info.ID, info.Fields()),
			})
		case ExtensionElasticAgent:
			err = ProfileRegistry.Register(registry.Variant[*ElasticProfile]{
				Kind: info.ID, DisplayName: info.DisplayName(), Source: registry.Plugin,
				Fields: info.Fields(), New: pluginProfileConstructor(info.ID, info.Fields()),
			})
		default:
			continue
		}
		if err != nil {
			return ids, fmt.Errorf("register plugin %q: %w", info.ID, err)
		}
		ids = append(ids, info.ID)
	}
	return ids, nil
}

func pluginTaskConstructor(id string, fields []registry.Field) registry.Constructor[Task] {
	return func(raw json.RawMessage) (Task, error) {
		t, err := newPluggableTask(raw)
		if err != nil {
			return nil, err
		}
		pt := t.(*PluggableTask)
		if pt.PluginConfiguration.ID == "" {
			pt.PluginConfiguration.ID = id
		}
		fillSchema(pt.Configuration, fields)
		return pt, nil
	}
}

func pluginSCMConstructor(id string, fields []registry.Field) registry.Constructor[*SCM] {
	return func(raw json.RawMessage) (*SCM, error) {
		if wire.IsNull(raw) {
			raw = json.RawMessage(`{}`)
		}
		s, err := DecodeSCM(raw)
		if err != nil {
			return nil, err
		}
		if s.PluginMetadata.ID == "" {
			s.PluginMetadata.ID = id
		}
		fillSchema(s.Configuration, fields)
		return s, nil
	}
}

func pluginProfileConstructor(id string, fields []registry.Field) registry.Constructor[*ElasticProfile] {
	return func(raw json.RawMessage) (*ElasticProfile, error) {
		if wire.IsNull(raw) {
			raw = json.RawMessage(`{}`)
		}
		p, err := DecodeElasticProfile(raw)
		if err != nil {
			return nil, err
		}
		if p.PluginID == "" {
			p.PluginID = id
		}
		fillSchema(p.Properties, fields)
		return p, nil
	}
}
