package domain

import (
	"encoding/json"

	"cfgadmin/internal/collection"
	"cfgadmin/internal/registry"
	"cfgadmin/internal/secure"
	"cfgadmin/internal/validate"
)

// PluginMetadata identifies the plugin backing an entity.
type PluginMetadata struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

// ConfigProperty is one key of a plugin configuration. Its value may be
// secure.
type ConfigProperty struct {
	Key   string
	Value *secure.Value

	errs validate.Errors
}

type ConfigProperties = collection.Collection[*ConfigProperty]

var ConfigPropertyRegistry = registry.New[*ConfigProperty]("configuration property")

func init() {
	mustSingle(ConfigPropertyRegistry, KindConfigProperty, DecodeConfigProperty)
}

func NewConfigProperties(items ...*ConfigProperty) *ConfigProperties {
	return collection.New("configuration property", "key", ConfigPropertyRegistry, items...)
}

// NewConfigProperty returns a property with a plain value.
func NewConfigProperty(key, value string) *ConfigProperty {
	return &ConfigProperty{Key: key, Value: secure.Plain(value)}
}

var configPropertyRules = validate.Rules[*ConfigProperty]{
	validate.Presence("key", func(p *ConfigProperty) string { return p.Key }),
}

func (p *ConfigProperty) Identity() string { return p.Key }

func (p *ConfigProperty) Validate() *validate.Errors {
	p.errs = configPropertyRules.Apply(p)
	return &p.errs
}

func (p *ConfigProperty) Errors() *validate.Errors { return &p.errs }
func (p *ConfigProperty) IsValid() bool            { return p.Validate().IsEmpty() }

type configPropertyDoc struct {
	Key            string  `json:"key"`
	Value          *string `json:"value,omitempty"`
	EncryptedValue *string `json:"encrypted_value,omitempty"`
	Secure         bool    `json:"secure,omitempty"`
}

func (p *ConfigProperty) MarshalJSON() ([]byte, error) {
	doc := configPropertyDoc{Key: p.Key}
	if p.Value != nil {
		doc.Value, doc.EncryptedValue = p.Value.Wire()
		doc.Secure = p.Value.IsSecure() && doc.Value != nil
	}
	return json.Marshal(doc)
}

// DecodeConfigProperty reads {key, value|encrypted_value}.
func DecodeConfigProperty(raw json.RawMessage) (*ConfigProperty, error) {
	var doc configPropertyDoc
	errs, err := decodeEntity(raw, &doc)
	if err != nil {
		return nil, err
	}
	p := &ConfigProperty{Key: doc.Key, errs: errs}
	if doc.Value != nil || doc.EncryptedValue != nil || doc.Secure {
		if p.Value, err = secure.FromWire(doc.Value, doc.EncryptedValue, doc.Secure); err != nil {
			return nil, err
		}
	}
	return p, nil
}
