package domain

import (
	"encoding/json"

	"cfgadmin/internal/collection"
	"cfgadmin/internal/registry"
	"cfgadmin/internal/secure"
	"cfgadmin/internal/validate"
)

// EnvironmentVariable is a name plus a possibly secure value.
type EnvironmentVariable struct {
	Name  string
	Value *secure.Value

	errs validate.Errors
}

type EnvironmentVariables = collection.Collection[*EnvironmentVariable]

var EnvironmentVariableRegistry = registry.New[*EnvironmentVariable]("environment variable")

func init() {
	mustSingle(EnvironmentVariableRegistry, KindEnvironmentVariable, DecodeEnvironmentVariable)
}

func NewEnvironmentVariables(items ...*EnvironmentVariable) *EnvironmentVariables {
	return collection.New("environment variable", "name", EnvironmentVariableRegistry, items...)
}

// PlainVariable and SecureVariable are shorthands for the two origins.
func PlainVariable(name, value string) *EnvironmentVariable {
	return &EnvironmentVariable{Name: name, Value: secure.Plain(value)}
}

func SecureVariable(name, encrypted string) *EnvironmentVariable {
	return &EnvironmentVariable{Name: name, Value: secure.Cipher(encrypted)}
}

var environmentVariableRules = validate.Rules[*EnvironmentVariable]{
	validate.Presence("name", func(v *EnvironmentVariable) string { return v.Name }),
}

func (v *EnvironmentVariable) Identity() string { return v.Name }
func (v *EnvironmentVariable) Validate() *validate.Errors {
	v.errs = environmentVariableRules.Apply(v)
	return &v.errs
}
func (v *EnvironmentVariable) Errors() *validate.Errors { return &v.errs }
func (v *EnvironmentVariable) IsValid() bool            { return v.Validate().IsEmpty() }

type environmentVariableDoc struct {
	Name           string  `json:"name"`
	Secure         bool    `json:"secure"`
	Value          *string `json:"value,omitempty"`
	EncryptedValue *string `json:"encrypted_value,omitempty"`
}

func (v *EnvironmentVariable) MarshalJSON() ([]byte, error) {
	doc := environmentVariableDoc{Name: v.Name}
	if v.Value != nil {
		doc.Secure = v.Value.IsSecure()
		doc.Value, doc.EncryptedValue = v.Value.Wire()
	}
	return json.Marshal(doc)
}

func DecodeEnvironmentVariable(raw json.RawMessage) (*EnvironmentVariable, error) {
	var doc environmentVariableDoc
	errs, err := decodeEntity(raw, &doc)
	if err != nil {
		return nil, err
	}
	v := &EnvironmentVariable{Name: doc.Name, errs: errs}
	if doc.Value != nil || doc.EncryptedValue != nil || doc.Secure {
		if v.Value, err = secure.FromWire(doc.Value, doc.EncryptedValue, doc.Secure); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Parameter is a pipeline parameter.
type Parameter struct {
	Name  string  `json:"name"`
	Value *string `json:"value,omitempty"`

	errs validate.Errors
}

type Parameters = collection.Collection[*Parameter]

var ParameterRegistry = registry.New[*Parameter]("parameter")

func init() {
	mustSingle(ParameterRegistry, KindParameter, DecodeParameter)
}

func NewParameters(items ...*Parameter) *Parameters {
	return collection.New("parameter", "name", ParameterRegistry, items...)
}

var parameterRules = validate.Rules[*Parameter]{
	validate.Presence("name", func(p *Parameter) string { return p.Name }),
	validate.ID("name", func(p *Parameter) string { return p.Name }),
}

func (p *Parameter) Identity() string { return p.Name }
func (p *Parameter) Validate() *validate.Errors {
	p.errs = parameterRules.Apply(p)
	return &p.errs
}
func (p *Parameter) Errors() *validate.Errors { return &p.errs }
func (p *Parameter) IsValid() bool            { return p.Validate().IsEmpty() }

func DecodeParameter(raw json.RawMessage) (*Parameter, error) {
	p := &Parameter{}
	errs, err := decodeEntity(raw, p)
	if err != nil {
		return nil, err
	}
	p.errs = errs
	return p, nil
}
