package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the workspace.
const FileName = "cfgadmin.yml"

// Token cache backends.
const (
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
	CacheBadger = "badger"
)

// Config models cfgadmin.yml.
type Config struct {
	Server struct {
		URL     string `yaml:"url" validate:"required,url"`
		Token   string `yaml:"token"`
		Product string `yaml:"product" validate:"required,hostname_rfc1123"`
		// Timeout is a Go duration string.
		Timeout string `yaml:"timeout"`
	} `yaml:"server"`
	// Versions overrides the Accept version of a family, keyed by family name.
	Versions map[string]int `yaml:"versions" validate:"dive,keys,required,endkeys,gte=1"`
	Cache    struct {
		Backend string `yaml:"backend" validate:"oneof=memory sqlite badger"`
		// Path is the badger directory or the sqlite file. It defaults to the
		// workspace state directory.
		Path string `yaml:"path"`
	} `yaml:"cache"`
	Dev struct {
		Listen    string `yaml:"listen" validate:"required"`
		JWTSecret string `yaml:"jwt_secret"`
		Seed      string `yaml:"seed"`
	} `yaml:"dev"`
}

var validate = validator.New()

// Families accepted in the versions map.
var Families = []string{"user", "role", "scm", "elastic profile", "package repository", "pipeline", "plugin info", "material"}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with cfgctl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate checks struct tags, then the rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fieldPath(fe.Namespace()), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Server.Timeout != "" {
		if _, err := c.TimeoutDuration(); err != nil {
			return fmt.Errorf("config.server.timeout: %w", err)
		}
	}
	for family := range c.Versions {
		if !knownFamily(family) {
			return fmt.Errorf("config.versions references unknown family %s", family)
		}
	}
	if c.Cache.Backend == CacheMemory && c.Cache.Path != "" {
		return fmt.Errorf("config.cache.path is not used by the memory backend")
	}
	return nil
}

func knownFamily(name string) bool {
	for _, f := range Families {
		if f == name {
			return true
		}
	}
	return false
}

// fieldPath turns "Config.Server.URL" into "config.server.url".
func fieldPath(ns string) string {
	return strings.ToLower(ns)
}

// TimeoutDuration parses server.timeout. An empty value means no timeout.
func (c *Config) TimeoutDuration() (time.Duration, error) {
	if c.Server.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Server.Timeout)
}

// Version returns the configured Accept version of family, or def.
func (c *Config) Version(family string, def int) int {
	if v, ok := c.Versions[family]; ok {
		return v
	}
	return def
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML pointing at serverURL.
func GenerateDefault(serverURL string) string {
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	return fmt.Sprintf(defaultTemplate, serverURL)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(GenerateDefault("")), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep
// their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders c.
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

const defaultServerURL = "http://localhost:8153/go"

const defaultTemplate = `server:
  url: %s
  token: ""
  product: go.cd
  timeout: 30s

versions: {}

cache:
  backend: sqlite
  path: ""

dev:
  listen: 127.0.0.1:8153
  jwt_secret: ""
  seed: ""
`
