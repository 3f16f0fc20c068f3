package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfgadmin/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "go.cd", cfg.Server.Product)
	assert.Equal(t, config.CacheSQLite, cfg.Cache.Backend)
	d, err := cfg.TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
	assert.Equal(t, 3, cfg.Version("user", 3))
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
server:
  url: https://ci.example.com/go
versions:
  pipeline: 10
cache:
  backend: badger
  path: /tmp/tokens
`))
	require.NoError(t, err)
	assert.Equal(t, "https://ci.example.com/go", cfg.Server.URL)
	assert.Equal(t, "go.cd", cfg.Server.Product)
	assert.Equal(t, 10, cfg.Version("pipeline", 11))
	assert.Equal(t, config.CacheBadger, cfg.Cache.Backend)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"bad backend":    "cache:\n  backend: redis\n",
		"bad url":        "server:\n  url: not a url\n",
		"unknown family": "versions:\n  widget: 2\n",
		"zero version":   "versions:\n  user: 0\n",
		"bad timeout":    "server:\n  timeout: soon\n",
		"memory path":    "cache:\n  backend: memory\n  path: /tmp/x\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	_, err := config.Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cfgctl config init")

	cfg, err := config.LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(config.GenerateDefault("http://gocd.local:8153/go")), 0o644))
	cfg, err = config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://gocd.local:8153/go", cfg.Server.URL)

	out, err := cfg.YAML()
	require.NoError(t, err)
	again, err := config.FromYAML([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}
