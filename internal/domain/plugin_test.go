package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfgadmin/internal/registry"
	"cfgadmin/internal/wire"
)

const pluginInfosFixture = `[
  {"id": "script-executor", "type": "task", "status": {"state": "active"},
   "about": {"name": "Script Executor", "version": "1.0"},
   "extension_info": {"display_name": "Script", "task_settings": {"configurations": [
     {"key": "script", "metadata": {"secure": false, "required": true}},
     {"key": "password", "metadata": {"secure": true, "required": false}}]}}},
  {"id": "github.pr", "type": "scm", "status": {"state": "active"},
   "about": {"name": "GitHub PR"},
   "extension_info": {"scm_settings": {"configurations": [{"key": "url", "metadata": {"secure": false, "required": true}}]}}},
  {"id": "docker", "type": "elastic-agent", "status": {"state": "active"},
   "about": {"name": "Docker"},
   "extension_info": {"profile_settings": {"configurations": [{"key": "Image", "metadata": {"secure": false, "required": true}}]}}},
  {"id": "broken", "type": "task", "status": {"state": "invalid", "messages": ["bad jar"]}},
  {"id": "github.oauth", "type": "authorization", "status": {"state": "active"}}
]`

func registerFixturePlugins(t *testing.T) []string {
	t.Helper()
	var items []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(pluginInfosFixture), &items))
	infos, err := wire.DecodeEach("plugin info", items, DecodePluginInfo)
	require.NoError(t, err)

	ids, err := RegisterPlugins(infos)
	require.NoError(t, err)
	t.Cleanup(func() {
		TaskRegistry.Unregister("script-executor")
		SCMRegistry.Unregister("github.pr")
		ProfileRegistry.Unregister("docker")
	})
	return ids
}

func TestRegisterPlugins(t *testing.T) {
	ids := registerFixturePlugins(t)
	assert.Equal(t, []string{"script-executor", "github.pr", "docker"}, ids)

	v, ok := TaskRegistry.Lookup("script-executor")
	require.True(t, ok)
	assert.Equal(t, "Script", v.DisplayName)
	assert.Equal(t, registry.Plugin, v.Source)
	assert.Equal(t, []registry.Field{{Key: "script", Required: true}, {Key: "password", Secure: true}}, v.Fields)

	_, ok = TaskRegistry.Lookup("broken")
	assert.False(t, ok, "inactive plugins are skipped")

	builtin, _ := TaskRegistry.Lookup(TaskExec)
	assert.Equal(t, registry.Builtin, builtin.Source)
}

func TestPluginTaskFromRegistry(t *testing.T) {
	registerFixturePlugins(t)

	tasks := NewTasks()
	task, err := tasks.Create("script-executor", nil)
	require.NoError(t, err)

	pt := task.(*PluggableTask)
	assert.Equal(t, "script-executor", pt.PluginConfiguration.ID)
	assert.Equal(t, []string{"script", "password"}, keys(pt.Configuration))
	pw, _ := pt.Configuration.Find("password")
	assert.True(t, pw.Value.IsSecure())
	assert.Equal(t, "script:  password: ****", pt.String())

	raw, err := json.Marshal(pt)
	require.NoError(t, err)
	env, err := wire.Unwrap(raw)
	require.NoError(t, err)
	assert.Equal(t, TaskPluggable, env.Type)
}

func TestPluginSCMAndProfile(t *testing.T) {
	registerFixturePlugins(t)

	scms := NewSCMs()
	s, err := scms.Create("github.pr", map[string]any{"name": "pr-builds"})
	require.NoError(t, err)
	assert.Equal(t, "github.pr", s.PluginMetadata.ID)
	assert.True(t, s.AutoUpdate)
	assert.Equal(t, []string{"url"}, keys(s.Configuration))

	profiles := NewElasticProfiles()
	p, err := profiles.Create("docker", map[string]any{"id": "small"})
	require.NoError(t, err)
	assert.Equal(t, "docker", p.PluginID)
	assert.True(t, p.IsValid())

	_, err = profiles.Create("kubernetes", nil)
	assert.ErrorIs(t, err, registry.ErrUnknownVariant)
}

func keys(c *ConfigProperties) []string {
	var out []string
	for _, p := range c.All() {
		out = append(out, p.Key)
	}
	return out
}

func TestPluginInfoDisplayName(t *testing.T) {
	p := &PluginInfo{ID: "x"}
	assert.Equal(t, "x", p.DisplayName())
	p.About.Name = "About"
	assert.Equal(t, "About", p.DisplayName())
	p.ExtensionInfo.DisplayName = "Ext"
	assert.Equal(t, "Ext", p.DisplayName())
	assert.Nil(t, p.Fields())
}

func TestSCMAndPackageRepositoryRoundTrip(t *testing.T) {
	raw := `{"id": "abc-123", "name": "pr", "auto_update": false,
	  "plugin_metadata": {"id": "github.pr", "version": "1"},
	  "configuration": [{"key": "url", "value": "https://github.com/x"}, {"key": "token", "encrypted_value": "AES:t"}]}`
	s, err := DecodeSCM(json.RawMessage(raw))
	require.NoError(t, err)
	assert.False(t, s.AutoUpdate)
	tok, _ := s.Configuration.Find("token")
	assert.True(t, tok.Value.IsSecure())
	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))

	repo := `{"repo_id": "r1", "name": "npm", "plugin_metadata": {"id": "npm"},
	  "configuration": [],
	  "_embedded": {"packages": [{"id": "p1", "name": "left-pad", "auto_update": true, "configuration": []}]}}`
	r, err := DecodePackageRepository(json.RawMessage(repo))
	require.NoError(t, err)
	assert.Equal(t, "r1", r.Identity())
	assert.Equal(t, 1, r.Packages.Len())
	out, err = json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, repo, string(out))
}

func TestPluginMaterialResolvesSCM(t *testing.T) {
	scms := NewSCMs(&SCM{ID: "abc", Name: "pr"})
	m := &PluginMaterial{Ref: "abc"}
	s, ok := m.SCM(scms)
	require.True(t, ok)
	assert.Equal(t, "pr", s.Name)

	m.Ref = "zzz"
	_, ok = m.SCM(scms)
	assert.False(t, ok)
}

func TestElasticProfileValidation(t *testing.T) {
	p := &ElasticProfile{ID: "has space"}
	assert.False(t, p.IsValid())
	assert.True(t, p.Errors().Has("id"))
	assert.Equal(t, []string{"Plugin id must be present"}, p.Errors().Errors("pluginId"))
}
