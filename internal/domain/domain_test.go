package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfgadmin/internal/registry"
	"cfgadmin/internal/wire"
)

const pipelineFixture = `{
  "name": "build-linux",
  "group": "first",
  "label_template": "${COUNT}",
  "materials": [
    {"type": "git", "attributes": {"url": "https://example.com/repo.git", "name": "repo", "auto_update": false, "shallow_clone": true}},
    {"type": "dependency", "attributes": {"pipeline": "upstream", "stage": "dist", "name": "up"}}
  ],
  "stages": [
    {
      "name": "compile",
      "fetch_materials": true,
      "approval": {"type": "success", "authorization": {"roles": ["admin"], "users": []}},
      "environment_variables": [],
      "jobs": [
        {
          "name": "unit",
          "run_instance_count": null,
          "timeout": "never",
          "resources": ["linux"],
          "tasks": [
            {"type": "exec", "attributes": {"command": "make", "arguments": ["test"], "run_if": ["passed"],
              "on_cancel": {"type": "exec", "attributes": {"command": "kill", "args": "-9 1", "run_if": [], "on_cancel": null}}}}
          ],
          "tabs": [{"name": "coverage", "path": "out/index.html"}],
          "properties": [],
          "environment_variables": [
            {"name": "GO", "secure": false, "value": "1.24"},
            {"name": "TOKEN", "secure": true, "encrypted_value": "AES:abc"}
          ]
        }
      ]
    }
  ],
  "environment_variables": [],
  "parameters": [{"name": "env", "value": "ci"}],
  "tracking_tool": {"type": "generic", "attributes": {"url_pattern": "https://tracker/${ID}", "regex": "#(\\d+)"}}
}`

func TestPipelineRoundTrip(t *testing.T) {
	p, err := DecodePipeline(json.RawMessage(pipelineFixture))
	require.NoError(t, err)
	assert.True(t, p.IsValid(), p.Errors().Map())

	first, err := json.Marshal(p)
	require.NoError(t, err)
	again, err := DecodePipeline(first)
	require.NoError(t, err)
	second, err := json.Marshal(again)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))

	assert.Equal(t, 2, p.Materials.Len())
	git := p.Materials.At(0).(*GitMaterial)
	assert.Equal(t, "master", git.Branch)
	assert.False(t, git.AutoUpdate)
	assert.True(t, git.ShallowClone)

	job := p.Stages.At(0).Jobs.At(0)
	assert.True(t, job.Timeout.IsText())
	assert.True(t, job.RunInstanceCount.IsNull())
	token, ok := job.EnvironmentVariables.Find("TOKEN")
	require.True(t, ok)
	assert.True(t, token.Value.IsSecure())
	assert.Equal(t, "AES:abc", token.Value.Value())

	tool, ok := p.TrackingTool.(*GenericTracker)
	require.True(t, ok)
	assert.Equal(t, "https://tracker/${ID}", tool.URLPattern)
}

func TestPipelineWithoutTrackingToolEmitsNull(t *testing.T) {
	p := NewPipeline("p")
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "tracking_tool")
	assert.Nil(t, doc["tracking_tool"])
	assert.Equal(t, []any{}, doc["materials"])
}

func TestPipelineValidation(t *testing.T) {
	p := NewPipeline(".bad")
	assert.False(t, p.IsValid())
	assert.Equal(t, []string{"name", "materials", "stages"}, p.Errors().Fields())
	assert.Equal(t, []string{"Pipeline must have at least one material"}, p.Errors().Errors("materials"))
	assert.Equal(t, []string{"Pipeline must have at least one stage or a template"}, p.Errors().Errors("stages"))

	tmpl := "base"
	p.Template = &tmpl
	p.Stages.Add(NewStage("s"))
	p.Validate()
	assert.Equal(t, []string{"Pipeline cannot have both stages and a template"}, p.Errors().Errors("stages"))
}

func TestOnCancelChain(t *testing.T) {
	raw := `{"type": "ant", "attributes": {"target": "clean", "build_file": "build.xml", "run_if": ["any"],
	  "on_cancel": {"type": "rake", "attributes": {"target": "abort",
	    "on_cancel": {"type": "exec", "attributes": {"command": "echo", "arguments": ["bye"]}}}}}}`
	task, err := DecodeTask(json.RawMessage(raw))
	require.NoError(t, err)

	ant := task.(*AntTask)
	rake := ant.OnCancel.(*RakeTask)
	exec := rake.OnCancel.(*ExecTask)
	assert.Equal(t, "echo bye", exec.String())
	assert.Nil(t, exec.OnCancel)

	out, err := json.Marshal(task)
	require.NoError(t, err)
	env, err := wire.Unwrap(out)
	require.NoError(t, err)
	var attrs map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(env.Attributes, &attrs))
	assert.JSONEq(t, `["any"]`, string(attrs["run_if"]))

	inner, err := wire.Unwrap(attrs["on_cancel"])
	require.NoError(t, err)
	assert.Equal(t, TaskRake, inner.Type)

	leaf := &ExecTask{Command: "ls"}
	out, err = json.Marshal(leaf)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"exec","attributes":{"command":"ls","arguments":[],"run_if":[],"on_cancel":null}}`, string(out))
}

func TestTaskStrings(t *testing.T) {
	args := "-a"
	target, file := "dist", "build.xml"
	pipeline := "up"

	cfg := NewConfigProperties(NewConfigProperty("Url", "http://x"))
	secret := NewConfigProperty("Token", "s3cret")
	secret.Value.BecomeSecure()
	cfg.Add(secret)

	tests := []struct {
		name string
		task Task
		want string
	}{
		{"exec args", &ExecTask{Command: "bash", Args: &args}, "bash -a"},
		{"exec arguments", &ExecTask{Command: "make", Arguments: []string{"a", "b"}}, "make a b"},
		{"ant", &AntTask{BuildTask{Target: &target, BuildFile: &file}}, "dist build.xml"},
		{"fetch", &FetchTask{Pipeline: &pipeline, Stage: "s", Job: "j", Source: "out"}, "up s j"},
		{"pluggable", &PluggableTask{PluginConfiguration: PluginMetadata{ID: "p"}, Configuration: cfg}, "Url: http://x Token: ****"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.task.String())
		})
	}
}

func TestTaskValidation(t *testing.T) {
	exec := &ExecTask{TaskBase: TaskBase{RunIf: []string{"sometimes"}}}
	assert.False(t, exec.IsValid())
	assert.Equal(t, []string{"Command must be present"}, exec.Errors().Errors("command"))
	assert.Equal(t, []string{"Run if contains an invalid value 'sometimes'"}, exec.Errors().Errors("runIf"))

	fetch := &FetchTask{}
	fetch.Validate()
	assert.Equal(t, []string{"stage", "job", "source"}, fetch.Errors().Fields())

	plug := &PluggableTask{}
	plug.Validate()
	assert.Equal(t, "Plugin must be present.", plug.Errors().ForDisplay("pluginConfiguration"))

	bad := &ExecTask{Command: "ok", TaskBase: TaskBase{OnCancel: &ExecTask{}}}
	assert.False(t, bad.IsValid(), "invalid on_cancel task fails its owner")
}

func TestUnknownVariant(t *testing.T) {
	_, err := DecodeTask(json.RawMessage(`{"type": "gradle", "attributes": {}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrUnknownVariant))
	assert.EqualError(t, err, `unknown task type "gradle"`)

	_, err = DecodeMaterial(json.RawMessage(`{"attributes": {}}`))
	assert.ErrorIs(t, err, wire.ErrMissingType)
}

func TestNestedDecodeFailureFailsOwner(t *testing.T) {
	raw := `{"name": "j", "tasks": [{"type": "exec", "attributes": {"command": "ls"}}, {"type": "gradle", "attributes": {}}]}`
	_, err := DecodeJob(json.RawMessage(raw))
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrUnknownVariant)
}

func TestTopLevelDecodeIsolatesItems(t *testing.T) {
	items := []json.RawMessage{
		json.RawMessage(`{"name": "a"}`),
		json.RawMessage(`{"name": "b", "tasks": [{"type": "gradle"}]}`),
		json.RawMessage(`{"name": "c"}`),
	}
	jobs := NewJobs()
	err := jobs.Decode(items, DecodeJob)

	batch, ok := wire.AsBatchError(err)
	require.True(t, ok)
	require.Len(t, batch.Items, 1)
	assert.Equal(t, 1, batch.Items[0].Index)
	assert.Equal(t, []string{"a", "c"}, collectNames(jobs))
}

func collectNames(jobs *Jobs) []string {
	var out []string
	for _, j := range jobs.All() {
		out = append(out, j.Name)
	}
	return out
}

func TestJobValidation(t *testing.T) {
	j := NewJob("unit")
	j.Timeout = wire.Text("-1")
	j.RunInstanceCount = wire.Text("all")
	profile := "docker"
	j.ElasticProfileID = &profile
	j.Resources = []string{"linux"}

	assert.False(t, j.IsValid())
	assert.Equal(t, []string{"Timeout must be a non-negative integer or 'never'"}, j.Errors().Errors("timeout"))
	assert.False(t, j.Errors().Has("runInstanceCount"))
	assert.Equal(t, []string{"Job cannot have both resources and an elastic profile id"}, j.Errors().Errors("elasticProfileId"))

	j.Timeout = wire.Int(30)
	j.Resources = nil
	assert.True(t, j.IsValid())
}

func TestDuplicateMaterials(t *testing.T) {
	materials := NewMaterials(
		&GitMaterial{MaterialBase: MaterialBase{Name: "repo"}, URL: "https://a"},
		&HgMaterial{MaterialBase: MaterialBase{Name: "repo"}, URL: "https://b"},
		&GitMaterial{URL: "https://c"},
	)
	assert.False(t, materials.Validate())
	assert.Equal(t, []string{"Name is a duplicate"}, materials.At(0).Errors().Errors("name"))
	assert.Equal(t, []string{"Name is a duplicate"}, materials.At(1).Errors().Errors("name"))
	assert.True(t, materials.At(2).Errors().IsEmpty())
}

func TestServerErrorsAttachToMaterial(t *testing.T) {
	raw := `{"type": "tfs", "attributes": {"url": "http://tfs", "username": "bob"},
	  "errors": {"project_path": ["Project path must be present"]}}`
	m, err := DecodeMaterial(json.RawMessage(raw))
	require.NoError(t, err)

	assert.Equal(t, []string{"Project path must be present"}, m.Errors().Errors("projectPath"))
	assert.Equal(t, "Project path must be present.", m.Errors().ForDisplay("projectPath"))

	tfs := m.(*TfsMaterial)
	assert.False(t, tfs.IsValid())
	assert.Equal(t, []string{"Project path must be present"}, tfs.Errors().Errors("projectPath"))
}

func TestSecureMaterialPassword(t *testing.T) {
	_, err := DecodeMaterial(json.RawMessage(`{"type": "git", "attributes": {"url": "u", "password": "p", "encrypted_password": "c"}}`))
	require.Error(t, err)

	m, err := DecodeMaterial(json.RawMessage(`{"type": "svn", "attributes": {"url": "u", "encrypted_password": "AES:x"}}`))
	require.NoError(t, err)
	svn := m.(*SvnMaterial)
	require.NoError(t, svn.Password.Edit())
	require.NoError(t, svn.Password.Set("new"))

	out, err := json.Marshal(svn)
	require.NoError(t, err)
	env, err := wire.Unwrap(out)
	require.NoError(t, err)
	var attrs map[string]any
	require.NoError(t, json.Unmarshal(env.Attributes, &attrs))
	assert.Equal(t, "new", attrs["password"])
	assert.NotContains(t, attrs, "encrypted_password")
}

func TestTrackingToolValidation(t *testing.T) {
	g := &GenericTracker{URLPattern: "https://tracker/issue"}
	assert.False(t, g.IsValid())
	assert.Equal(t, []string{"URL pattern must contain the string '${ID}'"}, g.Errors().Errors("urlPattern"))

	m := &MingleTracker{BaseURL: "ftp://x"}
	assert.False(t, m.IsValid())
	assert.True(t, m.Errors().Has("baseUrl"))
}

func TestCollectionCreateBuildsRegisteredVariant(t *testing.T) {
	tasks := NewTasks()
	task, err := tasks.Create(TaskFetch, wire.Attributes{"stage": "dist", "job": "pkg", "source": "out", "isSourceAFile": true})
	require.NoError(t, err)
	fetch := task.(*FetchTask)
	assert.True(t, fetch.IsSourceAFile)
	assert.Equal(t, 1, tasks.Len())

	_, err = tasks.Create("gradle", nil)
	assert.ErrorIs(t, err, registry.ErrUnknownVariant)
}
