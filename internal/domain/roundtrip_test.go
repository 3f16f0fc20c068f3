package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfgadmin/internal/secure"
	"cfgadmin/internal/wire"
)

func str(s string) *string { return &s }

// reencode marshals v and decodes the result back.
func reencode[T any](t *testing.T, v T, decode func(json.RawMessage) (T, error)) T {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	out, err := decode(raw)
	require.NoError(t, err, string(raw))
	return out
}

func pendingSecure(text string) *secure.Value {
	v := secure.Plain(text)
	v.BecomeSecure()
	return v
}

func TestTaskVariantsRoundTrip(t *testing.T) {
	cases := map[string]Task{
		"exec with arguments": &ExecTask{
			Command:          "make",
			Arguments:        wire.StringList{"test", "-v"},
			WorkingDirectory: str("src"),
			TaskBase: TaskBase{
				RunIf:    wire.StringList{"passed", "failed"},
				OnCancel: &ExecTask{Command: "kill", Args: str("-9 1")},
			},
		},
		"exec bare": &ExecTask{Command: "true"},
		"ant": &AntTask{BuildTask{
			BuildFile: str("build.xml"),
			Target:    str("clean"),
			TaskBase:  TaskBase{RunIf: wire.StringList{"any"}},
		}},
		"nant": &NAntTask{
			BuildTask: BuildTask{Target: str("all"), WorkingDirectory: str("win")},
			NAntPath:  str(`C:\nant`),
		},
		"rake with fetch on cancel": &RakeTask{BuildTask{
			Target: str("deploy"),
			TaskBase: TaskBase{OnCancel: &FetchTask{
				Stage: "dist", Job: "pkg", Source: "out/app.tgz", IsSourceAFile: true,
			}},
		}},
		"fetch": &FetchTask{
			Pipeline:    str("upstream"),
			Stage:       "dist",
			Job:         "pkg",
			Source:      "out/",
			Destination: str("lib"),
			TaskBase:    TaskBase{RunIf: wire.StringList{"passed"}},
		},
		"pluggable": &PluggableTask{
			PluginConfiguration: PluginMetadata{ID: "script-executor", Version: "1"},
			Configuration: NewConfigProperties(
				NewConfigProperty("script", "echo hi"),
				&ConfigProperty{Key: "token", Value: secure.Cipher("AES:xyz")},
				&ConfigProperty{Key: "pending", Value: pendingSecure("s3cret")},
			),
		},
	}
	for name, task := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, task, reencode(t, task, DecodeTask))
		})
	}
}

func TestMaterialVariantsRoundTrip(t *testing.T) {
	cases := map[string]Material{
		"git without branch": &GitMaterial{URL: "https://example.com/a.git", AutoUpdate: true},
		"git": &GitMaterial{
			MaterialBase: MaterialBase{Name: "repo"},
			URL:          "https://example.com/b.git",
			Branch:       "main",
			Username:     str("bob"),
			Password:     secure.Cipher("AES:pw"),
			Destination:  str("src"),
			Filter:       &Filter{Ignore: wire.StringList{"*.md"}},
			InvertFilter: true,
			ShallowClone: true,
		},
		"svn": &SvnMaterial{
			MaterialBase:   MaterialBase{Name: "svn"},
			URL:            "svn://example.com/trunk",
			Username:       str("alice"),
			Password:       secure.Plain("secret"),
			CheckExternals: true,
			AutoUpdate:     true,
		},
		"hg": &HgMaterial{URL: "https://example.com/hg", Branch: str("default"), Filter: &Filter{}},
		"p4": &P4Material{
			Port:       "p4:1666",
			UseTickets: true,
			View:       "//depot/... //ws/...",
			Username:   str("p4user"),
			AutoUpdate: true,
		},
		"tfs": &TfsMaterial{
			URL:         "https://tfs.example.com",
			Domain:      str("corp"),
			Username:    "builder",
			Password:    secure.Cipher("AES:t"),
			ProjectPath: "$/proj",
		},
		"dependency": &DependencyMaterial{
			MaterialBase:        MaterialBase{Name: "up"},
			Pipeline:            "upstream",
			Stage:               "dist",
			IgnoreForScheduling: true,
		},
		"package": &PackageMaterial{MaterialBase: MaterialBase{Name: "pkg"}, Ref: "f1d2"},
		"plugin": &PluginMaterial{
			MaterialBase: MaterialBase{Name: "pr"},
			Ref:          "scm-1",
			Destination:  str("pr"),
			Filter:       &Filter{Ignore: wire.StringList{"docs/**"}},
		},
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, m, reencode(t, m, DecodeMaterial))
		})
	}
}

func TestGitBranchDefaultsOnlyWhenAbsent(t *testing.T) {
	m, err := DecodeMaterial(json.RawMessage(`{"type": "git", "attributes": {"url": "u"}}`))
	require.NoError(t, err)
	assert.Equal(t, "master", m.(*GitMaterial).Branch)

	m, err = DecodeMaterial(json.RawMessage(`{"type": "git", "attributes": {"url": "u", "branch": ""}}`))
	require.NoError(t, err)
	assert.Equal(t, "", m.(*GitMaterial).Branch)
}

func TestEmptyPlainPasswordIsOmitted(t *testing.T) {
	for _, m := range []Material{
		&GitMaterial{URL: "u", Password: secure.Plain("")},
		&TfsMaterial{URL: "u", Username: "x", ProjectPath: "p", Password: secure.Plain("")},
	} {
		raw, err := json.Marshal(m)
		require.NoError(t, err)
		env, err := wire.Unwrap(raw)
		require.NoError(t, err)
		var attrs map[string]any
		require.NoError(t, json.Unmarshal(env.Attributes, &attrs))
		assert.NotContains(t, attrs, "password", m.Type())
		assert.NotContains(t, attrs, "encrypted_password", m.Type())
	}

	svn := &SvnMaterial{URL: "u", Password: secure.Cipher("AES:x")}
	require.NoError(t, svn.Password.Edit())
	raw, err := json.Marshal(svn)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"password":""`)
}

func TestTrackingToolVariantsRoundTrip(t *testing.T) {
	for _, tool := range []TrackingTool{
		&GenericTracker{URLPattern: "https://tracker/${ID}", Regex: `#(\d+)`},
		&MingleTracker{BaseURL: "https://mingle.example.com", ProjectIdentifier: "go", MQLGroupingConditions: str("status > 'Done'")},
		&MingleTracker{BaseURL: "https://mingle.example.com", ProjectIdentifier: "go"},
	} {
		assert.Equal(t, tool, reencode(t, tool, DecodeTrackingTool), tool.Type())
	}
}

func TestRoleVariantsRoundTrip(t *testing.T) {
	for _, r := range []Role{
		&GoCDRole{RoleBase: RoleBase{Name: "ops"}, Users: wire.StringList{"alice", "bob"}},
		&GoCDRole{RoleBase: RoleBase{Name: "empty"}},
		&PluginRole{
			RoleBase:     RoleBase{Name: "ldap-admins"},
			AuthConfigID: "ldap",
			Properties:   NewConfigProperties(NewConfigProperty("UserGroupMembershipAttribute", "memberOf")),
		},
	} {
		assert.Equal(t, r, reencode(t, r, DecodeRole), r.Identity())
	}
}

func TestUserRoundTrip(t *testing.T) {
	for _, u := range []*User{
		{
			LoginName:      "alice",
			DisplayName:    "Alice",
			Email:          "alice@example.com",
			EmailMe:        true,
			CheckinAliases: wire.StringList{"al", "alice@old"},
			IsAdmin:        true,
			Roles:          []RoleRef{{Name: "ops", Type: RoleGoCD}, {Name: "ldap-admins", Type: RolePlugin}},
		},
		{LoginName: "bob", Enabled: true},
	} {
		assert.Equal(t, u, reencode(t, u, DecodeUser), u.LoginName)
	}
}

func TestSCMRoundTrip(t *testing.T) {
	s := &SCM{
		ID:             "0f3c",
		Name:           "pull-requests",
		PluginMetadata: PluginMetadata{ID: "github.pr", Version: "1.2"},
		Configuration: NewConfigProperties(
			NewConfigProperty("url", "https://github.com/org/repo"),
			&ConfigProperty{Key: "token", Value: secure.Cipher("AES:1")},
		),
	}
	assert.Equal(t, s, reencode(t, s, DecodeSCM))
}

func TestElasticProfileRoundTrip(t *testing.T) {
	p := &ElasticProfile{
		ID:       "docker",
		PluginID: "cd.go.contrib.elastic-agent.docker",
		Properties: NewConfigProperties(
			NewConfigProperty("Image", "alpine:3"),
			&ConfigProperty{Key: "RegistryPassword", Value: pendingSecure("hunter2")},
		),
	}
	assert.Equal(t, p, reencode(t, p, DecodeElasticProfile))
}

func TestPackageRepositoryRoundTrip(t *testing.T) {
	r := &PackageRepository{
		RepoID:         "npm-public",
		Name:           "npm",
		PluginMetadata: PluginMetadata{ID: "npm"},
		Configuration:  NewConfigProperties(NewConfigProperty("REPO_URL", "https://registry.npmjs.org")),
		Packages: NewPackages(&Package{
			ID:            "p1",
			Name:          "left-pad",
			Configuration: NewConfigProperties(NewConfigProperty("PACKAGE_NAME", "left-pad")),
		}),
	}
	assert.Equal(t, r, reencode(t, r, DecodePackageRepository))
}
