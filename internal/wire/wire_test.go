package wire_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfgadmin/internal/wire"
)

func TestCaseConversion(t *testing.T) {
	cases := map[string]string{
		"projectPath":      "project_path",
		"isSourceAFile":    "is_source_a_file",
		"url":              "url",
		"workingDirectory": "working_directory",
	}
	for camel, snake := range cases {
		assert.Equal(t, snake, wire.SnakeCase(camel))
		assert.Equal(t, camel, wire.CamelCase(snake))
	}
	assert.Equal(t, "Project path", wire.Humanize("projectPath"))
	assert.Equal(t, "Project path", wire.Humanize("project_path"))
	assert.Equal(t, "Url", wire.Humanize("url"))
}

func TestAttributesSnakeNested(t *testing.T) {
	attrs := wire.Attributes{
		"buildFile": "build.xml",
		"onCancel":  map[string]any{"workingDirectory": "x"},
		"configuration": []any{
			map[string]any{"encryptedValue": "abc"},
		},
	}
	raw, err := attrs.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"build_file":"build.xml","on_cancel":{"working_directory":"x"},"configuration":[{"encrypted_value":"abc"}]}`, string(raw))
}

func TestUnwrapConvertsErrorKeys(t *testing.T) {
	env, err := wire.Unwrap([]byte(`{"type":"tfs","attributes":{},"errors":{"project_path":["ProjectPath cannot be empty"]}}`))
	require.NoError(t, err)
	assert.Equal(t, "tfs", env.Type)
	assert.Equal(t, []string{"ProjectPath cannot be empty"}, env.Errors["projectPath"])

	_, err = wire.Unwrap([]byte(`{"attributes":{}}`))
	assert.ErrorIs(t, err, wire.ErrMissingType)
}

func TestStringListAlwaysArray(t *testing.T) {
	var doc struct {
		RunIf wire.StringList `json:"run_if"`
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"run_if":[]}`, string(raw))

	require.NoError(t, json.Unmarshal([]byte(`{"run_if":[]}`), &doc))
	assert.Nil(t, doc.RunIf)
}

func TestScalarKeepsRepresentation(t *testing.T) {
	for _, in := range []string{`null`, `10`, `"10"`, `"never"`, `true`} {
		var s wire.Scalar
		require.NoError(t, json.Unmarshal([]byte(in), &s))
		out, err := json.Marshal(s)
		require.NoError(t, err)
		assert.JSONEq(t, in, string(out), in)
	}

	n, ok := wire.Text("42").Count()
	assert.True(t, ok)
	assert.EqualValues(t, 42, n)
	for _, bad := range []wire.Scalar{wire.Text(""), wire.Text("-1"), wire.Text("1.5"), wire.Text("abc"), wire.Null()} {
		_, ok := bad.Count()
		assert.False(t, ok, bad.String())
	}
}

func TestEmbedded(t *testing.T) {
	items, err := wire.Embedded([]byte(`{"_embedded":{"users":[{"login_name":"a"},{"login_name":"b"}]}}`), "users")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = wire.Embedded([]byte(`{"_embedded":{}}`), "users")
	assert.Error(t, err)
}

func TestDecodeEachIsolatesFailures(t *testing.T) {
	items := []json.RawMessage{json.RawMessage(`1`), json.RawMessage(`"x"`), json.RawMessage(`3`)}
	got, err := wire.DecodeEach("numbers", items, func(raw json.RawMessage) (int, error) {
		var n int
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, errors.New("not a number")
		}
		return n, nil
	})
	assert.Equal(t, []int{1, 3}, got)
	be, ok := wire.AsBatchError(err)
	require.True(t, ok)
	assert.Equal(t, 3, be.Total)
	require.Len(t, be.Items, 1)
	assert.Equal(t, 1, be.Items[0].Index)
}
