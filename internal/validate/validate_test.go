package validate_test

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfgadmin/internal/validate"
	"cfgadmin/internal/wire"
)

type job struct {
	Name     string
	Timeout  wire.Scalar
	Instance wire.Scalar
	URL      string
	ID       string
	RunIf    []string
}

var jobRules = validate.Rules[job]{
	validate.Presence("name", func(j job) string { return j.Name }),
	validate.Unbounded("timeout", func(j job) wire.Scalar { return j.Timeout }, "never"),
	validate.Unbounded("runInstanceCount", func(j job) wire.Scalar { return j.Instance }, "all"),
	validate.URL("url", func(j job) string { return j.URL }),
	validate.ID("id", func(j job) string { return j.ID }),
	validate.OneOf("runIf", func(j job) []string { return j.RunIf }, []string{"passed", "failed", "any"}),
}

func TestErrorsOrderAndDisplay(t *testing.T) {
	var errs validate.Errors
	assert.True(t, errs.IsEmpty())
	errs.Add("url", "URL must be present")
	errs.Add("name", "Name is a duplicate")
	errs.Add("url", "this string is empty")
	assert.Equal(t, []string{"url", "name"}, errs.Fields())
	assert.Equal(t, []string{"URL must be present", "this string is empty"}, errs.Errors("url"))
	assert.Equal(t, "URL must be present. this string is empty.", errs.ForDisplay("url"))
	assert.False(t, errs.Has("branch"))

	round := validate.FromMap(errs.Map())
	assert.Equal(t, errs.Errors("url"), round.Errors("url"))
}

func TestPresence(t *testing.T) {
	for _, blank := range []string{"", "  ", "\t\n", "\v\f", "\u00a0 "} {
		errs := jobRules.Apply(job{Name: blank})
		assert.Equal(t, []string{"Name must be present"}, errs.Errors("name"), "%q", blank)
	}

	errs := jobRules.Apply(job{Name: " x "})
	assert.False(t, errs.Has("name"))

	errs = jobRules.Apply(job{Name: "build"})
	assert.True(t, errs.IsEmpty())
}

func TestPresenceLabelAndMessage(t *testing.T) {
	rules := validate.Rules[job]{
		validate.Presence("url", func(j job) string { return j.URL }, validate.Label("URL")),
		validate.Presence("id", func(j job) string { return j.ID }, validate.Message("Pick an id")),
	}
	errs := rules.Apply(job{})
	assert.Equal(t, []string{"URL must be present"}, errs.Errors("url"))
	assert.Equal(t, []string{"Pick an id"}, errs.Errors("id"))
}

func TestUnboundedAccepts(t *testing.T) {
	for _, s := range []wire.Scalar{wire.Null(), wire.Text("never"), wire.Int(0), wire.Int(10), wire.Text("10")} {
		errs := jobRules.Apply(job{Name: "a", Timeout: s})
		assert.False(t, errs.Has("timeout"), "timeout %q", s.String())
	}
	errs := jobRules.Apply(job{Name: "a", Instance: wire.Text("all")})
	assert.False(t, errs.Has("runInstanceCount"))
}

func TestUnboundedRejectsIdempotently(t *testing.T) {
	for _, s := range []wire.Scalar{wire.Text(""), wire.Int(-1), wire.Text("-1"), wire.Text("abc"), wire.Text("1.5"), wire.Text("all")} {
		j := job{Name: "a", Timeout: s}
		first := jobRules.Apply(j)
		second := jobRules.Apply(j)
		require.Equal(t, []string{"Timeout must be a non-negative integer or 'never'"}, first.Errors("timeout"), "timeout %q", s.String())
		assert.Equal(t, first.Map(), second.Map())
	}
}

func TestURLAndID(t *testing.T) {
	errs := jobRules.Apply(job{Name: "a", URL: "ftp://x", ID: ".hidden"})
	assert.Equal(t, []string{"Url must be a valid http(s) url"}, errs.Errors("url"))
	require.Len(t, errs.Errors("id"), 1)
	assert.True(t, strings.HasPrefix(errs.Errors("id")[0], "Invalid id."))

	errs = jobRules.Apply(job{Name: "a", URL: "https://ci.example.com", ID: "docker.small-1"})
	assert.True(t, errs.IsEmpty())

	errs = jobRules.Apply(job{Name: "a", ID: strings.Repeat("a", 256)})
	assert.True(t, errs.Has("id"))
}

func TestOneOfAndWhen(t *testing.T) {
	errs := jobRules.Apply(job{Name: "a", RunIf: []string{"passed", "sometimes"}})
	assert.Equal(t, []string{"Run if contains an invalid value 'sometimes'"}, errs.Errors("runIf"))

	only := validate.Rules[job]{
		validate.When(func(j job) bool { return j.URL != "" },
			validate.Format("url", func(j job) string { return j.URL }, regexp.MustCompile(`\$\{ID\}`))),
	}
	none := only.Apply(job{})
	assert.True(t, none.IsEmpty())
	bad := only.Apply(job{URL: "http://x"})
	assert.Equal(t, []string{"Url format is invalid"}, bad.Errors("url"))
}
