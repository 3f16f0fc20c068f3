package selection

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenario() *Selection {
	return New([]string{"admin", "deployers", "auditors"}, []Member{
		{ID: "alice", Groups: []string{"admin", "deployers"}},
		{ID: "bob", Groups: []string{"deployers"}},
		{ID: "carol", Groups: []string{"admin"}},
	})
}

func TestInitialStates(t *testing.T) {
	s := scenario()
	assert.Equal(t, Indeterminate, s.State("admin"))
	assert.Equal(t, Indeterminate, s.State("deployers"))
	assert.Equal(t, Unchecked, s.State("auditors"))
	assert.Empty(t, s.Diff())

	all := New([]string{"x"}, []Member{{ID: "a", Groups: []string{"x"}}, {ID: "b", Groups: []string{"x"}}})
	assert.Equal(t, Checked, all.State("x"))
}

func TestRoleToggleScenario(t *testing.T) {
	s := scenario()

	st, err := s.Toggle("auditors")
	require.NoError(t, err)
	assert.Equal(t, Checked, st)

	_, _ = s.Toggle("admin")
	st, _ = s.Toggle("admin")
	assert.Equal(t, Indeterminate, st, "off then on nets zero")

	require.NoError(t, s.Clear("deployers"))

	ops := s.Diff()
	require.Len(t, ops, 2)
	assert.Equal(t, Operation{Group: "deployers", Add: []string{}, Remove: []string{"alice", "bob"}}, ops[0])
	assert.Equal(t, Operation{Group: "auditors", Add: []string{"alice", "bob", "carol"}, Remove: []string{}}, ops[1])
	assert.Equal(t, []string{"deployers", "auditors"}, s.Changed())
}

func TestCheckedGroupTogglesToUnchecked(t *testing.T) {
	s := New([]string{"x"}, []Member{{ID: "a", Groups: []string{"x"}}})
	st, _ := s.Toggle("x")
	assert.Equal(t, Unchecked, st)
	assert.Equal(t, []Operation{{Group: "x", Add: []string{}, Remove: []string{"a"}}}, s.Diff())
}

func TestUnknownGroup(t *testing.T) {
	s := scenario()
	_, err := s.Toggle("nope")
	assert.Error(t, err)
	assert.Error(t, s.Set("auditors", Indeterminate))
	assert.NoError(t, s.Set("admin", Indeterminate))
}

func TestGroupsOnlyOnMembersAreTracked(t *testing.T) {
	s := New(nil, []Member{{ID: "a", Groups: []string{"extra"}}})
	assert.Equal(t, []string{"extra"}, s.Groups())
	assert.Equal(t, Checked, s.State("extra"))
}

func TestDoubleToggleRestoresSnapshot(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		groups := make([]string, 1+rng.Intn(5))
		for i := range groups {
			groups[i] = fmt.Sprintf("g%d", i)
		}
		members := make([]Member, 1+rng.Intn(6))
		for i := range members {
			members[i].ID = fmt.Sprintf("m%d", i)
			for _, g := range groups {
				if rng.Intn(2) == 0 {
					members[i].Groups = append(members[i].Groups, g)
				}
			}
		}
		s := New(groups, members)
		for _, g := range groups {
			before := s.State(g)
			_, _ = s.Toggle(g)
			_, _ = s.Toggle(g)
			assert.Equal(t, before, s.State(g))
		}
		assert.Empty(t, s.Diff())
	}
}
