// Package selection computes tri-state group membership over a set of selected
// members and reduces edits to per-group add/remove operations.
package selection

import (
	"fmt"
	"sort"
)

// State is the summary of one group over the selected members.
type State int

const (
	Unchecked State = iota
	Checked
	Indeterminate
)

func (s State) String() string {
	switch s {
	case Checked:
		return "checked"
	case Indeterminate:
		return "indeterminate"
	default:
		return "unchecked"
	}
}

// Member is one selected entity and the groups it currently belongs to.
type Member struct {
	ID     string
	Groups []string
}

// Operation is the net change for one group.
type Operation struct {
	Group  string   `json:"group"`
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
}

// Selection holds the initial snapshot and the current state of every group.
type Selection struct {
	groups  []string
	members []Member
	has     map[string]map[string]bool
	initial map[string]State
	current map[string]State
}

// New computes the state of every group over members. Groups held by a member
// but missing from groups are added after the given ones, in first-seen order.
func New(groups []string, members []Member) *Selection {
	s := &Selection{
		members: append([]Member(nil), members...),
		has:     make(map[string]map[string]bool),
		initial: make(map[string]State),
		current: make(map[string]State),
	}
	seen := make(map[string]bool)
	add := func(g string) {
		if !seen[g] {
			seen[g] = true
			s.groups = append(s.groups, g)
		}
	}
	for _, g := range groups {
		add(g)
	}
	for _, m := range members {
		set := make(map[string]bool, len(m.Groups))
		for _, g := range m.Groups {
			set[g] = true
			add(g)
		}
		s.has[m.ID] = set
	}
	for _, g := range s.groups {
		st := s.compute(g)
		s.initial[g] = st
		s.current[g] = st
	}
	return s
}

func (s *Selection) compute(group string) State {
	held := 0
	for _, m := range s.members {
		if s.has[m.ID][group] {
			held++
		}
	}
	switch {
	case held == 0:
		return Unchecked
	case held == len(s.members):
		return Checked
	default:
		return Indeterminate
	}
}

// Groups returns every group in display order.
func (s *Selection) Groups() []string { return append([]string(nil), s.groups...) }

// Members returns the selected member ids.
func (s *Selection) Members() []string {
	out := make([]string, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m.ID)
	}
	return out
}

func (s *Selection) State(group string) State   { return s.current[group] }
func (s *Selection) Initial(group string) State { return s.initial[group] }

// Toggle flips a group relative to its initial snapshot: away from the initial
// state it returns to it, otherwise it moves to Checked, or to Unchecked for a
// group that started Checked. Two toggles always restore the snapshot.
func (s *Selection) Toggle(group string) (State, error) {
	init, ok := s.initial[group]
	if !ok {
		return Unchecked, fmt.Errorf("unknown group %q", group)
	}
	switch {
	case s.current[group] != init:
		s.current[group] = init
	case init == Checked:
		s.current[group] = Unchecked
	default:
		s.current[group] = Checked
	}
	return s.current[group], nil
}

// Set forces a group's state. Indeterminate is only accepted when it is the
// group's initial state.
func (s *Selection) Set(group string, st State) error {
	init, ok := s.initial[group]
	if !ok {
		return fmt.Errorf("unknown group %q", group)
	}
	if st == Indeterminate && init != Indeterminate {
		return fmt.Errorf("group %q cannot become indeterminate", group)
	}
	s.current[group] = st
	return nil
}

// Clear unchecks a group, removing it from every selected member.
func (s *Selection) Clear(group string) error { return s.Set(group, Unchecked) }

// Changed lists the groups whose state differs from the snapshot.
func (s *Selection) Changed() []string {
	var out []string
	for _, g := range s.groups {
		if s.current[g] != s.initial[g] {
			out = append(out, g)
		}
	}
	return out
}

// Diff returns one operation per group with a net change. Member ids keep the
// order in which members were selected.
func (s *Selection) Diff() []Operation {
	var ops []Operation
	for _, g := range s.groups {
		st := s.current[g]
		if st == s.initial[g] || st == Indeterminate {
			continue
		}
		op := Operation{Group: g, Add: []string{}, Remove: []string{}}
		for _, m := range s.members {
			held := s.has[m.ID][g]
			switch {
			case st == Checked && !held:
				op.Add = append(op.Add, m.ID)
			case st == Unchecked && held:
				op.Remove = append(op.Remove, m.ID)
			}
		}
		if len(op.Add) == 0 && len(op.Remove) == 0 {
			continue
		}
		ops = append(ops, op)
	}
	return ops
}

// Summary counts groups per state, for display.
func (s *Selection) Summary() map[State][]string {
	out := make(map[State][]string)
	for _, g := range s.groups {
		out[s.current[g]] = append(out[s.current[g]], g)
	}
	for k := range out {
		sort.Strings(out[k])
	}
	return out
}
