package engine

import (
	"errors"
	"fmt"

	"cgr/internal/domain"
	"cgr/internal/fixture"
)

// ErrInvalidTransition is returned when a group is driven out of order.
var ErrInvalidTransition = errors.New("invalid group state transition")

// State is the lifecycle state of a Group.
type State int

const (
	StateForming State = iota
	StateSetupRunning
	StateReady
	StateCallRunning
	StateTeardownRunning
	StateClosed
	StateInvalidated
)

func (s State) String() string {
	switch s {
	case StateForming:
		return "forming"
	case StateSetupRunning:
		return "setup-running"
	case StateReady:
		return "ready"
	case StateCallRunning:
		return "call-running"
	case StateTeardownRunning:
		return "teardown-running"
	case StateClosed:
		return "closed"
	case StateInvalidated:
		return "invalidated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// validTransitions maps each state to the states it may move to.
var validTransitions = map[State]map[State]bool{
	StateForming: {
		StateSetupRunning: true,
		StateInvalidated:  true,
	},
	StateSetupRunning:    {StateReady: true},
	StateReady:           {StateCallRunning: true},
	StateCallRunning:     {StateTeardownRunning: true},
	StateTeardownRunning: {StateClosed: true},
}

// Group is the set of cases sharing one group key. It owns the members,
// their rewritten binding tables and their per-case finalizers.
type Group struct {
	Key string

	members    []*domain.Case
	parent     *domain.Node
	consistent bool
	state      State

	tables     map[string]fixture.Table
	finalizers map[string]*fixture.FinalizerList
}

func newGroup(key string, parent *domain.Node) *Group {
	return &Group{
		Key:        key,
		parent:     parent,
		consistent: true,
		tables:     make(map[string]fixture.Table),
		finalizers: make(map[string]*fixture.FinalizerList),
	}
}

// AddChild appends c. A member whose parent differs from the anchor, or
// that has no parent at all, invalidates the parent consistency of the
// whole group.
func (g *Group) AddChild(c *domain.Case) error {
	if g.state != StateForming {
		return fmt.Errorf("add %s to group %s in state %s: %w", c.ID, g.Key, g.state, ErrInvalidTransition)
	}
	if c.Parent == nil || c.Parent != g.parent {
		g.consistent = false
	}
	c.GroupID = g.Key
	g.members = append(g.members, c)
	g.finalizers[c.ID] = &fixture.FinalizerList{}
	return nil
}

// Members returns the members in declaration order.
func (g *Group) Members() []*domain.Case {
	return append([]*domain.Case(nil), g.members...)
}

// Len returns the number of members.
func (g *Group) Len() int { return len(g.members) }

// Parent returns the common parent, or nil once the group is inconsistent.
func (g *Group) Parent() *domain.Node {
	if !g.consistent {
		return nil
	}
	return g.parent
}

// State returns the current lifecycle state.
func (g *Group) State() State { return g.state }

func (g *Group) transition(to State) error {
	if !validTransitions[g.state][to] {
		return fmt.Errorf("group %s: %s -> %s: %w", g.Key, g.state, to, ErrInvalidTransition)
	}
	g.state = to
	return nil
}

// seal ends the forming phase of an inconsistent group.
func (g *Group) seal() {
	if !g.consistent && g.state == StateForming {
		g.state = StateInvalidated
	}
}

// bind stores the rewritten table of c. A member is bound once.
func (g *Group) bind(c *domain.Case, table fixture.Table) error {
	if _, ok := g.tables[c.ID]; ok {
		return fmt.Errorf("case %s is already bound in group %s", c.ID, g.Key)
	}
	g.tables[c.ID] = table
	return nil
}

// Table returns the rewritten table of c.
func (g *Group) Table(c *domain.Case) (fixture.Table, bool) {
	t, ok := g.tables[c.ID]
	return t, ok
}

// Sink returns the per-case finalizer list of c.
func (g *Group) Sink(c *domain.Case) fixture.Sink {
	return g.finalizers[c.ID]
}

// Pending returns the number of finalizers c still has to run.
func (g *Group) Pending(c *domain.Case) int {
	l, ok := g.finalizers[c.ID]
	if !ok {
		return 0
	}
	return l.Len()
}

// TeardownChild runs the finalizers of c, most recent first. One failure is
// returned as is; several are combined in invocation order. The group closes
// once every member has been torn down.
func (g *Group) TeardownChild(c *domain.Case) error {
	l, ok := g.finalizers[c.ID]
	if !ok {
		return fmt.Errorf("case %s is not a pending member of group %s", c.ID, g.Key)
	}
	delete(g.finalizers, c.ID)
	err := l.Run(fmt.Sprintf("errors while tearing down %s", c.ID))

	if len(g.finalizers) == 0 && g.state == StateTeardownRunning {
		g.state = StateClosed
	}
	return err
}
