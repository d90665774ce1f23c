package fixture

import (
	"fmt"
	"strings"
	"sync"

	"cgr/internal/domain"
)

// SetupState is the stack of collector nodes that currently have live
// resources. Each stacked node owns the finalizers of the resources scoped
// to it.
type SetupState struct {
	mu    sync.Mutex
	stack []*stackEntry
}

type stackEntry struct {
	node *domain.Node
	fins []Finalizer
}

// NewSetupState returns an empty stack.
func NewSetupState() *SetupState {
	return &SetupState{}
}

// Setup pushes the nodes of chain that are not stacked yet. The current stack
// must be a prefix of chain; nodes are compared by ID.
func (s *SetupState) Setup(chain []*domain.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range chain {
		if i < len(s.stack) {
			if s.stack[i].node.ID != n.ID {
				return fmt.Errorf("setup %s: stack [%s] is not a prefix", n.ID, s.idsLocked())
			}
			continue
		}
		s.stack = append(s.stack, &stackEntry{node: n})
	}
	if len(s.stack) > len(chain) {
		return fmt.Errorf("setup: stack [%s] is deeper than the requested chain", s.idsLocked())
	}
	return nil
}

// TeardownExact pops every node that is not part of next, running the
// finalizers of each popped node. A nil next tears down everything.
func (s *SetupState) TeardownExact(next []*domain.Node) error {
	s.mu.Lock()
	keep := 0
	for keep < len(s.stack) && keep < len(next) && s.stack[keep].node.ID == next[keep].ID {
		keep++
	}
	popped := make([]*stackEntry, 0, len(s.stack)-keep)
	for i := len(s.stack) - 1; i >= keep; i-- {
		popped = append(popped, s.stack[i])
	}
	s.stack = s.stack[:keep]
	s.mu.Unlock()

	var errs []error
	for _, e := range popped {
		fins := e.fins
		e.fins = nil
		if err := RunFinalizers("errors tearing down "+e.node.ID, fins); err != nil {
			if domain.IsFatal(err) {
				return err
			}
			errs = append(errs, err)
		}
	}
	return domain.Combine("errors during teardown", errs)
}

// Stacked returns the IDs of the stacked nodes, outermost first.
func (s *SetupState) Stacked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.stack))
	for i, e := range s.stack {
		ids[i] = e.node.ID
	}
	return ids
}

// Owner returns the finalizer owner for a case under parent. Function
// scoped resources go to caseSink; broader ones to the stacked collector of
// their scope.
func (s *SetupState) Owner(parent *domain.Node, caseSink Sink) Owner {
	return &stateOwner{state: s, parent: parent, caseSink: caseSink}
}

func (s *SetupState) sinkFor(node *domain.Node) (Sink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.stack {
		if e.node.ID == node.ID {
			e := e
			return SinkFunc(func(fn Finalizer) {
				s.mu.Lock()
				e.fins = append(e.fins, fn)
				s.mu.Unlock()
			}), nil
		}
	}
	return nil, fmt.Errorf("collector %s is not set up", node.ID)
}

func (s *SetupState) idsLocked() string {
	ids := make([]string, len(s.stack))
	for i, e := range s.stack {
		ids[i] = e.node.ID
	}
	return strings.Join(ids, " ")
}

type stateOwner struct {
	state    *SetupState
	parent   *domain.Node
	caseSink Sink
}

func (o *stateOwner) Sink(scope Scope) (Sink, error) {
	if scope == ScopeFunction {
		if o.caseSink == nil {
			return nil, fmt.Errorf("no owner for function scoped resources")
		}
		return o.caseSink, nil
	}
	return o.state.sinkFor(ScopeNode(scope, o.parent))
}

// FinalizerList is a Sink that stores finalizers for one case.
type FinalizerList struct {
	mu   sync.Mutex
	fins []Finalizer
}

// AddFinalizer appends fn.
func (l *FinalizerList) AddFinalizer(fn Finalizer) {
	l.mu.Lock()
	l.fins = append(l.fins, fn)
	l.mu.Unlock()
}

// Len returns the number of pending finalizers.
func (l *FinalizerList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fins)
}

// Run invokes the stored finalizers last to first and clears the list.
func (l *FinalizerList) Run(msg string) error {
	l.mu.Lock()
	fins := l.fins
	l.fins = nil
	l.mu.Unlock()
	return RunFinalizers(msg, fins)
}
