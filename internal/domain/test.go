package domain

import (
	"cgr/internal/coop"
)

// NodeKind is the kind of a collector node in the case tree.
type NodeKind int

const (
	KindSession NodeKind = iota
	KindPackage
	KindModule
	KindClass
	KindCase
)

func (k NodeKind) String() string {
	switch k {
	case KindSession:
		return "session"
	case KindPackage:
		return "package"
	case KindModule:
		return "module"
	case KindClass:
		return "class"
	case KindCase:
		return "case"
	default:
		return "unknown"
	}
}

// Node is a collector in the structural tree that owns cases
// (session, package, module, class). Nodes are compared by identity.
type Node struct {
	ID     string
	Name   string
	Kind   NodeKind
	Parent *Node
}

// NewSession creates the root node of a case tree.
func NewSession(name string) *Node {
	return &Node{ID: name, Name: name, Kind: KindSession}
}

// Child creates a collector below n.
func (n *Node) Child(kind NodeKind, name string) *Node {
	id := name
	if n.Kind != KindSession {
		id = n.ID + "/" + name
	}
	if kind == KindClass {
		id = n.ID + "::" + name
	}
	return &Node{ID: id, Name: name, Kind: kind, Parent: n}
}

// Chain returns the path from the root down to n.
func (n *Node) Chain() []*Node {
	if n == nil {
		return nil
	}
	var chain []*Node
	for cur := n; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// AsyncFunc is a suspension-capable case body. It may only suspend through
// the task handle (Await, Sleep, Yield).
type AsyncFunc func(t *coop.Task, args Args) error

// SyncFunc is an ordinary case body.
type SyncFunc func(args Args) error

// GroupMark tags a case for concurrent execution. An empty Key puts the
// case in its own anonymous group.
type GroupMark struct {
	Key string
}

// SkipMark skips a case during setup.
type SkipMark struct {
	Reason string
}

// XFailMark expects the case body to fail.
type XFailMark struct {
	Reason string
	Strict bool
}

// Marks holds the annotations evaluated by the run protocol.
type Marks struct {
	Skip  *SkipMark
	XFail *XFailMark
}

// SkipIf returns a skip mark when cond holds, nil otherwise.
func SkipIf(cond bool, reason string) *SkipMark {
	if !cond {
		return nil
	}
	return &SkipMark{Reason: reason}
}

// Case represents a single test case.
type Case struct {
	ID        string
	Name      string
	Parent    *Node
	Group     *GroupMark
	Resources []string
	Params    map[string]any
	ParamID   string
	Marks     Marks
	Async     AsyncFunc
	Sync      SyncFunc

	// GroupID is set by the group builder. It is a lookup key only.
	GroupID string
}

// NewCase creates a case under parent. The ID follows parent::name[paramID].
func NewCase(parent *Node, name string) *Case {
	return &Case{
		ID:     parent.ID + "::" + name,
		Name:   name,
		Parent: parent,
	}
}

// WithParams pins parametrized argument values and suffixes the case ID.
func (c *Case) WithParams(paramID string, params map[string]any) *Case {
	c.Params = params
	c.ParamID = paramID
	c.ID = c.ID + "[" + paramID + "]"
	return c
}

// IsAsync reports whether the body is suspension-capable.
func (c *Case) IsAsync() bool {
	return c.Async != nil
}

// ArgNames returns declared resources followed by parametrized names
// that were not declared explicitly.
func (c *Case) ArgNames() []string {
	names := make([]string, 0, len(c.Resources)+len(c.Params))
	seen := make(map[string]bool, len(c.Resources))
	for _, r := range c.Resources {
		if seen[r] {
			continue
		}
		seen[r] = true
		names = append(names, r)
	}
	for _, p := range sortedKeys(c.Params) {
		if !seen[p] {
			names = append(names, p)
		}
	}
	return names
}

// Node returns a node standing for the case itself, used as the innermost
// entry of a setup stack.
func (c *Case) Node() *Node {
	return &Node{ID: c.ID, Name: c.Name, Kind: KindCase, Parent: c.Parent}
}
