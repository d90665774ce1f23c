package discovery

import (
	"fmt"

	"cgr/internal/domain"
	"cgr/internal/fixture"
)

// Suite collects the case tree, the cases in declaration order and the
// resource definitions they use.
type Suite struct {
	Session  *domain.Node
	Registry *fixture.Registry

	nodes map[string]*domain.Node
	cases []*domain.Case
	ids   map[string]bool
}

// NewSuite creates an empty suite rooted at a session node called name.
func NewSuite(name string) *Suite {
	session := domain.NewSession(name)
	return &Suite{
		Session:  session,
		Registry: fixture.NewRegistry(),
		nodes:    map[string]*domain.Node{session.ID: session},
		ids:      make(map[string]bool),
	}
}

// Node returns the collector of the given kind and name below parent,
// creating it on first use. A nil parent means the session.
func (s *Suite) Node(parent *domain.Node, kind domain.NodeKind, name string) *domain.Node {
	if parent == nil {
		parent = s.Session
	}
	n := parent.Child(kind, name)
	if existing, ok := s.nodes[n.ID]; ok {
		return existing
	}
	s.nodes[n.ID] = n
	return n
}

// Package returns the package collector called name.
func (s *Suite) Package(name string) *domain.Node {
	return s.Node(nil, domain.KindPackage, name)
}

// Module returns the module collector called name below pkg.
func (s *Suite) Module(pkg *domain.Node, name string) *domain.Node {
	return s.Node(pkg, domain.KindModule, name)
}

// Class returns the class collector called name below mod.
func (s *Suite) Class(mod *domain.Node, name string) *domain.Node {
	return s.Node(mod, domain.KindClass, name)
}

// Resource registers resource definitions.
func (s *Suite) Resource(defs ...fixture.Definition) error {
	for _, def := range defs {
		if err := s.Registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Add appends cases in declaration order. Case IDs must be unique.
func (s *Suite) Add(cases ...*domain.Case) error {
	for _, c := range cases {
		if c.Parent == nil {
			return fmt.Errorf("case %s has no parent", c.Name)
		}
		if s.ids[c.ID] {
			return fmt.Errorf("duplicate case id %s", c.ID)
		}
		if c.Async == nil && c.Sync == nil {
			return fmt.Errorf("case %s has no body", c.ID)
		}
		s.ids[c.ID] = true
		s.cases = append(s.cases, c)
	}
	return nil
}

// Parametrize expands template into one case per value of argName and adds
// them. The template itself is not added. A template that is already
// parametrized keeps its values and its ID suffix, so expanding it again
// yields IDs like name[a-1].
func (s *Suite) Parametrize(template *domain.Case, argName string, values ...any) ([]*domain.Case, error) {
	out := make([]*domain.Case, 0, len(values))
	for _, v := range values {
		c := *template
		params := make(map[string]any, len(template.Params)+1)
		for k, pv := range template.Params {
			params[k] = pv
		}
		params[argName] = v
		id := fmt.Sprint(v)
		if template.ParamID != "" {
			id = template.ParamID + "-" + id
		}
		c.ID = c.Parent.ID + "::" + c.Name
		out = append(out, c.WithParams(id, params))
	}
	if err := s.Add(out...); err != nil {
		return nil, err
	}
	return out, nil
}

// Cases returns the cases in declaration order.
func (s *Suite) Cases() []*domain.Case {
	return append([]*domain.Case(nil), s.cases...)
}
