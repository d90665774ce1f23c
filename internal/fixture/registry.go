package fixture

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cgr/internal/domain"

	"golang.org/x/sync/singleflight"
)

// RequestArg is the argument name under which a case receives its own
// Request, to resolve undeclared resources while its body runs.
const RequestArg = "request"

// Registry holds the resource definitions of a suite, one shared binding each.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]*Binding

	sf singleflight.Group
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]*Binding)}
}

// Register adds a definition.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("register resource: name is empty")
	}
	if def.Name == RequestArg {
		return fmt.Errorf("register resource: %s is reserved", RequestArg)
	}
	if def.Factory == nil {
		return fmt.Errorf("register resource %s: factory is nil", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bindings[def.Name]; exists {
		return DuplicateDefinitionError{Name: def.Name}
	}
	d := def
	d.Deps = append([]string(nil), def.Deps...)
	r.bindings[def.Name] = NewBinding(&d)
	return nil
}

// MustRegister is like Register but panics on error. It is intended for
// suite wiring in main packages.
func (r *Registry) MustRegister(defs ...Definition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.bindings))
	for name := range r.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Binding returns the shared binding for name.
func (r *Registry) Binding(name string) (*Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[name]
	return b, ok
}

// Table resolves every argument of c, and their transitive dependencies,
// to bindings. Parametrized names are pinned to their values.
func (r *Registry) Table(c *domain.Case) (Table, error) {
	t := make(Table)
	for name, v := range c.Params {
		t[name] = newParamBinding(name, v)
	}

	var visit func(name string) error
	visit = func(name string) error {
		if _, done := t[name]; done || name == RequestArg {
			return nil
		}
		b, ok := r.Binding(name)
		if !ok {
			return UnknownResourceError{Name: name, CaseID: c.ID}
		}
		t[name] = b
		for _, dep := range b.def.Deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range c.ArgNames() {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// NewRequest returns the top-level request used to set up case c with table.
// Finalizers are routed through owner.
func (r *Registry) NewRequest(ctx context.Context, c *domain.Case, table Table, owner Owner) *Request {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Request{
		ctx:   ctx,
		c:     c,
		table: table,
		owner: owner,
		reg:   r,
		sf:    &r.sf,
	}
}
