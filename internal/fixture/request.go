package fixture

import (
	"context"
	"fmt"
	"runtime/debug"

	"cgr/internal/domain"

	"golang.org/x/sync/singleflight"
)

// Sink receives finalizers for one owner (a case or a collector node).
type Sink interface {
	AddFinalizer(fn Finalizer)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(fn Finalizer)

// AddFinalizer calls f(fn).
func (f SinkFunc) AddFinalizer(fn Finalizer) { f(fn) }

// Owner routes a resource's finalization to the sink of its scope.
type Owner interface {
	Sink(scope Scope) (Sink, error)
}

// Request materializes resources for one case. Factories receive a child
// request bound to the resource being built.
type Request struct {
	ctx   context.Context
	c     *domain.Case
	table Table
	owner Owner
	reg   *Registry
	sf    *singleflight.Group

	binding *Binding
	stack   []string
}

// Context returns the setup context.
func (r *Request) Context() context.Context { return r.ctx }

// CaseID returns the ID of the case being set up.
func (r *Request) CaseID() string { return r.c.ID }

// Node returns the immediate parent of the case being set up.
func (r *Request) Node() *domain.Node { return r.c.Parent }

// Param returns a parametrized value of the case.
func (r *Request) Param(name string) (any, bool) {
	v, ok := r.c.Params[name]
	return v, ok
}

// AddFinalizer registers fn on the resource being built. On a top-level
// request it panics, since there is no resource to attach to.
func (r *Request) AddFinalizer(fn Finalizer) {
	if r.binding == nil {
		panic("fixture: AddFinalizer called outside a factory")
	}
	r.binding.AddFinalizer(fn)
}

// lookup returns the binding of name. Names the case did not declare are
// taken from the registry on first use; function scoped ones get a private
// clone so the case does not share their cache slot.
func (r *Request) lookup(name string) (*Binding, bool) {
	if b, ok := r.table[name]; ok {
		return b, true
	}
	if r.reg == nil {
		return nil, false
	}
	b, ok := r.reg.Binding(name)
	if !ok {
		return nil, false
	}
	if b.Scope() == ScopeFunction {
		b = b.Clone()
	}
	r.table[name] = b
	return b, true
}

// Resource returns the value of name, materializing it and its dependencies
// if needed. A failed build is not cached.
//
// Resource may also be called from a case body that declared the request
// argument. Bodies on the same loop may do so concurrently from Task.Await;
// a broader scoped resource is then built once and every caller gets the
// same value.
func (r *Request) Resource(name string) (any, error) {
	b, ok := r.lookup(name)
	if !ok {
		return nil, UnknownResourceError{Name: name, CaseID: r.c.ID}
	}
	if v, ok := b.Cached(); ok {
		return v, nil
	}
	for _, s := range r.stack {
		if s == name {
			return nil, CycleError{Path: append(append([]string(nil), r.stack...), name)}
		}
	}

	child := &Request{
		ctx:     r.ctx,
		c:       r.c,
		table:   r.table,
		owner:   r.owner,
		reg:     r.reg,
		sf:      r.sf,
		binding: b,
		stack:   append(append([]string(nil), r.stack...), name),
	}

	for _, dep := range b.def.Deps {
		depB, ok := r.lookup(dep)
		if !ok {
			return nil, UnknownResourceError{Name: dep, CaseID: r.c.ID}
		}
		if depB.Scope() < b.Scope() {
			return nil, ScopeMismatchError{Name: name, Scope: b.Scope(), Dep: dep, DepScope: depB.Scope()}
		}
		if _, err := child.Resource(dep); err != nil {
			return nil, fmt.Errorf("resolve dependency %s for %s: %w", dep, name, err)
		}
		// A dependency never outlives the resources built on top of it.
		depB.AddFinalizer(b.Finish)
	}

	sink, err := r.owner.Sink(b.Scope())
	if err != nil {
		return nil, fmt.Errorf("resource %s: %w", name, err)
	}
	b.register(sink)

	if b.Scope() == ScopeFunction {
		return child.build()
	}
	v, err, _ := r.sf.Do(fmt.Sprintf("%s@%p", name, b), func() (any, error) {
		if v, ok := b.Cached(); ok {
			return v, nil
		}
		return child.build()
	})
	return v, err
}

// build invokes the factory of r.binding and caches a successful result.
func (r *Request) build() (v any, err error) {
	b := r.binding
	defer func() {
		if rec := recover(); rec != nil {
			v, err = nil, &domain.PanicError{Value: rec, Stack: string(debug.Stack())}
		}
	}()
	v, err = b.def.Factory(r)
	if err != nil {
		return nil, fmt.Errorf("build resource %s: %w", b.def.Name, err)
	}
	b.store(v)
	return v, nil
}
