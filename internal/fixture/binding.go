package fixture

import (
	"fmt"
	"runtime/debug"
	"sync"

	"cgr/internal/domain"
)

// Finalizer releases something acquired during setup.
type Finalizer func() error

// Factory builds a resource value. Teardown work is registered with
// r.AddFinalizer.
type Factory func(r *Request) (any, error)

// Definition describes one named resource.
type Definition struct {
	Name    string
	Scope   Scope
	Deps    []string
	Factory Factory
}

// Binding is the materialization slot of one definition: the cached value
// and the finalizers registered while building it. Every case that resolves
// to the same Binding shares its value and its finalization.
type Binding struct {
	def *Definition

	mu     sync.Mutex
	cached bool
	value  any

	// param bindings are pinned by the case parametrization.
	param bool

	// registered is set once Finish has been handed to the owning sink.
	registered bool
	finalizers []Finalizer
}

// NewBinding creates an empty binding for def.
func NewBinding(def *Definition) *Binding {
	return &Binding{def: def}
}

// newParamBinding pins a parametrized value.
func newParamBinding(name string, value any) *Binding {
	return &Binding{
		def:    &Definition{Name: name, Scope: ScopeFunction},
		cached: true,
		value:  value,
		param:  true,
	}
}

// Clone returns a binding for the same definition with a fresh cache slot
// and no finalizers.
func (b *Binding) Clone() *Binding {
	return &Binding{def: b.def, param: b.param}
}

// Name returns the resource name.
func (b *Binding) Name() string { return b.def.Name }

// Scope returns the resource scope.
func (b *Binding) Scope() Scope { return b.def.Scope }

// Definition returns the definition the binding materializes.
func (b *Binding) Definition() *Definition { return b.def }

// IsParam reports whether the value is pinned by parametrization.
func (b *Binding) IsParam() bool { return b.param }

// Cached returns the materialized value, if any.
func (b *Binding) Cached() (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value, b.cached
}

func (b *Binding) store(v any) {
	b.mu.Lock()
	b.cached = true
	b.value = v
	b.mu.Unlock()
}

// register hands Finish to sink unless an earlier request already did.
func (b *Binding) register(sink Sink) {
	b.mu.Lock()
	if b.registered {
		b.mu.Unlock()
		return
	}
	b.registered = true
	b.mu.Unlock()
	sink.AddFinalizer(b.Finish)
}

// AddFinalizer registers fn to run when the binding is finished.
func (b *Binding) AddFinalizer(fn Finalizer) {
	b.mu.Lock()
	b.finalizers = append(b.finalizers, fn)
	b.mu.Unlock()
}

// Finish runs the registered finalizers, most recent first, and clears the
// cached value. Every finalizer runs even if an earlier one fails; the errors
// are combined in invocation order. A fatal error stops immediately.
func (b *Binding) Finish() error {
	if b.param {
		return nil
	}
	b.mu.Lock()
	fins := b.finalizers
	b.finalizers = nil
	b.registered = false
	b.cached = false
	b.value = nil
	b.mu.Unlock()

	return RunFinalizers(fmt.Sprintf("errors finishing resource %s", b.def.Name), fins)
}

// RunFinalizers invokes fins last to first, collecting failures.
func RunFinalizers(msg string, fins []Finalizer) error {
	var errs []error
	for i := len(fins) - 1; i >= 0; i-- {
		if err := callFinalizer(fins[i]); err != nil {
			if domain.IsFatal(err) {
				return err
			}
			errs = append(errs, err)
		}
	}
	return domain.Combine(msg, errs)
}

func callFinalizer(fn Finalizer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return fn()
}

// Table maps resource names to the bindings one case uses.
type Table map[string]*Binding

// Clone copies the table. Bindings are shared.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
