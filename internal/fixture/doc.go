// Package fixture provides the resource materialization service used by the
// run protocol.
//
// A Definition describes how to build a named resource and at which Scope it
// is cached. The Registry keeps exactly one Binding per definition; a Binding
// holds the cached value and the finalizers registered while building it.
// A Table maps the names one case needs to the bindings it will use, and a
// Request materializes them, resolving dependencies first.
//
// Finalizers are routed by scope: per-case resources finalize with their
// case, broader scopes finalize when the owning collector node is torn down
// from the SetupState.
package fixture
