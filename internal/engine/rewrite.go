package engine

import (
	"cgr/internal/fixture"
)

// Rewrite returns the table a group member uses. Function-scoped bindings
// are cloned so no two members share a cache slot or finalizer list.
// Parametrized and broader-scoped bindings stay shared.
func Rewrite(table fixture.Table) fixture.Table {
	out := table.Clone()
	for name, b := range out {
		if b.IsParam() || b.Scope() != fixture.ScopeFunction {
			continue
		}
		out[name] = b.Clone()
	}
	return out
}
