package fixture

import (
	"fmt"
	"strings"
)

// UnknownResourceError means a case or a definition asked for a name that
// is not registered.
type UnknownResourceError struct {
	Name   string
	CaseID string
}

func (e UnknownResourceError) Error() string {
	return fmt.Sprintf("resource %q not found (requested by %s)", e.Name, e.CaseID)
}

// DuplicateDefinitionError means the same name was registered twice.
type DuplicateDefinitionError struct {
	Name string
}

func (e DuplicateDefinitionError) Error() string {
	return fmt.Sprintf("duplicate resource definition: %s", e.Name)
}

// CycleError means resources depend on each other.
type CycleError struct {
	Path []string
}

func (e CycleError) Error() string {
	return "resource dependency cycle detected: " + strings.Join(e.Path, " -> ")
}

// ScopeMismatchError means a resource depends on one with a narrower scope.
type ScopeMismatchError struct {
	Name     string
	Scope    Scope
	Dep      string
	DepScope Scope
}

func (e ScopeMismatchError) Error() string {
	return fmt.Sprintf("%s-scoped resource %q cannot depend on %s-scoped %q", e.Scope, e.Name, e.DepScope, e.Dep)
}
