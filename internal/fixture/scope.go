package fixture

import (
	"fmt"
	"strings"

	"cgr/internal/domain"
)

// Scope controls how widely a materialized resource is shared.
type Scope int

const (
	ScopeFunction Scope = iota
	ScopeClass
	ScopeModule
	ScopePackage
	ScopeSession
)

func (s Scope) String() string {
	switch s {
	case ScopeFunction:
		return "function"
	case ScopeClass:
		return "class"
	case ScopeModule:
		return "module"
	case ScopePackage:
		return "package"
	case ScopeSession:
		return "session"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// ParseScope converts a scope name.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(s) {
	case "function", "case", "":
		return ScopeFunction, nil
	case "class":
		return ScopeClass, nil
	case "module":
		return ScopeModule, nil
	case "package":
		return ScopePackage, nil
	case "session":
		return ScopeSession, nil
	}
	return ScopeFunction, fmt.Errorf("unknown scope %q", s)
}

// kind returns the collector kind that owns a resource of this scope.
func (s Scope) kind() domain.NodeKind {
	switch s {
	case ScopeClass:
		return domain.KindClass
	case ScopeModule:
		return domain.KindModule
	case ScopePackage:
		return domain.KindPackage
	default:
		return domain.KindSession
	}
}

// ScopeNode returns the collector that owns a resource of scope s for a case
// whose immediate parent is parent: the nearest ancestor at or above the
// scope's level. It returns nil for ScopeFunction.
func ScopeNode(s Scope, parent *domain.Node) *domain.Node {
	if s == ScopeFunction {
		return nil
	}
	want := s.kind()
	var last *domain.Node
	for n := parent; n != nil; n = n.Parent {
		last = n
		if n.Kind <= want {
			return n
		}
	}
	return last
}
