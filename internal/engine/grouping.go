package engine

import (
	"fmt"
	"strings"

	"cgr/internal/domain"

	"github.com/oklog/ulid/v2"
)

// GroupBuilder buckets cases by group key.
type GroupBuilder struct {
	newKey func() string
}

// NewGroupBuilder returns a builder that names anonymous groups with ULIDs.
func NewGroupBuilder() *GroupBuilder {
	return &GroupBuilder{newKey: func() string {
		return "anonymous_[" + ulid.Make().String() + "]"
	}}
}

// Build returns the groups in first-seen order and the ungrouped cases in
// input order. A group whose members have different parents comes back
// invalidated.
func (b *GroupBuilder) Build(cases []*domain.Case) ([]*Group, []*domain.Case) {
	var (
		groups      []*Group
		passthrough []*domain.Case
		byKey       = make(map[string]*Group)
	)
	for _, c := range cases {
		if c.Group == nil {
			passthrough = append(passthrough, c)
			continue
		}
		key := c.Group.Key
		if key == "" {
			key = b.newKey()
		}
		g, ok := byKey[key]
		if !ok {
			g = newGroup(key, c.Parent)
			byKey[key] = g
			groups = append(groups, g)
		}
		// Groups are still forming here; AddChild cannot fail.
		_ = g.AddChild(c)
	}
	for _, g := range groups {
		g.seal()
	}
	return groups, passthrough
}

// groupingWarning describes why g was invalidated.
func groupingWarning(g *Group) domain.Warning {
	seen := make(map[string]bool)
	var parents []string
	for _, c := range g.members {
		id := "<none>"
		if c.Parent != nil {
			id = c.Parent.ID
		}
		if !seen[id] {
			seen[id] = true
			parents = append(parents, id)
		}
	}
	return domain.Warning{
		Kind:  domain.WarningGrouping,
		Group: g.Key,
		Message: fmt.Sprintf("concurrent group %q spans different parents (%s); all %d members are skipped",
			g.Key, strings.Join(parents, ", "), len(g.members)),
	}
}
