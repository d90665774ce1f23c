package discovery

import (
	"strings"

	"cgr/internal/domain"
)

// Filter filters cases by name pattern or group
type Filter struct{}

// NewFilter creates a new Filter
func NewFilter() *Filter {
	return &Filter{}
}

// FilterByName filters cases by name pattern using wildcard matching.
// Supports patterns like "test_user*" or "*payment*"; the pattern is tried
// against the case name and against the full case ID.
func (f *Filter) FilterByName(cases []*domain.Case, pattern string) []*domain.Case {
	if pattern == "" {
		return cases
	}

	var filtered []*domain.Case
	for _, c := range cases {
		if matchName(c.Name, pattern) || matchName(c.ID, pattern) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// FilterByGroup keeps the cases marked with the given group key.
func (f *Filter) FilterByGroup(cases []*domain.Case, key string) []*domain.Case {
	if key == "" {
		return cases
	}

	var filtered []*domain.Case
	for _, c := range cases {
		if c.Group != nil && c.Group.Key == key {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

func matchName(name, pattern string) bool {
	if !strings.ContainsAny(pattern, "*?") {
		// If no wildcards, do a simple contains check
		return strings.Contains(name, pattern)
	}
	if globMatch(pattern, name) {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}

	// Fall back to a substring match on every non-empty part, for patterns
	// like "*payment*" against IDs with path separators.
	hasNonEmptyPart := false
	for _, part := range strings.Split(pattern, "*") {
		if part == "" {
			continue
		}
		hasNonEmptyPart = true
		if !strings.Contains(name, part) {
			return false
		}
	}
	return hasNonEmptyPart
}

// globMatch matches * and ? over the whole string, including separators.
func globMatch(pattern, name string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for i := len(name); i >= 0; i-- {
				if globMatch(pattern[1:], name[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(name) == 0 {
				return false
			}
			pattern, name = pattern[1:], name[1:]
		default:
			if len(name) == 0 || name[0] != pattern[0] {
				return false
			}
			pattern, name = pattern[1:], name[1:]
		}
	}
	return len(name) == 0
}
