package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"cgr/internal/domain"

	"github.com/fatih/color"
)

// Formatter formats and displays run output
type Formatter struct {
	w io.Writer
}

// NewFormatter creates a new Formatter
func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) row(label string, c *color.Color, value any) {
	fmt.Fprintf(f.w, "│ %-31s │ %s │\n", label, c.Sprintf("%-27v", value))
}

func (f *Formatter) rule() {
	fmt.Fprintln(f.w, "├─────────────────────────────────┼─────────────────────────────┤")
}

// PrintSummary prints the meta statistics of a run followed by the tree of
// failing cases.
func (f *Formatter) PrintSummary(out *domain.RunOutput) {
	meta := out.Meta
	white := color.New(color.FgWhite)

	fmt.Fprintln(f.w)
	fmt.Fprintln(f.w, color.CyanString("╔═══════════════════════════════════════════════════════════════╗"))
	fmt.Fprintln(f.w, color.CyanString("║                     Case Execution Summary                    ║"))
	fmt.Fprintln(f.w, color.CyanString("╚═══════════════════════════════════════════════════════════════╝"))
	fmt.Fprintln(f.w, "┌─────────────────────────────────┬─────────────────────────────┐")

	f.row("Total Cases", white, meta.TotalCases)
	f.rule()
	f.row("Concurrent Groups", white, meta.Groups)
	for _, st := range domain.Statuses {
		n := meta.Counts[st]
		if n == 0 && st != domain.StatusPassed && st != domain.StatusFailed {
			continue
		}
		f.rule()
		c := statusColors[st]
		f.row(strings.ToUpper(string(st[:1]))+string(st[1:]), c, n)
	}
	f.rule()
	f.row("Warnings", color.New(color.FgYellow), meta.Warnings)
	f.rule()
	f.row("Duration", white, fmt.Sprintf("%.2fs", meta.DurationSeconds))
	if meta.RunID != "" {
		f.rule()
		f.row("Run ID", white, meta.RunID)
	}
	f.rule()
	f.row("Timestamp", white, meta.Timestamp)
	fmt.Fprintln(f.w, "└─────────────────────────────────┴─────────────────────────────┘")

	fmt.Fprintln(f.w)
	bad := meta.Counts[domain.StatusFailed] + meta.Counts[domain.StatusError]
	if bad == 0 {
		fmt.Fprintln(f.w, color.GreenString("✓ All cases passed!"))
		return
	}
	fmt.Fprintln(f.w, color.RedString("✗ %d failed, %d errors", meta.Counts[domain.StatusFailed], meta.Counts[domain.StatusError]))
	fmt.Fprintln(f.w)
	f.PrintFailureTree(out.Details)
}

// TreeNode is one collector in the printed failure tree.
type TreeNode struct {
	Name     string
	Children map[string]*TreeNode
	Failures []domain.Failure
}

func newTreeNode(name string) *TreeNode {
	return &TreeNode{Name: name, Children: make(map[string]*TreeNode)}
}

// buildTree nests failures by the segments of their node path.
func buildTree(failures []domain.Failure) *TreeNode {
	root := newTreeNode("")
	for _, fl := range failures {
		cur := root
		for _, part := range splitNodePath(fl.NodePath) {
			if cur.Children[part] == nil {
				cur.Children[part] = newTreeNode(part)
			}
			cur = cur.Children[part]
		}
		cur.Failures = append(cur.Failures, fl)
	}
	return root
}

func splitNodePath(p string) []string {
	p = strings.ReplaceAll(p, "::", "/")
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

// PrintFailureTree prints failures nested under their collectors.
func (f *Formatter) PrintFailureTree(failures []domain.Failure) {
	if len(failures) == 0 {
		return
	}
	f.printTreeNode(buildTree(failures), "")
}

func (f *Formatter) printTreeNode(node *TreeNode, prefix string) {
	keys := make([]string, 0, len(node.Children))
	for k := range node.Children {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total := len(keys) + len(node.Failures)
	i := 0
	branch := func() (string, string) {
		i++
		if i == total {
			return prefix + "└── ", prefix + "    "
		}
		return prefix + "├── ", prefix + "│   "
	}

	for _, fl := range node.Failures {
		head, _ := branch()
		line := color.RedString("%s [%s %s]", fl.Name, fl.Status, fl.Phase)
		if fl.Group != "" {
			line += color.HiBlackString(" group=%s", fl.Group)
		}
		fmt.Fprintln(f.w, head+line)
	}
	for _, k := range keys {
		head, next := branch()
		fmt.Fprintln(f.w, head+color.CyanString("%s", k))
		f.printTreeNode(node.Children[k], next)
	}
}

// PrintCaseList prints cases under their collectors. failed holds the IDs
// of cases that failed in the last run; they are marked with [F].
func (f *Formatter) PrintCaseList(cases []*domain.Case, failed map[string]struct{}) {
	fmt.Fprintln(f.w, color.GreenString("Found %d case(s):", len(cases)))
	fmt.Fprintln(f.w)

	var order []string
	byNode := make(map[string][]*domain.Case)
	for _, c := range cases {
		id := c.Parent.ID
		if _, ok := byNode[id]; !ok {
			order = append(order, id)
		}
		byNode[id] = append(byNode[id], c)
	}

	for i, id := range order {
		lastNode := i == len(order)-1
		head, pad := "├── ", "│   "
		if lastNode {
			head, pad = "└── ", "    "
		}
		fmt.Fprintln(f.w, head+color.CyanString("%s", id))

		members := byNode[id]
		for j, c := range members {
			branch := "├── "
			if j == len(members)-1 {
				branch = "└── "
			}
			line := color.YellowString("%s", c.Name)
			if c.ParamID != "" {
				line += color.YellowString("[%s]", c.ParamID)
			}
			if c.Group != nil {
				key := c.Group.Key
				if key == "" {
					key = "anonymous"
				}
				line += color.HiBlackString(" (group: %s)", key)
			}
			if _, ok := failed[c.ID]; ok {
				line += " " + color.RedString("[F]")
			}
			fmt.Fprintln(f.w, pad+branch+line)
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
