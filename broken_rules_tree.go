package domain

import (
	"fmt"
	"strings"
)

// BrokenRulesNode is one level of a broken rules tree: the rules broken on a
// node plus one sub-tree per child that is invalid or carries warnings.
type BrokenRulesNode struct {
	Description string             `json:"description"`
	Field       string             `json:"field,omitempty"`
	Rules       []BrokenRule       `json:"rules,omitempty"`
	Children    []*BrokenRulesNode `json:"children,omitempty"`
}

// Add appends child as a sub-tree.
func (n *BrokenRulesNode) Add(child *BrokenRulesNode) {
	if n == nil || child == nil {
		return
	}
	n.Children = append(n.Children, child)
}

// Count returns the number of broken rules in the whole tree.
func (n *BrokenRulesNode) Count() int {
	if n == nil {
		return 0
	}
	total := len(n.Rules)
	for _, child := range n.Children {
		total += child.Count()
	}
	return total
}

// Empty reports whether the tree holds no broken rule.
func (n *BrokenRulesNode) Empty() bool {
	return n.Count() == 0
}

func (n *BrokenRulesNode) String() string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	n.write(&b, 0)
	return strings.TrimRight(b.String(), "\n")
}

func (n *BrokenRulesNode) write(b *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	label := n.Description
	if n.Field != "" {
		label = fmt.Sprintf("%s (%s)", label, n.Field)
	}
	fmt.Fprintf(b, "%s%s\n", indent, label)
	for _, rule := range n.Rules {
		fmt.Fprintf(b, "%s  - [%s] %s\n", indent, rule.Severity, rule.Message)
	}
	for _, child := range n.Children {
		child.write(b, depth+1)
	}
}
