package tree

import (
	"fmt"
	"math"
	"strings"
)

// NexusString serializes the tree in NEXUS format. Node dates and
// per-branch mutation lists are attached as comments
// ([&date=...,mutations="..."]) the way figtree-style consumers
// expect. Leaf names are written in full.
func (tree *Tree) NexusString() string {
	var b strings.Builder
	b.WriteString("#NEXUS\n")
	b.WriteString("Begin Taxa;\n")
	fmt.Fprintf(&b, " Dimensions NTax=%d;\n", tree.NLeaves())
	b.WriteString(" TaxLabels")
	for node := range tree.Terminals() {
		b.WriteString(" " + nexusName(node.Name))
	}
	b.WriteString(";\nEnd;\n")
	b.WriteString("Begin Trees;\n")
	b.WriteString(" Tree tree1=")
	tree.Node.nexus(&b)
	b.WriteString(";\nEnd;\n")
	return b.String()
}

func (node *Node) nexus(b *strings.Builder) {
	if !node.IsTerminal() {
		b.WriteByte('(')
		for i, child := range node.childNodes {
			if i > 0 {
				b.WriteByte(',')
			}
			child.nexus(b)
		}
		b.WriteByte(')')
	}
	if node.Name != "" {
		b.WriteString(nexusName(node.Name))
	}
	if comment := node.nexusComment(); comment != "" {
		b.WriteString(comment)
	}
	if !node.IsRoot() {
		fmt.Fprintf(b, ":%0.6f", node.BranchLength)
	}
}

func (node *Node) nexusComment() string {
	var parts []string
	if !math.IsNaN(node.Date) {
		parts = append(parts, fmt.Sprintf("date=%.4f", node.Date))
	}
	if len(node.Mutations) > 0 {
		muts := make([]string, len(node.Mutations))
		for i, m := range node.Mutations {
			muts[i] = m.String()
		}
		parts = append(parts, `mutations="`+strings.Join(muts, "_")+`"`)
	}
	if len(parts) == 0 {
		return ""
	}
	return "[&" + strings.Join(parts, ",") + "]"
}

// nexusName quotes a taxon label when it contains NEXUS delimiters.
func nexusName(name string) string {
	if strings.ContainsAny(name, " ()[]{}/\\,;:=*'\"`<>") {
		return "'" + strings.Replace(name, "'", "''", -1) + "'"
	}
	return name
}
