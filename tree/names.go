package tree

import "fmt"

// NameInternalNodes assigns NODE_0000000-style names to unnamed
// internal nodes, in preorder. Returns the number of nodes named.
func (tree *Tree) NameInternalNodes() (named int) {
	i := 0
	for node := range tree.NonTerminals() {
		if node.Name == "" {
			node.Name = fmt.Sprintf("NODE_%07d", i)
			named++
		}
		i++
	}
	return
}
