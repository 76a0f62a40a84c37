// Package tree provides a mutable rooted phylogenetic tree with
// per-node dates, sequences and mutations, plus Newick parsing.
package tree

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type mode int

const (
	normal mode = iota
	length
)

// Tree is an arena of nodes indexed by Id. The embedded Node is the
// root. Nodes own their children; parent references are lookup-only.
type Tree struct {
	*Node
	nNodes    int
	maxNodeId int
	nodes     []*Node
	nodeOrder []*Node
}

// ClearCache drops the cached node arrays. It must be called after
// every topology change.
func (tree *Tree) ClearCache() {
	tree.nNodes = 0
	tree.nodes = nil
	tree.nodeOrder = nil
}

// NNodes returns the number of nodes reachable from the root.
func (tree *Tree) NNodes() int {
	if tree.nNodes == 0 {
		tree.nNodes = tree.NSubNodes()
	}
	return tree.nNodes
}

// MaxNodeId returns the largest node Id ever allocated. Ids are never
// reused, so arrays indexed by Id stay valid across topology changes.
func (tree *Tree) MaxNodeId() int {
	return tree.maxNodeId
}

// NodeIdArray returns nodes indexed by their Id. Entries for detached
// Ids are nil.
func (tree *Tree) NodeIdArray() []*Node {
	if tree.nodes == nil {
		tree.nodes = make([]*Node, tree.MaxNodeId()+1)
		for node := range tree.Walker(nil) {
			tree.nodes[node.Id] = node
		}
	}
	return tree.nodes
}

// Terminals returns a channel with all the tree leaves.
func (tree *Tree) Terminals() <-chan *Node {
	return tree.Walker(func(node *Node) bool {
		return node.IsTerminal()
	})
}

// NonTerminals returns a channel with all the internal nodes.
func (tree *Tree) NonTerminals() <-chan *Node {
	return tree.Walker(func(node *Node) bool {
		return !node.IsTerminal()
	})
}

// NLeaves returns the number of leaves.
func (tree *Tree) NLeaves() (i int) {
	for range tree.Terminals() {
		i++
	}
	return
}

// Walker returns a channel with all the nodes matching filter, in
// preorder.
func (tree *Tree) Walker(filter func(*Node) bool) <-chan *Node {
	ch := make(chan *Node, tree.NNodes())
	tree.Walk(ch, filter)
	close(ch)
	return ch
}

// NodeOrder returns internal nodes in postorder: every node comes
// after all of its children.
func (tree *Tree) NodeOrder() []*Node {
	if tree.nodeOrder == nil {
		tree.nodeOrder = make([]*Node, 0, tree.NNodes())
		computed := make(map[*Node]bool, tree.NNodes())
		awaiting := make(chan *Node, tree.NNodes()*2)
		for node := range tree.Terminals() {
			computed[node] = true
			awaiting <- node.Parent
		}

		for node := range awaiting {
			if node == nil {
				break
			}
			if computed[node] {
				continue
			}
			allComputed := true
			for _, childNode := range node.ChildNodes() {
				if !computed[childNode] {
					allComputed = false
					break
				}
			}
			if !allComputed {
				awaiting <- node
			} else {
				tree.nodeOrder = append(tree.nodeOrder, node)
				computed[node] = true
				awaiting <- node.Parent
			}
		}
	}
	return tree.nodeOrder
}

// Copy creates an independent copy of the tree.
func (tree *Tree) Copy() (newTree *Tree) {
	newTree = &Tree{
		maxNodeId: tree.maxNodeId,
	}
	newNodes := make([]*Node, tree.MaxNodeId()+1)
	for _, node := range tree.NodeIdArray() {
		if node == nil {
			continue
		}
		newNodes[node.Id] = node.Copy()
	}
	for _, node := range tree.NodeIdArray() {
		if node == nil {
			continue
		}
		for _, child := range node.childNodes {
			newNodes[node.Id].AddChild(newNodes[child.Id])
		}
	}
	newTree.Node = newNodes[tree.Node.Id]
	return
}

// newNode allocates a node with a fresh Id and attaches it to parent
// (nil for a detached node).
func (tree *Tree) newNode(parent *Node) *Node {
	tree.maxNodeId++
	node := NewNode(parent, tree.maxNodeId)
	if parent != nil {
		parent.AddChild(node)
	}
	tree.ClearCache()
	return node
}

// AssignLeafIds numbers the leaves consecutively in preorder. It must
// be called after parsing and after any topology change which adds or
// removes leaves.
func (tree *Tree) AssignLeafIds() {
	leafId := 0
	for node := range tree.Terminals() {
		node.LeafId = leafId
		leafId++
	}
}

// Mutation is a point substitution on the branch leading to a node:
// parental residue, zero-based alignment position, derived residue.
type Mutation struct {
	From byte
	Pos  int
	To   byte
}

// String formats a mutation with a one-based position, e.g. "A137G".
func (m Mutation) String() string {
	return fmt.Sprintf("%c%d%c", m.From, m.Pos+1, m.To)
}

// Node is a single node of a phylogenetic tree.
type Node struct {
	// Name is the node label; required for leaves.
	Name string
	// BranchLength is the length of the branch to the parent
	// (substitutions/site during inference).
	BranchLength float64
	// Parent is a lookup-only back-reference; nil for the root.
	Parent     *Node
	childNodes []*Node
	Id         int
	LeafId     int
	// Date is the calendar date (decimal years); NaN when unknown.
	Date float64
	// Sequence is the observed (leaves) or reconstructed (internal)
	// residue letters, one per alignment column.
	Sequence []byte
	// Mutations are inferred substitutions on the branch to the parent.
	Mutations []Mutation
}

// NewNode creates a new detached node.
func NewNode(parent *Node, nodeId int) (node *Node) {
	node = &Node{Parent: parent, Id: nodeId, Date: math.NaN()}
	return
}

// Copy creates a copy of the node with empty parent and children.
func (node *Node) Copy() *Node {
	newNode := &Node{
		Name:         node.Name,
		BranchLength: node.BranchLength,
		childNodes:   make([]*Node, 0, len(node.childNodes)),
		Id:           node.Id,
		LeafId:       node.LeafId,
		Date:         node.Date,
	}
	if node.Sequence != nil {
		newNode.Sequence = append([]byte{}, node.Sequence...)
	}
	if node.Mutations != nil {
		newNode.Mutations = append([]Mutation{}, node.Mutations...)
	}
	return newNode
}

// AddChild adds a child node.
func (node *Node) AddChild(subNode *Node) {
	subNode.Parent = node
	node.childNodes = append(node.childNodes, subNode)
}

// RemoveChild detaches a child node.
func (node *Node) RemoveChild(subNode *Node) {
	for i, child := range node.childNodes {
		if child == subNode {
			node.childNodes = append(node.childNodes[:i], node.childNodes[i+1:]...)
			subNode.Parent = nil
			return
		}
	}
}

// ReplaceChild substitutes a child node in place.
func (node *Node) ReplaceChild(oldNode, newNode *Node) {
	for i, child := range node.childNodes {
		if child == oldNode {
			node.childNodes[i] = newNode
			newNode.Parent = node
			oldNode.Parent = nil
			return
		}
	}
}

// ChildNodes returns the children.
func (node *Node) ChildNodes() []*Node {
	return node.childNodes
}

// Walk sends matching nodes of the subtree to the channel in
// preorder.
func (node *Node) Walk(ch chan *Node, filter func(*Node) bool) {
	if filter == nil || filter(node) {
		ch <- node
	}
	for _, child := range node.childNodes {
		child.Walk(ch, filter)
	}
}

// NSubNodes returns the size of the subtree.
func (node *Node) NSubNodes() (size int) {
	for _, child := range node.childNodes {
		size += child.NSubNodes()
	}
	return size + 1
}

// IsRoot returns true if the node has no parent.
func (node *Node) IsRoot() bool {
	return node.Parent == nil
}

// IsTerminal returns true if the node is a leaf.
func (node *Node) IsTerminal() bool {
	return len(node.childNodes) == 0
}

// String returns the subtree in Newick notation.
func (node *Node) String() (s string) {
	if node.IsTerminal() {
		return fmt.Sprintf("%s:%0.6f", node.Name, node.BranchLength)
	}
	s += "("
	for i, child := range node.childNodes {
		s += child.String()
		if i != len(node.childNodes)-1 {
			s += ","
		}
	}
	s += fmt.Sprintf(")%s:%0.6f", node.Name, node.BranchLength)
	if node.IsRoot() {
		s += ";"
	}
	return s
}

// LongString returns a verbose one-line node description.
func (node *Node) LongString() (s string) {
	s = "<"
	if node.Parent == nil {
		s += "root, "
	}
	if node.Name != "" {
		s += "name=" + node.Name + ", "
	}
	s += fmt.Sprintf("Id=%v, BranchLength=%v", node.Id, node.BranchLength)
	if !math.IsNaN(node.Date) {
		s += fmt.Sprintf(", Date=%.3f", node.Date)
	}
	if node.IsTerminal() {
		s += fmt.Sprintf(", TipId=%v", node.LeafId)
	}
	s += ">"
	return
}

// FullString returns an indented multiline representation of the
// subtree.
func (node *Node) FullString() string {
	return strings.TrimSpace(node.prefixString(""))
}

func (node *Node) prefixString(prefix string) (s string) {
	s = prefix + node.LongString() + "\n"
	for _, child := range node.childNodes {
		s += child.prefixString(prefix + "    ")
	}
	return
}

// isSpecial returns true for Newick delimiter runes.
func isSpecial(c rune) bool {
	switch c {
	case '(', ')', ':', ';', ',':
		return true
	}
	return false
}

// newickSplit is a bufio.SplitFunc returning Newick tokens.
func newickSplit(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	// Skip leading spaces; and return 1-char tokens.
	for width := 0; start < len(data); start += width {
		var r rune
		r, width = utf8.DecodeRune(data[start:])
		if isSpecial(r) {
			return start + width, data[start : start+width], nil
		}
		if !unicode.IsSpace(r) {
			break
		}
	}
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	// Scan until space or special character.
	for width, i := 0, start; i < len(data); i += width {
		var r rune
		r, width = utf8.DecodeRune(data[i:])
		if unicode.IsSpace(r) || isSpecial(r) {
			return i, data[start:i], nil
		}
	}
	// If we're at EOF, we have a final, non-empty, non-terminated word. Return it.
	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	// Request more data.
	return 0, nil, nil
}

// ParseNewick parses a Newick tree from a reader. Rooted and unrooted
// (basal multifurcation) trees with arbitrary branching are accepted;
// internal node labels are kept.
func ParseNewick(rd io.Reader) (tree *Tree, err error) {
	scanner := bufio.NewScanner(rd)
	scanner.Split(newickSplit)

	nodeId := 0

	node := NewNode(nil, nodeId)
	tree = &Tree{Node: node}
	nodeId++

	m := normal

	for scanner.Scan() {
		text := scanner.Text()
		switch text {
		case "(":
			subNode := NewNode(nil, nodeId)
			nodeId++
			node.AddChild(subNode)
			node = subNode

		case ",":
			if node.Parent == nil {
				return nil, errors.New("top level comma mismatch")
			}
			subNode := NewNode(nil, nodeId)
			nodeId++

			node.Parent.AddChild(subNode)
			node = subNode

		case ")":
			if node.Parent == nil {
				return nil, errors.New("brackets mismatch")
			}
			node = node.Parent
		case ":":
			m = length
		case ";":
			tree.maxNodeId = nodeId - 1
			tree.AssignLeafIds()
			return tree, nil
		default:
			switch m {
			case length:
				l, err := strconv.ParseFloat(text, 64)
				if err != nil {
					return nil, err
				}
				node.BranchLength = l
				m = normal
			default:
				node.Name = text
			}
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("unterminated newick tree")
}
