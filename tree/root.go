package tree

import "errors"

// Reroot makes node the new root of the tree. The edges on the path
// from node to the old root are reversed; if the old root is left
// with a single child it is collapsed and its branch lengths merged.
// Node Ids of surviving nodes are preserved.
func (tree *Tree) Reroot(node *Node) {
	if node.IsRoot() {
		return
	}

	var path []*Node
	for n := node; n != nil; n = n.Parent {
		path = append(path, n)
	}
	lengths := make([]float64, len(path))
	for i, n := range path {
		lengths[i] = n.BranchLength
	}

	// Detach the path edges, then rewire them in reverse.
	for i := 0; i < len(path)-1; i++ {
		path[i+1].RemoveChild(path[i])
	}
	for i := 0; i < len(path)-1; i++ {
		path[i].AddChild(path[i+1])
		path[i+1].BranchLength = lengths[i]
	}
	node.Parent = nil
	node.BranchLength = 0

	oldRoot := path[len(path)-1]
	if len(oldRoot.childNodes) == 1 {
		// a bifurcating old root degenerates into a pass-through node
		child := oldRoot.childNodes[0]
		child.BranchLength += oldRoot.BranchLength
		oldRoot.RemoveChild(child)
		oldRoot.Parent.ReplaceChild(oldRoot, child)
	}

	tree.Node = node
	tree.ClearCache()
	tree.AssignLeafIds()
}

// FindNode returns the node with the given name, or nil.
func (tree *Tree) FindNode(name string) *Node {
	for node := range tree.Walker(nil) {
		if node.Name == name {
			return node
		}
	}
	return nil
}

// SplitBranch inserts a new node on the branch above child, at dist
// from the child end, and returns it.
func (tree *Tree) SplitBranch(child *Node, dist float64) *Node {
	parent := child.Parent
	node := tree.newNode(nil)
	parent.ReplaceChild(child, node)
	node.AddChild(child)
	node.BranchLength = child.BranchLength - dist
	child.BranchLength = dist
	tree.ClearCache()
	return node
}

// MidpointRoot reroots the tree at the topological midpoint: the
// middle of the longest leaf-to-leaf path.
func (tree *Tree) MidpointRoot() error {
	a := tree.farthestLeaf(nil)
	if a == nil {
		return errors.New("tree has no leaves")
	}
	u, _ := tree.farthestFrom(a)
	v, diameter := tree.farthestFrom(u)
	if diameter <= 0 {
		return errors.New("all branch lengths are zero, midpoint is undefined")
	}

	// Walk the u-v path until the midpoint falls inside an edge.
	path := treePath(u, v)
	left := diameter / 2
	for i := 0; i < len(path)-1; i++ {
		cur, next := path[i], path[i+1]
		var edgeLen float64
		var child *Node
		if next.Parent == cur {
			edgeLen, child = next.BranchLength, next
		} else {
			edgeLen, child = cur.BranchLength, cur
		}
		if left <= edgeLen || i == len(path)-2 {
			var mid *Node
			if child == next {
				mid = tree.SplitBranch(child, edgeLen-left)
			} else {
				mid = tree.SplitBranch(child, left)
			}
			tree.Reroot(mid)
			return nil
		}
		left -= edgeLen
	}
	return errors.New("midpoint not found")
}

// farthestLeaf returns any leaf (used as the starting point of the
// diameter search).
func (tree *Tree) farthestLeaf(filter func(*Node) bool) *Node {
	for node := range tree.Terminals() {
		if filter == nil || filter(node) {
			return node
		}
	}
	return nil
}

// farthestFrom returns the leaf with the largest path distance from
// start over the undirected tree metric, together with the distance.
func (tree *Tree) farthestFrom(start *Node) (best *Node, bestDist float64) {
	dist := make(map[*Node]float64, tree.NNodes())
	visited := make(map[*Node]bool, tree.NNodes())
	queue := []*Node{start}
	visited[start] = true
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, adj := range neighbors(n) {
			if visited[adj.node] {
				continue
			}
			visited[adj.node] = true
			dist[adj.node] = dist[n] + adj.length
			queue = append(queue, adj.node)
		}
	}
	bestDist = -1
	for node := range tree.Terminals() {
		if node == start {
			continue
		}
		if d := dist[node]; d > bestDist {
			best, bestDist = node, d
		}
	}
	return
}

type edge struct {
	node   *Node
	length float64
}

// neighbors lists the undirected adjacency of a node.
func neighbors(n *Node) (adj []edge) {
	if n.Parent != nil {
		adj = append(adj, edge{n.Parent, n.BranchLength})
	}
	for _, child := range n.childNodes {
		adj = append(adj, edge{child, child.BranchLength})
	}
	return
}

// treePath returns the node path between two nodes over the
// undirected tree.
func treePath(from, to *Node) []*Node {
	prev := map[*Node]*Node{from: nil}
	queue := []*Node{from}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n == to {
			break
		}
		for _, adj := range neighbors(n) {
			if _, ok := prev[adj.node]; ok {
				continue
			}
			prev[adj.node] = n
			queue = append(queue, adj.node)
		}
	}
	var path []*Node
	for n := to; n != nil; n = prev[n] {
		path = append(path, n)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
