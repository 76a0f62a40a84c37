package tree

import (
	"math"
	"sort"
)

// NPolytomies returns the number of internal nodes with more than two
// children.
func (tree *Tree) NPolytomies() (n int) {
	for node := range tree.NonTerminals() {
		if len(node.childNodes) > 2 {
			n++
		}
	}
	return
}

// ResolvePolytomies turns every multifurcation into a ladder of
// bifurcations using temporal information only: the two oldest
// children are merged first under a new zero-length node, repeatedly,
// until the node is binary. The merge date lies between the parent
// date and the older child's date; when prior is non-nil it is
// evaluated with each candidate date already set on the attached merge
// node, and the maximizing date wins. Without a prior the interval's
// upper end is used. Children are left ordered by date.
func (tree *Tree) ResolvePolytomies(prior func() float64) {
	nodes := make([]*Node, 0, tree.NNodes())
	for node := range tree.NonTerminals() {
		if len(node.childNodes) > 2 {
			nodes = append(nodes, node)
		}
	}
	for _, node := range nodes {
		tree.resolveNode(node, prior)
	}
	if len(nodes) > 0 {
		tree.ClearCache()
		tree.AssignLeafIds()
	}
}

func (tree *Tree) resolveNode(node *Node, prior func() float64) {
	for len(node.childNodes) > 2 {
		// the two oldest children coalesce first
		c1, c2 := oldestPair(node.childNodes)
		tMax := math.Min(dateOrInf(c1), dateOrInf(c2))
		tMin := node.Date
		if math.IsNaN(tMin) || math.IsInf(tMax, 1) {
			tMin, tMax = 0, 0
		}

		merged := tree.newNode(nil)
		merged.BranchLength = 0

		node.RemoveChild(c1)
		node.RemoveChild(c2)
		merged.AddChild(c1)
		merged.AddChild(c2)
		node.AddChild(merged)
		// the prior walks the tree, the cached node counts are stale
		tree.ClearCache()

		merged.Date = mergeDate(merged, tMin, tMax, prior)
	}
	sort.SliceStable(node.childNodes, func(i, j int) bool {
		return dateOrInf(node.childNodes[i]) < dateOrInf(node.childNodes[j])
	})
}

// oldestPair returns the two children with the earliest dates;
// undated children sort last. Ties are broken by Id so resolution is
// deterministic.
func oldestPair(children []*Node) (c1, c2 *Node) {
	idx := make([]*Node, len(children))
	copy(idx, children)
	sort.SliceStable(idx, func(i, j int) bool {
		di, dj := dateOrInf(idx[i]), dateOrInf(idx[j])
		if di != dj {
			return di < dj
		}
		return idx[i].Id < idx[j].Id
	})
	return idx[0], idx[1]
}

func dateOrInf(node *Node) float64 {
	if math.IsNaN(node.Date) {
		return math.Inf(1)
	}
	return node.Date
}

// mergeDate picks the date of a new merge node within [tMin, tMax],
// trying candidate dates on the node itself.
func mergeDate(node *Node, tMin, tMax float64, prior func() float64) float64 {
	if prior == nil || tMax <= tMin {
		return tMax
	}
	// coarse scan is enough: the prior is smooth and the result is
	// refined later by the node-time optimization
	const steps = 24
	best, bestL := tMax, math.Inf(-1)
	for i := 0; i <= steps; i++ {
		t := tMin + (tMax-tMin)*float64(i)/steps
		node.Date = t
		if l := prior(); l > bestL {
			best, bestL = t, l
		}
	}
	return best
}
