package clock

import (
	"fmt"
	"math"

	"github.com/phylodate/phylodate/bio"
	"github.com/phylodate/phylodate/optimize"
	"github.com/phylodate/phylodate/tree"
)

// rootEps is the branch fraction below which a candidate root
// coincides with an existing node.
const rootEps = 1e-6

// belowStats accumulates, for the dated tips below a node, the tip
// count, the date sum and the distance moments measured from the
// node.
type belowStats struct {
	n  float64 // dated tips below
	t  float64 // sum of dates
	s  float64 // sum of distances
	ss float64 // sum of squared distances
	st float64 // sum of distance*date
}

// rootScore is the root-to-tip correlation at a candidate root
// position, given the global date moments and the distance moments at
// the position.
func rootScore(n, sumT, sumTT, sd, sdd, sdt float64) float64 {
	num := n*sdt - sd*sumT
	den := (n*sdd - sd*sd) * (n*sumTT - sumT*sumT)
	if den <= 0 {
		return math.Inf(-1)
	}
	return num / math.Sqrt(den)
}

// BestRoot reroots the tree at the position (on any branch) which
// maximizes the correlation between root-to-tip distance and sampling
// date, and returns the achieved correlation. The search is linear in
// the number of nodes: distance moments are propagated incrementally
// from parent to child.
func BestRoot(t *tree.Tree, dates bio.Dates) (float64, error) {
	below := make([]belowStats, t.MaxNodeId()+1)
	for leaf := range t.Terminals() {
		if d, ok := dates[leaf.Name]; ok {
			below[leaf.Id] = belowStats{n: 1, t: d.Year}
		}
	}
	for _, node := range t.NodeOrder() {
		agg := belowStats{}
		for _, child := range node.ChildNodes() {
			c := below[child.Id]
			b := child.BranchLength
			agg.n += c.n
			agg.t += c.t
			agg.s += c.s + b*c.n
			agg.ss += c.ss + 2*b*c.s + b*b*c.n
			agg.st += c.st + b*c.t
		}
		below[node.Id] = agg
	}

	root := below[t.Node.Id]
	n, sumT := root.n, root.t
	if n < 3 {
		return 0, fmt.Errorf("%w: only %d dated tips", ErrDegenerate, int(n))
	}
	sumTT := 0.0
	for leaf := range t.Terminals() {
		if d, ok := dates[leaf.Name]; ok {
			sumTT += d.Year * d.Year
		}
	}
	if n*sumTT-sumT*sumT <= 0 {
		return 0, fmt.Errorf("%w: all tips sampled at the same date", ErrDegenerate)
	}

	// moments at every node position, filled in preorder
	type moments struct{ sd, sdd, sdt float64 }
	at := make([]moments, t.MaxNodeId()+1)
	at[t.Node.Id] = moments{root.s, root.ss, root.st}

	bestScore := rootScore(n, sumT, sumTT, root.s, root.ss, root.st)
	var bestNode *tree.Node
	bestX := 0.0

	for node := range t.Walker(nil) {
		p := at[node.Id]
		for _, child := range node.ChildNodes() {
			b := child.BranchLength
			c := below[child.Id]
			// distance sum from the parent to the tips below child
			sBelow := c.s + b*c.n
			// moments at distance x from the parent toward child
			move := func(x float64) moments {
				return moments{
					sd:  p.sd + x*(n-2*c.n),
					sdd: p.sdd + x*x*n + 2*x*(p.sd-2*sBelow),
					sdt: p.sdt + x*(sumT-2*c.t),
				}
			}
			at[child.Id] = move(b)
			if b <= 0 {
				continue
			}
			x, score := optimize.BrentMax(func(x float64) float64 {
				m := move(x)
				return rootScore(n, sumT, sumTT, m.sd, m.sdd, m.sdt)
			}, 0, b, 1e-8, 100)
			if score > bestScore {
				bestScore, bestNode, bestX = score, child, x
			}
		}
	}

	if bestNode == nil {
		log.Info("best root: the current root is already optimal")
		return bestScore, nil
	}

	b := bestNode.BranchLength
	switch {
	case bestX >= b*(1-rootEps) && !bestNode.IsTerminal():
		t.Reroot(bestNode)
	case bestX <= b*rootEps && bestNode.Parent.IsRoot():
		// already rooted there
	default:
		x := math.Min(math.Max(bestX, b*rootEps), b*(1-rootEps))
		mid := t.SplitBranch(bestNode, b-x)
		t.Reroot(mid)
	}
	log.Infof("best root: correlation %.4f", bestScore)
	return bestScore, nil
}
