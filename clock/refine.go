package clock

import (
	"math"

	"github.com/phylodate/phylodate/optimize"
	"github.com/phylodate/phylodate/tree"
)

// RefineDates adjusts internal node dates one at a time by maximizing
// the clock term (squared deviation between observed branch lengths
// and rate times elapsed time) plus an optional tree prior. The prior
// callback is evaluated with the candidate date already set on the
// node. Dates stay ordered: every node is kept between its parent and
// its oldest child.
func RefineDates(t *tree.Tree, rate float64, prior func() float64, sweeps int) {
	var minTip, maxTip float64 = math.Inf(+1), math.Inf(-1)
	for leaf := range t.Terminals() {
		if math.IsNaN(leaf.Date) {
			continue
		}
		minTip = math.Min(minTip, leaf.Date)
		maxTip = math.Max(maxTip, leaf.Date)
	}
	span := maxTip - minTip + 1

	for sweep := 0; sweep < sweeps; sweep++ {
		for _, node := range t.NodeOrder() {
			hi := math.Inf(+1)
			for _, child := range node.ChildNodes() {
				if child.Date < hi {
					hi = child.Date
				}
			}
			lo := hi - 2*span
			if !node.IsRoot() {
				lo = node.Parent.Date
			}
			if !(hi > lo) {
				continue
			}

			saved := node.Date
			f := func(tau float64) float64 {
				node.Date = tau
				v := 0.0
				// residuals in years, so the clock term is on the
				// same scale as the prior
				if !node.IsRoot() {
					r := node.BranchLength/rate - (tau - node.Parent.Date)
					v -= r * r
				}
				for _, child := range node.ChildNodes() {
					r := child.BranchLength/rate - (child.Date - tau)
					v -= r * r
				}
				if prior != nil {
					v += prior()
				}
				return v
			}
			best, bestVal := optimize.BrentMax(f, lo, hi, 1e-8, 100)
			if bestVal >= f(saved) {
				node.Date = best
			} else {
				node.Date = saved
			}
		}
	}
}
