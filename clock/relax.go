package clock

import (
	"github.com/phylodate/phylodate/tree"
)

// relaxIterations is the number of coordinate descent sweeps of the
// relaxed clock fit.
const relaxIterations = 20

// Relax estimates per-branch rate multipliers by coordinate descent
// on a penalized least squares objective: the fit of every branch
// length to multiplier*rate*elapsed time, a slack penalty pulling
// multipliers toward one and a coupling penalty pulling neighboring
// branches together. Returns the multipliers indexed by node Id, with
// mean one.
func Relax(t *tree.Tree, rate, slack, coupling float64) []float64 {
	gamma := make([]float64, t.MaxNodeId()+1)
	for i := range gamma {
		gamma[i] = 1
	}

	nodes := make([]*tree.Node, 0, t.NNodes())
	for node := range t.Walker(nil) {
		if !node.IsRoot() {
			nodes = append(nodes, node)
		}
	}

	for iter := 0; iter < relaxIterations; iter++ {
		for _, node := range nodes {
			dt := node.Date - node.Parent.Date
			if dt < 0 {
				dt = 0
			}
			e := rate * dt // expected divergence at multiplier one

			num := node.BranchLength*e + slack
			den := e*e + slack
			if !node.Parent.IsRoot() {
				num += coupling * gamma[node.Parent.Id]
				den += coupling
			}
			for _, child := range node.ChildNodes() {
				num += coupling * gamma[child.Id]
				den += coupling
			}
			if den > 0 {
				gamma[node.Id] = num / den
			}
		}

		// renormalize to mean one, the overall rate carries the scale
		sum := 0.0
		for _, node := range nodes {
			sum += gamma[node.Id]
		}
		if sum > 0 {
			scale := float64(len(nodes)) / sum
			for _, node := range nodes {
				gamma[node.Id] *= scale
			}
		}
	}
	log.Debugf("relaxed clock: %d branch multipliers fitted", len(nodes))
	return gamma
}
