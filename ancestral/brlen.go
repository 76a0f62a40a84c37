package ancestral

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/phylodate/phylodate/gtr"
	"github.com/phylodate/phylodate/nuc"
	"github.com/phylodate/phylodate/optimize"
)

// optimizeBranch finds the branch length maximizing the probability
// of the observed parent to child state counts.
func optimizeBranch(model gtr.Model, counts *[nuc.NState][nuc.NState]float64, scratch *mat.Dense) float64 {
	f := func(t float64) float64 {
		model.TransitionProbability(t, scratch)
		lnL := 0.0
		for i := 0; i < nuc.NState; i++ {
			for j := 0; j < nuc.NState; j++ {
				if counts[i][j] == 0 {
					continue
				}
				p := scratch.At(i, j)
				if p <= 0 {
					return math.Inf(-1)
				}
				lnL += counts[i][j] * math.Log(p)
			}
		}
		return lnL
	}
	bl, _ := optimize.BrentMax(f, minBranch, maxBranch, brTol, 100)
	return bl
}
