package gtr

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/phylodate/phylodate/nuc"
)

const (
	// estimation stops once the frequency vector moves less than this.
	estTol = 1e-5
	// cap on the alternating updates.
	estMaxIter = 40
)

// Estimate fits a GTR model to substitution counts by alternating
// updates of the exchangeabilities and the equilibrium frequencies,
// regularized with the pseudocount pc. It fails with ErrDegenerate
// when some residue was never observed or all branch lengths are
// zero; callers are expected to fall back to JC69.
func Estimate(c *nuc.Counts, pc float64) (*GTR, error) {
	n := nuc.NState
	if c.TimeTotal() < smallScale {
		return nil, ErrDegenerate
	}
	for i := 0; i < n; i++ {
		seen := c.Ti[i] > 0 || c.Root[i] > 0
		for j := 0; j < n && !seen; j++ {
			seen = c.Nij[j][i] > 0
		}
		if !seen {
			return nil, ErrDegenerate
		}
	}

	rootTot := 0.0
	for i := 0; i < n; i++ {
		rootTot += c.Root[i]
	}

	pi := nuc.F0()
	w := make([][]float64, n)
	for i := range w {
		w[i] = make([]float64, n)
		for j := range w[i] {
			if i != j {
				w[i][j] = 1
			}
		}
	}
	mu := 1.0

	for iter := 0; iter < estMaxIter; iter++ {
		// exchangeabilities from the symmetrized counts
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				wij := (c.Nij[i][j] + c.Nij[j][i] + 2*pc) /
					(mu*(pi[i]*c.Ti[j]+pi[j]*c.Ti[i]) + 2*pc)
				w[i][j] = wij
				w[j][i] = wij
			}
		}
		// keep the average rate at one so mu carries the scale
		scale := 0.0
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				scale += pi[i] * w[i][j] * pi[j]
			}
		}
		if scale < smallScale {
			return nil, ErrDegenerate
		}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				w[i][j] /= scale
			}
		}

		// frequencies from arrivals and the root state
		delta := 0.0
		for i := 0; i < n; i++ {
			arrivals := c.Root[i] + pc
			for j := 0; j < n; j++ {
				arrivals += c.Nij[j][i]
			}
			flux := rootTot + float64(n)*pc
			for j := 0; j < n; j++ {
				flux += mu * w[i][j] * c.Ti[j]
			}
			p := arrivals / flux
			delta = math.Max(delta, math.Abs(p-pi[i]))
			pi[i] = p
		}
		piSum := 0.0
		for _, p := range pi {
			piSum += p
		}
		for i := range pi {
			pi[i] /= piSum
		}

		// overall rate from the substitution flux
		flux := 0.0
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				flux += pi[i] * w[i][j] * c.Ti[j]
			}
		}
		if flux < smallScale {
			return nil, ErrDegenerate
		}
		mu = (c.NSubstitutions() + pc) / (flux + pc)

		if delta < estTol {
			log.Debugf("GTR estimation converged after %d iterations", iter+1)
			break
		}
	}

	ws := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			ws.SetSym(i, j, w[i][j])
		}
	}
	return New(ws, pi, mu)
}
