package gtr

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/phylodate/phylodate/nuc"
)

// ematrix stores the eigendecomposition of a rate matrix to quickly
// compute e^Qt.
type ematrix struct {
	d  []float64
	v  *mat.Dense
	iv *mat.Dense
}

// exp computes P=e^Qt into dst.
func (e *ematrix) exp(t float64, dst *mat.Dense) *mat.Dense {
	n := nuc.NState
	if dst == nil {
		dst = mat.NewDense(n, n, nil)
	}
	if t < smallTime {
		identity(dst)
		return dst
	}
	// dirty hack to allow infinite branches
	if math.IsInf(t, 1) {
		t = math.MaxFloat64
	}

	cd := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		cd.Set(i, i, math.Exp(e.d[i]*t))
	}
	dst.Mul(e.v, cd)
	dst.Mul(dst, e.iv)
	// remove slightly negative values
	dst.Apply(func(r, c int, v float64) float64 {
		return math.Max(0, v)
	}, dst)
	return dst
}

// identity fills dst with an identity matrix.
func identity(dst *mat.Dense) {
	for i := 0; i < nuc.NState; i++ {
		for j := 0; j < nuc.NState; j++ {
			if i == j {
				dst.Set(i, j, 1)
			} else {
				dst.Set(i, j, 0)
			}
		}
	}
}
