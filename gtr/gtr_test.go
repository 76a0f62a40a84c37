package gtr

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/phylodate/phylodate/nuc"
)

const smallDiff = 1e-9

func TestJC69ClosedForm(tst *testing.T) {
	m := JC69()
	for _, t := range []float64{0.01, 0.1, 0.5, 1, 4} {
		p := m.TransitionProbability(t, nil)
		same := 0.25 + 0.75*math.Exp(-4*t/3)
		diff := 0.25 - 0.25*math.Exp(-4*t/3)
		for i := 0; i < nuc.NState; i++ {
			for j := 0; j < nuc.NState; j++ {
				want := diff
				if i == j {
					want = same
				}
				if math.Abs(p.At(i, j)-want) > 1e-10 {
					tst.Errorf("t=%v: P[%d][%d]=%v, expected %v",
						t, i, j, p.At(i, j), want)
				}
			}
		}
	}
}

func TestTransitionRows(tst *testing.T) {
	w := mat.NewSymDense(nuc.NState, nil)
	w.SetSym(0, 1, 1)
	w.SetSym(0, 2, 4)
	w.SetSym(0, 3, 1)
	w.SetSym(1, 2, 1)
	w.SetSym(1, 3, 4)
	w.SetSym(2, 3, 1)
	m, err := New(w, []float64{0.4, 0.3, 0.2, 0.1}, 1.5)
	if err != nil {
		tst.Fatal(err)
	}
	for _, t := range []float64{0, 0.05, 0.3, 2} {
		p := m.TransitionProbability(t, nil)
		for i := 0; i < nuc.NState; i++ {
			sum := 0.0
			for j := 0; j < nuc.NState; j++ {
				sum += p.At(i, j)
			}
			if math.Abs(sum-1) > 1e-9 {
				tst.Errorf("t=%v: row %d sums to %v", t, i, sum)
			}
		}
	}
	p := m.TransitionProbability(0, nil)
	for i := 0; i < nuc.NState; i++ {
		if math.Abs(p.At(i, i)-1) > smallDiff {
			tst.Errorf("P[%d][%d]=%v at t=0", i, i, p.At(i, i))
		}
	}
}

func TestRateMatrix(tst *testing.T) {
	w := mat.NewSymDense(nuc.NState, nil)
	for i := 0; i < nuc.NState; i++ {
		for j := i + 1; j < nuc.NState; j++ {
			w.SetSym(i, j, float64(i+j))
		}
	}
	pi := []float64{0.1, 0.2, 0.3, 0.4}
	m, err := New(w, pi, 2)
	if err != nil {
		tst.Fatal(err)
	}
	// rows of Q sum to zero, the average rate equals mu
	avg := 0.0
	for i := 0; i < nuc.NState; i++ {
		sum := 0.0
		for j := 0; j < nuc.NState; j++ {
			sum += m.Q(i, j)
		}
		if math.Abs(sum) > smallDiff {
			tst.Errorf("Q row %d sums to %v", i, sum)
		}
		avg -= m.Pi()[i] * m.Q(i, i)
	}
	if math.Abs(avg-m.Rate()) > smallDiff {
		tst.Errorf("average rate %v, expected %v", avg, m.Rate())
	}
	// detailed balance: pi_i Q_ij = pi_j Q_ji
	for i := 0; i < nuc.NState; i++ {
		for j := 0; j < nuc.NState; j++ {
			if math.Abs(m.Pi()[i]*m.Q(i, j)-m.Pi()[j]*m.Q(j, i)) > smallDiff {
				tst.Errorf("no detailed balance for %d, %d", i, j)
			}
		}
	}
}

func TestNewErrors(tst *testing.T) {
	w := mat.NewSymDense(nuc.NState, nil)
	w.SetSym(0, 1, 1)
	if _, err := New(w, []float64{0.25, 0.25, 0.25}, 1); err == nil {
		tst.Error("expected an error for a short frequency vector")
	}
	if _, err := New(w, []float64{0.5, 0.5, 0, 0}, 1); err != ErrDegenerate {
		tst.Errorf("zero frequency gives %v, expected ErrDegenerate", err)
	}
	zero := mat.NewSymDense(nuc.NState, nil)
	if _, err := New(zero, nuc.F0(), 1); err != ErrDegenerate {
		tst.Errorf("zero exchangeabilities give %v, expected ErrDegenerate", err)
	}
}

// jcCounts returns synthetic sufficient statistics of a Jukes-Cantor
// process at the given rate: equal occupancy and the matching
// expected substitution counts.
func jcCounts(mu float64) *nuc.Counts {
	c := &nuc.Counts{}
	const ti = 100.0
	for i := 0; i < nuc.NState; i++ {
		c.Ti[i] = ti
		c.Root[i] = 25
		for j := 0; j < nuc.NState; j++ {
			if i != j {
				c.Nij[i][j] = mu * ti / 3
			}
		}
	}
	c.TotalTime = 4 * ti
	return c
}

func TestEstimate(tst *testing.T) {
	m, err := Estimate(jcCounts(2), 0.1)
	if err != nil {
		tst.Fatal(err)
	}
	for i, p := range m.Pi() {
		if math.Abs(p-0.25) > 0.01 {
			tst.Errorf("pi[%d]=%v, expected ~0.25", i, p)
		}
	}
	if math.Abs(m.Rate()-2) > 0.02 {
		tst.Errorf("rate %v, expected ~2", m.Rate())
	}
	// normalized equal exchangeabilities are 4/3
	for i := 0; i < nuc.NState; i++ {
		for j := i + 1; j < nuc.NState; j++ {
			if math.Abs(m.W(i, j)-4.0/3) > 0.02 {
				tst.Errorf("W[%d][%d]=%v, expected ~4/3", i, j, m.W(i, j))
			}
		}
	}
}

func TestEstimateDegenerate(tst *testing.T) {
	if _, err := Estimate(&nuc.Counts{}, 0.1); err != ErrDegenerate {
		tst.Errorf("empty counts give %v, expected ErrDegenerate", err)
	}
	c := &nuc.Counts{}
	// residue T never observed
	c.Ti[0], c.Ti[1], c.Ti[2] = 1, 1, 1
	c.Nij[0][1] = 1
	if _, err := Estimate(c, 0.1); err != ErrDegenerate {
		tst.Errorf("missing residue gives %v, expected ErrDegenerate", err)
	}
}
