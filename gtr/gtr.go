package gtr

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/phylodate/phylodate/nuc"
)

// GTR is a general time-reversible substitution model: a symmetric
// exchangeability matrix, an equilibrium frequency vector and an
// overall rate scale. The eigendecomposition of the rate matrix is
// cached for closed-form transition probabilities. A GTR value is
// immutable during a reconstruction pass; re-estimation builds a new
// value.
type GTR struct {
	w  *mat.SymDense
	pi []float64
	mu float64

	// Name is the model name used in reports ("JC69", "GTR").
	Name string

	e *ematrix
}

// New creates a GTR model from exchangeabilities, equilibrium
// frequencies and a rate scale. Frequencies are normalized to sum to
// one; exchangeabilities are rescaled so that the average rate at
// mu=1 is one substitution per site per unit branch length.
func New(w *mat.SymDense, pi []float64, mu float64) (*GTR, error) {
	if len(pi) != nuc.NState {
		return nil, fmt.Errorf("expected %d frequencies, got %d", nuc.NState, len(pi))
	}
	piSum := 0.0
	for _, p := range pi {
		if p <= 0 {
			return nil, ErrDegenerate
		}
		piSum += p
	}
	freq := make([]float64, nuc.NState)
	for i, p := range pi {
		freq[i] = p / piSum
	}

	// Average rate of the unnormalized matrix.
	scale := 0.0
	for i := 0; i < nuc.NState; i++ {
		for j := 0; j < nuc.NState; j++ {
			if i != j {
				scale += freq[i] * w.At(i, j) * freq[j]
			}
		}
	}
	if scale < smallScale {
		return nil, ErrDegenerate
	}
	ws := mat.NewSymDense(nuc.NState, nil)
	for i := 0; i < nuc.NState; i++ {
		for j := i + 1; j < nuc.NState; j++ {
			ws.SetSym(i, j, w.At(i, j)/scale)
		}
	}

	m := &GTR{w: ws, pi: freq, mu: mu, Name: "GTR"}
	if err := m.eigen(); err != nil {
		return nil, err
	}
	return m, nil
}

// JC69 returns the fixed Jukes-Cantor model: equal exchangeabilities
// and equal frequencies, selectable without estimation.
func JC69() *GTR {
	w := mat.NewSymDense(nuc.NState, nil)
	for i := 0; i < nuc.NState; i++ {
		for j := i + 1; j < nuc.NState; j++ {
			w.SetSym(i, j, 1)
		}
	}
	pi := nuc.F0()
	m, err := New(w, pi, 1)
	if err != nil {
		// equal rates and frequencies cannot be degenerate
		panic(err)
	}
	m.Name = "JC69"
	return m
}

// Pi returns the equilibrium frequency vector.
func (m *GTR) Pi() []float64 { return m.pi }

// Rate returns the overall rate scale.
func (m *GTR) Rate() float64 { return m.mu }

// W returns the exchangeability between states i and j.
func (m *GTR) W(i, j int) float64 { return m.w.At(i, j) }

// Q returns the i,j entry of the rate matrix.
func (m *GTR) Q(i, j int) float64 {
	if i == j {
		q := 0.0
		for k := 0; k < nuc.NState; k++ {
			if k != i {
				q -= m.w.At(i, k) * m.pi[k]
			}
		}
		return m.mu * q
	}
	return m.mu * m.w.At(i, j) * m.pi[j]
}

// TransitionProbability computes P=e^(Qt) into dst. For t close to
// zero the identity matrix is returned; slightly negative
// eigen-reconstruction entries are clipped at zero.
func (m *GTR) TransitionProbability(t float64, dst *mat.Dense) *mat.Dense {
	return m.e.exp(m.mu*t, dst)
}

// String returns the model in a report-friendly format.
func (m *GTR) String() string {
	s := fmt.Sprintf("%s substitution model, average rate scale %.6g\n", m.Name, m.mu)
	s += "equilibrium frequencies:\n"
	for i := 0; i < nuc.NState; i++ {
		s += fmt.Sprintf("  %c: %.4f\n", nuc.Alphabet[i], m.pi[i])
	}
	s += "symmetrized rates W:\n\t"
	for i := 0; i < nuc.NState; i++ {
		s += fmt.Sprintf("%c\t", nuc.Alphabet[i])
	}
	s += "\n"
	for i := 0; i < nuc.NState; i++ {
		s += fmt.Sprintf("  %c\t", nuc.Alphabet[i])
		for j := 0; j < nuc.NState; j++ {
			if i == j {
				s += "-\t"
			} else {
				s += fmt.Sprintf("%.4f\t", m.w.At(i, j))
			}
		}
		s += "\n"
	}
	return s
}

// eigen decomposes the rate matrix. For a reversible Q the
// similarity transform diag(sqrt(pi)) Q diag(1/sqrt(pi)) is
// symmetric, so the decomposition is done with EigenSym and the
// eigenvectors are mapped back.
func (m *GTR) eigen() error {
	n := nuc.NState
	sqp := make([]float64, n)
	for i, p := range m.pi {
		sqp[i] = math.Sqrt(p)
	}

	// sqrt(pi_i) * Q_ij / sqrt(pi_j) = W_ij sqrt(pi_i pi_j) for i != j
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		qii := 0.0
		for j := 0; j < n; j++ {
			if i != j {
				qii -= m.w.At(i, j) * m.pi[j]
			}
		}
		sym.SetSym(i, i, qii)
		for j := i + 1; j < n; j++ {
			sym.SetSym(i, j, m.w.At(i, j)*sqp[i]*sqp[j])
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(sym, true); !ok {
		return ErrDegenerate
	}
	d := es.Values(nil)
	var u mat.Dense
	es.VectorsTo(&u)

	// P(t) = diag(1/sqrt(pi)) U exp(Dt) U^T diag(sqrt(pi))
	v := mat.NewDense(n, n, nil)
	iv := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v.Set(i, j, u.At(i, j)/sqp[i])
			iv.Set(i, j, u.At(j, i)*sqp[j])
		}
	}
	m.e = &ematrix{d: d, v: v, iv: iv}
	return nil
}
