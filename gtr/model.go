// Package gtr provides time-reversible nucleotide substitution models.
package gtr

import (
	"errors"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/mat"
)

// log is the package logging variable.
var log = logging.MustGetLogger("gtr")

// ErrDegenerate is returned when the substitution data is not
// sufficient to estimate a model (e.g. not all residues observed or
// all branch lengths zero).
var ErrDegenerate = errors.New("degenerate substitution data")

// smallScale is a small value such that if the Q-matrix scale is less
// than it, the likelihood surface is degenerate.
const smallScale = 1e-30

// smallTime is a small value such that for shorter scaled branches
// the transition matrix is replaced by an identity matrix.
const smallTime = 1e-12

// Model is the capability interface of a substitution model: it
// exposes equilibrium frequencies and closed-form transition
// probabilities over a branch. The model set is closed (fixed JC69 or
// an estimated GTR); both are *GTR values.
type Model interface {
	// Pi returns the equilibrium frequency vector.
	Pi() []float64
	// Rate returns the overall substitution rate scale.
	Rate() float64
	// TransitionProbability computes P(child|parent) for a branch of
	// the given length (substitutions/site) into dst.
	TransitionProbability(t float64, dst *mat.Dense) *mat.Dense
	// String returns a human-readable model description.
	String() string
}
