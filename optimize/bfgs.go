package optimize

import (
	"math"

	gopt "gonum.org/v1/gonum/optimize"
)

// BFGS wraps the gonum BFGS method. Unlike LBFGSB the bounds are
// enforced by returning +Inf outside the box, so it is only suitable
// for objectives whose optimum is interior.
type BFGS struct {
	BaseOptimizer
	parameters FloatParameters
	dH         float64
}

// NewBFGS creates a new BFGS optimizer.
func NewBFGS() (b *BFGS) {
	b = &BFGS{
		BaseOptimizer: BaseOptimizer{
			method:    "bfgs",
			repPeriod: 10,
		},
		dH: 1e-6,
	}
	return
}

// SetOptimizable sets the objective.
func (b *BFGS) SetOptimizable(opt Optimizable) {
	b.Optimizable = opt
	b.parameters = opt.GetFloatParameters()
}

// Func computes the negative log-likelihood at x.
func (b *BFGS) Func(x []float64) float64 {
	if !b.parameters.ValuesInRange(x) {
		return math.Inf(+1)
	}

	b.parameters.SetValues(x)

	l := b.Likelihood()
	b.calls++
	if l > b.maxL {
		b.maxL = l
		b.maxLPar = b.parameters.Values(b.maxLPar)
	}
	return -l
}

// Grad estimates the gradient by forward differences.
func (b *BFGS) Grad(grad, x []float64) {
	no1 := b.Optimizable.Copy()
	par1 := no1.GetFloatParameters()
	par1.SetValues(x)
	l1 := -no1.Likelihood()
	b.calls++
	for i := range x {
		v := x[i] + b.dH
		switch {
		case par1[i].ValueInRange(v):
			old := x[i]
			par1[i].Set(v)
			l2 := -no1.Likelihood()
			b.calls++
			par1[i].Set(old)
			grad[i] = (l2 - l1) / b.dH
		case v > par1[i].GetMax():
			grad[i] = math.Inf(1)
		default:
			grad[i] = math.Inf(-1)
		}
	}
}

// Run runs the optimization for at most iterations major iterations.
func (b *BFGS) Run(iterations int) {
	b.maxL = math.Inf(-1)
	b.PrintHeader(b.parameters)

	problem := gopt.Problem{
		Func: b.Func,
		Grad: b.Grad,
	}
	settings := &gopt.Settings{
		MajorIterations:   iterations,
		GradientThreshold: 1e-3,
	}

	result, err := gopt.Minimize(problem, b.parameters.Values(nil), settings, &gopt.BFGS{})
	if err != nil {
		log.Warningf("BFGS optimization: %v", err)
	}
	if result != nil {
		b.i = result.MajorIterations
	}

	if b.maxLPar != nil {
		b.parameters.SetValues(b.maxLPar)
	}

	if !b.Quiet {
		log.Info("Finished BFGS")
		log.Noticef("Maximum likelihood: %v", b.maxL)
		log.Infof("Parameter  names: %v", b.parameters.NamesString())
		log.Infof("Parameter values: %v", b.maxLPar)
	}
	b.PrintFinal(b.parameters)
}
