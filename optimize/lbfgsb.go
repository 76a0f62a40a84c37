package optimize

import (
	"math"

	lbfgsb "github.com/idavydov/go-lbfgsb"
)

// LBFGSB is the bounded limited-memory BFGS optimizer. Gradients are
// estimated by central finite differences on copies of the objective.
type LBFGSB struct {
	BaseOptimizer
	parameters FloatParameters
	dH         float64
	grad       []float64
}

// NewLBFGSB creates a new LBFGSB optimizer.
func NewLBFGSB() (l *LBFGSB) {
	l = &LBFGSB{
		BaseOptimizer: BaseOptimizer{
			method:    "lbfgsb",
			repPeriod: 10,
		},
		dH: 1e-6,
	}
	return
}

// SetOptimizable sets the objective.
func (l *LBFGSB) SetOptimizable(opt Optimizable) {
	l.Optimizable = opt
	l.parameters = opt.GetFloatParameters()
}

// Logger is called by the lbfgsb library on every iteration.
func (l *LBFGSB) Logger(info *lbfgsb.OptimizationIterationInformation) {
	l.i = info.Iteration
	if l.repPeriod > 0 && info.Iteration%l.repPeriod == 0 {
		l.parameters.SetValues(info.X)
		l.PrintLine(l.parameters, -info.F)
	}
}

// EvaluateFunction computes the negative log-likelihood at x.
func (l *LBFGSB) EvaluateFunction(x []float64) float64 {
	if !l.parameters.ValuesInRange(x) {
		return math.Inf(+1)
	}

	l.parameters.SetValues(x)

	L := l.Likelihood()
	l.calls++
	if L > l.maxL {
		l.maxL = L
		l.maxLPar = l.parameters.Values(l.maxLPar)
	}
	return -L
}

// EvaluateGradient estimates the gradient by central differences.
func (l *LBFGSB) EvaluateGradient(x []float64) (grad []float64) {
	if l.grad == nil {
		l.grad = make([]float64, len(x))
	}
	grad = l.grad
	no1 := l.Optimizable.Copy()
	par1 := no1.GetFloatParameters()
	for i := range x {
		par1.SetValues(x)
		par1[i].Set(x[i] - l.dH)
		l1 := -no1.Likelihood()
		l.calls++

		par1[i].Set(x[i] + l.dH)
		l2 := -no1.Likelihood()
		l.calls++

		grad[i] = (l2 - l1) / 2 / l.dH
	}
	return
}

// Run runs the optimization for at most iterations iterations.
func (l *LBFGSB) Run(iterations int) {
	l.maxL = math.Inf(-1)
	l.PrintHeader(l.parameters)
	bounds := make([][2]float64, len(l.parameters))

	for i, par := range l.parameters {
		bounds[i][0] = par.GetMin()
		bounds[i][1] = par.GetMax()
	}

	opt := new(lbfgsb.Lbfgsb)
	opt.SetApproximationSize(10)
	opt.SetFTolerance(1e-9)
	opt.SetGTolerance(1e-9)

	opt.SetBounds(bounds)
	opt.SetLogger(l.Logger)

	_, exitStatus := opt.Minimize(l, l.parameters.Values(nil))

	log.Infof("LBFGSB exit status: %v", exitStatus)

	if l.maxLPar != nil {
		l.parameters.SetValues(l.maxLPar)
	}

	if !l.Quiet {
		log.Info("Finished LBFGSB")
		log.Noticef("Maximum likelihood: %v", l.maxL)
		log.Infof("Likelihood function calls: %v", l.calls)
		log.Infof("Parameter  names: %v", l.parameters.NamesString())
		log.Infof("Parameter values: %v", l.maxLPar)
	}
	l.PrintFinal(l.parameters)
}
