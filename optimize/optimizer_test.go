package optimize

import (
	"fmt"
	"math"
	"testing"
)

// paraboloid is a concave objective with a single maximum at opt.
type paraboloid struct {
	x          []float64
	opt        []float64
	parameters FloatParameters
}

func newParaboloid(opt []float64) *paraboloid {
	p := &paraboloid{x: make([]float64, len(opt)), opt: opt}
	p.setupParameters()
	return p
}

func (p *paraboloid) setupParameters() {
	p.parameters = nil
	for i := range p.x {
		par := NewBasicFloatParameter(&p.x[i], fmt.Sprintf("x%02d", i))
		par.SetMin(-10)
		par.SetMax(10)
		p.parameters.Append(par)
	}
}

func (p *paraboloid) GetFloatParameters() FloatParameters {
	return p.parameters
}

func (p *paraboloid) Likelihood() (lnL float64) {
	for i, x := range p.x {
		d := x - p.opt[i]
		lnL -= d * d
	}
	return lnL
}

func (p *paraboloid) Copy() Optimizable {
	newP := &paraboloid{x: append([]float64{}, p.x...), opt: p.opt}
	newP.setupParameters()
	return newP
}

func TestSimplexParaboloid(tst *testing.T) {
	p := newParaboloid([]float64{1.5, -2})
	opt := NewDS()
	opt.SetQuiet(true)
	opt.SetOptimizable(p)
	opt.Run(2000)
	for i, v := range opt.GetMaxLParameters() {
		if math.Abs(v-p.opt[i]) > 1e-3 {
			tst.Errorf("parameter %d = %v, expected %v", i, v, p.opt[i])
		}
	}
	if opt.GetMaxL() < -1e-4 {
		tst.Errorf("maximum %v, expected ~0", opt.GetMaxL())
	}
	if opt.Summary().Method != "simplex" {
		tst.Errorf("method %q, expected simplex", opt.Summary().Method)
	}
}

func TestBFGSParaboloid(tst *testing.T) {
	p := newParaboloid([]float64{0.5, 3})
	opt := NewBFGS()
	opt.SetQuiet(true)
	opt.SetOptimizable(p)
	opt.Run(200)
	for i, v := range opt.GetMaxLParameters() {
		if math.Abs(v-p.opt[i]) > 1e-2 {
			tst.Errorf("parameter %d = %v, expected %v", i, v, p.opt[i])
		}
	}
	if opt.GetMaxL() < -1e-3 {
		tst.Errorf("maximum %v, expected ~0", opt.GetMaxL())
	}
}

func TestNewOptimizerMethods(tst *testing.T) {
	for _, method := range []string{"lbfgsb", "simplex", "bfgs"} {
		opt, err := NewOptimizer(method)
		if err != nil || opt == nil {
			tst.Errorf("NewOptimizer(%q): %v", method, err)
		}
	}
	if _, err := NewOptimizer("bogus"); err == nil {
		tst.Error("expected an error for an unknown method")
	}
}
