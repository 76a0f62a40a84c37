package optimize

import (
	"fmt"
	"os"
	"os/signal"
)

// Optimizer is a maximizer of an Optimizable.
type Optimizer interface {
	SetOptimizable(Optimizable)
	WatchSignals(...os.Signal)
	SetReportPeriod(period int)
	SetQuiet(quiet bool)
	Run(iterations int)
	GetMaxL() float64
	GetMaxLParameters() []float64
	Summary() Summary
}

// Summary stores the result of one optimizer run.
type Summary struct {
	// Method is the optimizer name.
	Method string `json:"method"`
	// MaxLnL is the maximum log-likelihood found.
	MaxLnL float64 `json:"maxLnL"`
	// Iterations is the number of iterations performed.
	Iterations int `json:"iterations"`
	// Calls is the number of likelihood function calls.
	Calls int `json:"calls,omitempty"`
}

// BaseOptimizer implements the optimizer bookkeeping shared by all
// methods.
type BaseOptimizer struct {
	Optimizable
	method    string
	i         int
	calls     int
	maxL      float64
	maxLPar   []float64
	repPeriod int
	sig       chan os.Signal
	Quiet     bool
}

// SetOptimizable sets the objective.
func (o *BaseOptimizer) SetOptimizable(opt Optimizable) {
	o.Optimizable = opt
}

// WatchSignals makes a running optimizer stop cleanly on the given
// signals.
func (o *BaseOptimizer) WatchSignals(sigs ...os.Signal) {
	o.sig = make(chan os.Signal, 1)
	signal.Notify(o.sig, sigs...)
}

// SetReportPeriod sets the trajectory reporting period.
func (o *BaseOptimizer) SetReportPeriod(period int) {
	o.repPeriod = period
}

// SetQuiet disables the trajectory reporting.
func (o *BaseOptimizer) SetQuiet(quiet bool) {
	o.Quiet = quiet
}

// PrintHeader logs the trajectory header.
func (o *BaseOptimizer) PrintHeader(parameters FloatParameters) {
	if !o.Quiet {
		log.Infof("iteration\tlikelihood\t%s", parameters.NamesString())
	}
}

// PrintLine logs one trajectory line.
func (o *BaseOptimizer) PrintLine(parameters FloatParameters, l float64) {
	if !o.Quiet {
		log.Infof("%d\t%f\t%s", o.i, l, parameters.ValuesString())
	}
}

// PrintFinal logs the final parameter values.
func (o *BaseOptimizer) PrintFinal(parameters FloatParameters) {
	if !o.Quiet {
		for _, par := range parameters {
			log.Noticef("%s=%v", par.Name(), par.Get())
		}
	}
}

// GetMaxL returns the maximum likelihood found.
func (o *BaseOptimizer) GetMaxL() float64 {
	return o.maxL
}

// GetMaxLParameters returns the maximum likelihood parameter values.
func (o *BaseOptimizer) GetMaxLParameters() []float64 {
	return o.maxLPar
}

// Summary returns the run summary.
func (o *BaseOptimizer) Summary() Summary {
	return Summary{
		Method:     o.method,
		MaxLnL:     o.maxL,
		Iterations: o.i,
		Calls:      o.calls,
	}
}

// interrupted reports and consumes a pending stop signal.
func (o *BaseOptimizer) interrupted() bool {
	select {
	case s := <-o.sig:
		log.Warningf("Received signal %v, exiting.", s)
		return true
	default:
		return false
	}
}

// NewOptimizer returns an optimizer by method name ("lbfgsb",
// "simplex" or "bfgs").
func NewOptimizer(method string) (Optimizer, error) {
	switch method {
	case "lbfgsb":
		return NewLBFGSB(), nil
	case "simplex":
		return NewDS(), nil
	case "bfgs":
		return NewBFGS(), nil
	}
	return nil, fmt.Errorf("unknown optimization method: %s", method)
}
