// Package optimize provides numeric optimizers over named, bounded
// float parameters: bounded L-BFGS-B, downhill simplex, gonum BFGS
// and a one-dimensional Brent search.
package optimize

import (
	"errors"
	"math"
	"strconv"

	"github.com/op/go-logging"
)

// log is the package logging variable.
var log = logging.MustGetLogger("optimize")

// Optimizable is the interface of objective functions: a parameter
// vector and a likelihood to maximize. Copy must produce an
// independent value so optimizers can probe points concurrently.
type Optimizable interface {
	GetFloatParameters() FloatParameters
	Likelihood() float64
	Copy() Optimizable
}

// FloatParameter is a single named bounded parameter bound to a
// float64 location.
type FloatParameter interface {
	Name() string
	Get() float64
	Set(float64)
	SetMin(float64)
	SetMax(float64)
	GetMin() float64
	GetMax() float64
	SetOnChange(func())
	InRange() bool
	ValueInRange(float64) bool
	String() string
}

// FloatParameters is a parameter vector.
type FloatParameters []FloatParameter

// Append adds a parameter to the vector.
func (p *FloatParameters) Append(par FloatParameter) {
	*p = append(*p, par)
}

// Values returns parameter values, reusing iv when possible.
func (p *FloatParameters) Values(iv []float64) (v []float64) {
	if iv == nil {
		v = make([]float64, len(*p))
	} else {
		v = iv
	}
	for i, par := range *p {
		v[i] = par.Get()
	}
	return
}

// SetValues sets all parameter values.
func (p *FloatParameters) SetValues(v []float64) error {
	if len(v) != len(*p) {
		return errors.New("incorrect number of parameters")
	}
	for i, par := range *p {
		par.Set(v[i])
	}
	return nil
}

// ValuesInRange checks a candidate vector against the bounds.
func (p *FloatParameters) ValuesInRange(vals []float64) bool {
	if len(vals) != len(*p) {
		panic("incorrect number of parameters")
	}
	for i, par := range *p {
		if !par.ValueInRange(vals[i]) {
			return false
		}
	}
	return true
}

// InRange checks the current values against the bounds.
func (p *FloatParameters) InRange() bool {
	for _, par := range *p {
		if !par.InRange() {
			return false
		}
	}
	return true
}

// NamesString returns tab-separated parameter names.
func (p *FloatParameters) NamesString() (s string) {
	for i, par := range *p {
		if i != 0 {
			s += "\t"
		}
		s += par.Name()
	}
	return
}

// ValuesString returns tab-separated parameter values.
func (p *FloatParameters) ValuesString() (s string) {
	for i, par := range *p {
		if i != 0 {
			s += "\t"
		}
		s += par.String()
	}
	return
}

// BasicFloatParameter is the plain FloatParameter implementation.
type BasicFloatParameter struct {
	*float64
	name     string
	min      float64
	max      float64
	onChange func()
}

// NewBasicFloatParameter creates a parameter bound to par.
func NewBasicFloatParameter(par *float64, name string) *BasicFloatParameter {
	return &BasicFloatParameter{
		float64: par,
		name:    name,
		min:     math.Inf(-1),
		max:     math.Inf(+1),
	}
}

func (p *BasicFloatParameter) Name() string { return p.name }

func (p *BasicFloatParameter) Get() float64 { return *p.float64 }

func (p *BasicFloatParameter) Set(v float64) {
	if *p.float64 == v {
		// do nothing if value has not changed
		return
	}
	*p.float64 = v
	if p.onChange != nil {
		p.onChange()
	}
}

func (p *BasicFloatParameter) SetMin(min float64) { p.min = min }
func (p *BasicFloatParameter) SetMax(max float64) { p.max = max }
func (p *BasicFloatParameter) GetMin() float64    { return p.min }
func (p *BasicFloatParameter) GetMax() float64    { return p.max }

func (p *BasicFloatParameter) SetOnChange(f func()) { p.onChange = f }

func (p *BasicFloatParameter) ValueInRange(v float64) bool {
	return v >= p.min && v <= p.max
}

func (p *BasicFloatParameter) InRange() bool {
	return p.ValueInRange(*p.float64)
}

func (p *BasicFloatParameter) String() string {
	return strconv.FormatFloat(*p.float64, 'f', 6, 64)
}
