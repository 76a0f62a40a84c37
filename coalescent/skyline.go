package coalescent

import (
	"fmt"
	"math"

	"github.com/phylodate/phylodate/optimize"
)

const (
	// bounds of log Tc during smoothing
	minLogTc = -21
	maxLogTc = 21
	// smoothing optimizer iteration cap
	skylineIterations = 500
)

// Skyline is a piecewise-constant coalescent: the timescale Tc is
// constant within each segment of the tree's time span.
type Skyline struct {
	// Times[i] is the older end of segment i; segments are ordered
	// from the present into the past.
	Times []float64 `json:"times"`
	// Tc[i] is the coalescence timescale of segment i (years).
	Tc []float64 `json:"tc"`

	segments [][]Interval
}

// Point is one skyline segment summary.
type Point struct {
	Time float64
	Tc   float64
}

// FitSkyline fits a skyline coalescent with up to nSegments segments
// of (roughly) equal event counts. With a positive penalty the log
// timescales are additionally smoothed, penalizing jumps between
// neighboring segments; method names the smoothing optimizer
// ("lbfgsb", "simplex" or "bfgs", empty for the default "lbfgsb").
func FitSkyline(intervals []Interval, nSegments int, penalty float64, method string) (*Skyline, error) {
	nCoal := 0
	for _, iv := range intervals {
		nCoal += iv.NCoal
	}
	if nCoal == 0 {
		return nil, fmt.Errorf("no coalescent events")
	}
	if nSegments < 1 {
		nSegments = 1
	}
	if nSegments > nCoal {
		nSegments = nCoal
	}
	quota := float64(nCoal) / float64(nSegments)

	s := &Skyline{}
	var seg []Interval
	events := 0
	done := 0
	for _, iv := range intervals {
		seg = append(seg, iv)
		events += iv.NCoal
		if float64(events) >= quota*float64(len(s.segments)+1)-float64(done) && events > 0 {
			s.pushSegment(seg, events)
			done += events
			seg, events = nil, 0
		}
	}
	if events > 0 {
		s.pushSegment(seg, events)
	} else if len(seg) > 0 && len(s.segments) > 0 {
		// trailing eventless intervals extend the last segment
		last := len(s.segments) - 1
		s.segments[last] = append(s.segments[last], seg...)
		s.Times[last] = seg[len(seg)-1].Time
	}

	if penalty > 0 && len(s.Tc) > 1 {
		s.smooth(penalty, method)
	}
	log.Infof("fitted %v", s)
	return s, nil
}

func (s *Skyline) pushSegment(seg []Interval, events int) {
	pairTime := 0.0
	for _, iv := range seg {
		pairTime += iv.Pairs() * iv.Dt
	}
	s.segments = append(s.segments, seg)
	s.Times = append(s.Times, seg[len(seg)-1].Time)
	s.Tc = append(s.Tc, math.Max(pairTime/float64(events), minTc))
}

// smooth maximizes the penalized likelihood over the segment log
// timescales with the chosen optimizer.
func (s *Skyline) smooth(penalty float64, method string) {
	if method == "" {
		method = "lbfgsb"
	}
	obj := newSkylineObjective(s, penalty)
	opt, err := optimize.NewOptimizer(method)
	if err != nil {
		log.Warningf("%v, smoothing with lbfgsb", err)
		opt = optimize.NewLBFGSB()
	}
	opt.SetQuiet(true)
	opt.SetOptimizable(obj)
	opt.Run(skylineIterations)
	for i, v := range opt.GetMaxLParameters() {
		s.Tc[i] = math.Exp(v)
	}
}

// LnL returns the coalescent log-likelihood of the intervals under
// the piecewise-constant timescale.
func (s *Skyline) LnL(intervals []Interval) (lnL float64) {
	for _, iv := range intervals {
		tc := math.Max(s.TcAt(iv.Time), minTc)
		lnL -= iv.Pairs() * iv.Dt / tc
		k := iv.K
		for e := 0; e < iv.NCoal; e++ {
			pairs := k * (k - 1) / 2
			if pairs <= 0 {
				return math.Inf(-1)
			}
			lnL += math.Log(pairs / tc)
			k--
		}
	}
	return lnL
}

// TcAt returns the segment timescale covering a date.
func (s *Skyline) TcAt(date float64) float64 {
	for i, t := range s.Times {
		if date >= t {
			return s.Tc[i]
		}
	}
	return s.Tc[len(s.Tc)-1]
}

// Inferred converts the skyline into effective population sizes given
// the number of generations per year.
func (s *Skyline) Inferred(gen float64) []Point {
	points := make([]Point, len(s.Tc))
	for i := range s.Tc {
		points[i] = Point{Time: s.Times[i], Tc: s.Tc[i] * gen}
	}
	return points
}

// String returns a short report of the model.
func (s *Skyline) String() string {
	lo, hi := s.Tc[0], s.Tc[0]
	for _, tc := range s.Tc {
		lo = math.Min(lo, tc)
		hi = math.Max(hi, tc)
	}
	return fmt.Sprintf("skyline coalescent, %d segments, Tc in [%.4f, %.4f] years",
		len(s.Tc), lo, hi)
}

// skylineObjective is the penalized likelihood over segment log
// timescales.
type skylineObjective struct {
	segments   [][]Interval
	logTc      []float64
	penalty    float64
	parameters optimize.FloatParameters
}

func newSkylineObjective(s *Skyline, penalty float64) *skylineObjective {
	obj := &skylineObjective{
		segments: s.segments,
		logTc:    make([]float64, len(s.Tc)),
		penalty:  penalty,
	}
	for i, tc := range s.Tc {
		obj.logTc[i] = math.Log(tc)
	}
	obj.setupParameters()
	return obj
}

func (o *skylineObjective) setupParameters() {
	o.parameters = nil
	for i := range o.logTc {
		par := optimize.NewBasicFloatParameter(&o.logTc[i], fmt.Sprintf("logTc%02d", i))
		par.SetMin(minLogTc)
		par.SetMax(maxLogTc)
		o.parameters.Append(par)
	}
}

// GetFloatParameters returns the segment log timescales.
func (o *skylineObjective) GetFloatParameters() optimize.FloatParameters {
	return o.parameters
}

// Likelihood returns the penalized coalescent log-likelihood.
func (o *skylineObjective) Likelihood() (lnL float64) {
	for i, seg := range o.segments {
		c := Constant{Tc: math.Exp(o.logTc[i])}
		lnL += c.LnL(seg)
	}
	for i := 1; i < len(o.logTc); i++ {
		d := o.logTc[i] - o.logTc[i-1]
		lnL -= o.penalty * d * d
	}
	return lnL
}

// Copy returns an independent copy of the objective.
func (o *skylineObjective) Copy() optimize.Optimizable {
	newObj := &skylineObjective{
		segments: o.segments,
		logTc:    append([]float64{}, o.logTc...),
		penalty:  o.penalty,
	}
	newObj.setupParameters()
	return newObj
}
