// Package coalescent implements the Kingman coalescent as a prior on
// node times: a constant effective population size model and a
// piecewise-constant (skyline) model.
package coalescent

import (
	"fmt"
	"math"
	"sort"

	"github.com/op/go-logging"

	"github.com/phylodate/phylodate/tree"
)

// log is the package logging variable.
var log = logging.MustGetLogger("coalescent")

// minTc keeps the coalescent rate finite.
const minTc = 1e-9

// Interval is a period of constant lineage count between two events.
type Interval struct {
	// Time is the older end of the interval (calendar date).
	Time float64
	// Dt is the interval duration in years.
	Dt float64
	// K is the number of lineages within the interval.
	K float64
	// NCoal is the number of binary mergers at the older end. A
	// c-way multifurcation counts as c-1 mergers.
	NCoal int
}

// Pairs returns the number of lineage pairs in the interval.
func (iv Interval) Pairs() float64 {
	return iv.K * (iv.K - 1) / 2
}

// Intervals extracts the coalescent intervals from a dated tree,
// sweeping node dates from the present into the past.
func Intervals(t *tree.Tree) []Interval {
	type event struct {
		date float64
		dk   float64
		coal int
	}
	var events []event
	for node := range t.Walker(nil) {
		if math.IsNaN(node.Date) {
			continue
		}
		if node.IsTerminal() {
			events = append(events, event{node.Date, 1, 0})
		} else if c := len(node.ChildNodes()); c > 1 {
			events = append(events, event{node.Date, -float64(c - 1), c - 1})
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].date != events[j].date {
			return events[i].date > events[j].date
		}
		// at equal dates, sampling before coalescence
		return events[i].dk > events[j].dk
	})

	intervals := make([]Interval, 0, len(events))
	k := 0.0
	prev := math.NaN()
	for _, e := range events {
		if !math.IsNaN(prev) {
			intervals = append(intervals, Interval{
				Time:  e.date,
				Dt:    prev - e.date,
				K:     k,
				NCoal: e.coal,
			})
		}
		k += e.dk
		prev = e.date
	}
	return intervals
}

// Model is a coalescent prior on node times.
type Model interface {
	LnL(intervals []Interval) float64
	// TcAt returns the coalescence timescale at a date.
	TcAt(date float64) float64
	String() string
}

// Constant is the constant population size coalescent with
// coalescence timescale Tc (years).
type Constant struct {
	Tc float64 `json:"tc"`
}

// LnL returns the coalescent log-likelihood of the intervals.
func (c *Constant) LnL(intervals []Interval) (lnL float64) {
	tc := math.Max(c.Tc, minTc)
	for _, iv := range intervals {
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

// TcAt returns the (constant) coalescence timescale.
func (c *Constant) TcAt(date float64) float64 {
	return c.Tc
}

// String returns a short report of the model.
func (c *Constant) String() string {
	return fmt.Sprintf("constant coalescent, Tc=%.4f years", c.Tc)
}

// FitConstant fits the constant coalescent by maximum likelihood. The
// optimum is analytic: total pair time over the number of mergers.
func FitConstant(intervals []Interval) (*Constant, error) {
	pairTime := 0.0
	nCoal := 0
	for _, iv := range intervals {
		pairTime += iv.Pairs() * iv.Dt
		nCoal += iv.NCoal
	}
	if nCoal == 0 {
		return nil, fmt.Errorf("no coalescent events")
	}
	tc := math.Max(pairTime/float64(nCoal), minTc)
	m := &Constant{Tc: tc}
	log.Infof("fitted %v (lnL=%.2f)", m, m.LnL(intervals))
	return m, nil
}
