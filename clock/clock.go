// Package clock fits a molecular clock to a tree by weighted
// regression of root-to-tip distance on sampling date, finds the
// rooting which maximizes the clock signal and converts divergence
// into calendar dates.
package clock

import (
	"errors"
	"fmt"
	"math"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/stat"

	"github.com/phylodate/phylodate/bio"
	"github.com/phylodate/phylodate/tree"
)

// log is the package logging variable.
var log = logging.MustGetLogger("clock")

// ErrDegenerate is returned when the sampling dates carry no usable
// clock signal (too few dated tips or zero date variance).
var ErrDegenerate = errors.New("degenerate date distribution")

// Model is a fitted strict molecular clock.
type Model struct {
	// Rate is the clock rate (substitutions per site per year).
	Rate float64 `json:"rate"`
	// Intercept is the regression intercept: the expected
	// root-to-tip distance at date zero.
	Intercept float64 `json:"intercept"`
	// R2 is the coefficient of determination of the regression.
	R2 float64 `json:"r2"`
	// NTips is the number of dated tips used.
	NTips int `json:"nTips"`
}

// Fit fits the clock regression on the current rooting. Tips missing
// from the date table are skipped. Date uncertainties are used as
// inverse variance weights.
func Fit(t *tree.Tree, dates bio.Dates) (*Model, error) {
	dist := RootToTip(t)
	var xs, ys, ws []float64
	for leaf := range t.Terminals() {
		d, ok := dates[leaf.Name]
		if !ok {
			continue
		}
		xs = append(xs, d.Year)
		ys = append(ys, dist[leaf.Id])
		w := 1.0
		if d.Sigma > 0 {
			w = 1 / (d.Sigma * d.Sigma)
		}
		ws = append(ws, w)
	}
	if len(xs) < 3 {
		return nil, fmt.Errorf("%w: only %d dated tips", ErrDegenerate, len(xs))
	}
	if stat.Variance(xs, ws) <= 0 {
		return nil, fmt.Errorf("%w: all tips sampled at the same date", ErrDegenerate)
	}

	alpha, beta := stat.LinearRegression(xs, ys, ws, false)
	m := &Model{
		Rate:      beta,
		Intercept: alpha,
		R2:        stat.RSquared(xs, ys, ws, alpha, beta),
		NTips:     len(xs),
	}
	log.Infof("clock regression: rate=%g, root date=%.2f, r^2=%.4f (%d tips)",
		m.Rate, m.RootDate(), m.R2, m.NTips)
	return m, nil
}

// NodeDate converts a root-to-tip distance into a calendar date.
func (m *Model) NodeDate(dist float64) float64 {
	return (dist - m.Intercept) / m.Rate
}

// RootDate returns the regression estimate of the root date.
func (m *Model) RootDate() float64 {
	return m.NodeDate(0)
}

// ExpectedDist returns the expected root-to-tip distance at a date.
func (m *Model) ExpectedDist(date float64) float64 {
	return m.Intercept + m.Rate*date
}

// String returns a short report of the fitted clock.
func (m *Model) String() string {
	return fmt.Sprintf("rate=%g subs/site/year, root date=%.2f, r^2=%.4f",
		m.Rate, m.RootDate(), m.R2)
}

// RootToTip returns the distance from the root to every node, indexed
// by node Id.
func RootToTip(t *tree.Tree) []float64 {
	dist := make([]float64, t.MaxNodeId()+1)
	for node := range t.Walker(nil) {
		if node.IsRoot() {
			dist[node.Id] = 0
			continue
		}
		dist[node.Id] = dist[node.Parent.Id] + node.BranchLength
	}
	return dist
}

// AssignDates sets leaf dates from the table and internal node dates
// from the regression estimate at their divergence.
func (m *Model) AssignDates(t *tree.Tree, dates bio.Dates) {
	dist := RootToTip(t)
	for node := range t.Walker(nil) {
		if node.IsTerminal() {
			if d, ok := dates[node.Name]; ok {
				node.Date = d.Year
				continue
			}
		}
		node.Date = m.NodeDate(dist[node.Id])
	}
}

// ConstrainDates clamps internal node dates so that no node predates
// its parent. Leaf dates are never changed.
func ConstrainDates(t *tree.Tree) {
	for _, node := range t.NodeOrder() {
		upper := math.Inf(+1)
		for _, child := range node.ChildNodes() {
			if !math.IsNaN(child.Date) && child.Date < upper {
				upper = child.Date
			}
		}
		if node.Date > upper {
			node.Date = upper
		}
	}
}

// RescaleBranchLengths converts branch lengths to rate times elapsed
// calendar time. With multipliers (a relaxed clock, indexed by node
// Id) every branch uses its own rate; pass nil for a strict clock.
func (m *Model) RescaleBranchLengths(t *tree.Tree, multipliers []float64) {
	for node := range t.Walker(nil) {
		if node.IsRoot() {
			continue
		}
		dt := node.Date - node.Parent.Date
		if dt < 0 {
			dt = 0
		}
		rate := m.Rate
		if multipliers != nil {
			rate *= multipliers[node.Id]
		}
		node.BranchLength = rate * dt
	}
}

// BranchLengthsToYears converts branch lengths to elapsed calendar
// time in years.
func BranchLengthsToYears(t *tree.Tree) {
	for node := range t.Walker(nil) {
		if node.IsRoot() {
			continue
		}
		dt := node.Date - node.Parent.Date
		if dt < 0 {
			dt = 0
		}
		node.BranchLength = dt
	}
}
