package clock

import (
	"math"
	"strings"
	"testing"

	"github.com/phylodate/phylodate/bio"
	"github.com/phylodate/phylodate/tree"
)

const smallDiff = 1e-3

// a perfect strict clock: rate 0.01/year, root at 1990
const clockNewick = "((a:0.02,b:0.07)ab:0.08,c:0.2)root;"

var clockDates = bio.Dates{
	"a": {Year: 2000},
	"b": {Year: 2005},
	"c": {Year: 2010},
}

func parse(tst *testing.T, newick string) *tree.Tree {
	t, err := tree.ParseNewick(strings.NewReader(newick))
	if err != nil {
		tst.Fatal(err)
	}
	return t
}

func TestFitPerfectClock(tst *testing.T) {
	t := parse(tst, clockNewick)
	m, err := Fit(t, clockDates)
	if err != nil {
		tst.Fatal(err)
	}
	if math.Abs(m.Rate-0.01) > smallDiff*0.01 {
		tst.Errorf("rate %v, expected 0.01", m.Rate)
	}
	if math.Abs(m.RootDate()-1990) > smallDiff {
		tst.Errorf("root date %v, expected 1990", m.RootDate())
	}
	if m.R2 < 0.9999 {
		tst.Errorf("r^2 %v, expected ~1", m.R2)
	}
}

func TestFitDegenerate(tst *testing.T) {
	t := parse(tst, clockNewick)
	same := bio.Dates{"a": {Year: 2000}, "b": {Year: 2000}, "c": {Year: 2000}}
	if _, err := Fit(t, same); err == nil {
		tst.Error("expected an error for identical sampling dates")
	}
	two := bio.Dates{"a": {Year: 2000}, "b": {Year: 2005}}
	if _, err := Fit(t, two); err == nil {
		tst.Error("expected an error for too few dated tips")
	}
}

func TestAssignAndConstrainDates(tst *testing.T) {
	t := parse(tst, clockNewick)
	m, err := Fit(t, clockDates)
	if err != nil {
		tst.Fatal(err)
	}
	m.AssignDates(t, clockDates)
	ConstrainDates(t)

	ab := t.FindNode("ab")
	if math.Abs(ab.Date-1998) > smallDiff {
		tst.Errorf("date of ab is %v, expected 1998", ab.Date)
	}
	for node := range t.Walker(nil) {
		if node.IsRoot() {
			continue
		}
		if node.Date < node.Parent.Date {
			tst.Errorf("node %s predates its parent", node.Name)
		}
	}
}

func TestBestRootRecoversClock(tst *testing.T) {
	t := parse(tst, clockNewick)
	// destroy the rooting
	t.Reroot(t.FindNode("ab"))

	corr, err := BestRoot(t, clockDates)
	if err != nil {
		tst.Fatal(err)
	}
	if corr < 0.9999 {
		tst.Errorf("correlation %v after rerooting, expected ~1", corr)
	}
	m, err := Fit(t, clockDates)
	if err != nil {
		tst.Fatal(err)
	}
	if m.Rate <= 0 {
		tst.Errorf("rate %v after rerooting, expected positive", m.Rate)
	}
	if math.Abs(m.Rate-0.01) > 0.001 {
		tst.Errorf("rate %v, expected ~0.01", m.Rate)
	}
}

func TestRefineDates(tst *testing.T) {
	t := parse(tst, clockNewick)
	m, err := Fit(t, clockDates)
	if err != nil {
		tst.Fatal(err)
	}
	m.AssignDates(t, clockDates)

	ab := t.FindNode("ab")
	ab.Date = 1995 // perturb
	RefineDates(t, m.Rate, nil, 2)
	if math.Abs(ab.Date-1998) > smallDiff {
		tst.Errorf("refined date %v, expected 1998", ab.Date)
	}
}

func TestRelaxPerfectClock(tst *testing.T) {
	t := parse(tst, clockNewick)
	m, err := Fit(t, clockDates)
	if err != nil {
		tst.Fatal(err)
	}
	m.AssignDates(t, clockDates)

	gamma := Relax(t, m.Rate, 1, 0.5)
	for node := range t.Walker(nil) {
		if node.IsRoot() {
			continue
		}
		if math.Abs(gamma[node.Id]-1) > 0.01 {
			tst.Errorf("multiplier %v on a perfect clock branch, expected ~1", gamma[node.Id])
		}
	}
}

func TestRescaleBranchLengths(tst *testing.T) {
	t := parse(tst, clockNewick)
	m, err := Fit(t, clockDates)
	if err != nil {
		tst.Fatal(err)
	}
	m.AssignDates(t, clockDates)
	m.RescaleBranchLengths(t, nil)

	c := t.FindNode("c")
	if math.Abs(c.BranchLength-0.2) > smallDiff*0.2 {
		tst.Errorf("branch above c is %v, expected 0.2", c.BranchLength)
	}

	BranchLengthsToYears(t)
	if math.Abs(c.BranchLength-20) > smallDiff*20 {
		tst.Errorf("branch above c is %v years, expected 20", c.BranchLength)
	}
}
