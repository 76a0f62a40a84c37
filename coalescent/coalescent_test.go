package coalescent

import (
	"math"
	"strings"
	"testing"

	"github.com/phylodate/phylodate/optimize"
	"github.com/phylodate/phylodate/tree"
)

const smallDiff = 1e-4

func datedTree(tst *testing.T) *tree.Tree {
	t, err := tree.ParseNewick(strings.NewReader("((a:0.1,b:0.1)ab:0.1,c:0.2)root;"))
	if err != nil {
		tst.Fatal(err)
	}
	for name, date := range map[string]float64{
		"a": 2010, "b": 2010, "c": 2010, "ab": 2000, "root": 1990,
	} {
		t.FindNode(name).Date = date
	}
	return t
}

func TestIntervals(tst *testing.T) {
	intervals := Intervals(datedTree(tst))

	pairTime := 0.0
	nCoal := 0
	for _, iv := range intervals {
		pairTime += iv.Pairs() * iv.Dt
		nCoal += iv.NCoal
	}
	// 3 lineages for 10 years (3 pairs), then 2 for 10 years (1 pair)
	if math.Abs(pairTime-40) > smallDiff {
		tst.Errorf("total pair time %v, expected 40", pairTime)
	}
	if nCoal != 2 {
		tst.Errorf("%d coalescent events, expected 2", nCoal)
	}
}

func TestFitConstantAnalytic(tst *testing.T) {
	intervals := Intervals(datedTree(tst))
	m, err := FitConstant(intervals)
	if err != nil {
		tst.Fatal(err)
	}
	if math.Abs(m.Tc-20) > smallDiff {
		tst.Errorf("Tc %v, expected 40/2=20", m.Tc)
	}

	// the analytic optimum must agree with a numeric search
	tc, _ := optimize.BrentMax(func(tc float64) float64 {
		c := Constant{Tc: tc}
		return c.LnL(intervals)
	}, 0.1, 1000, 1e-9, 200)
	if math.Abs(tc-m.Tc) > 1e-3 {
		tst.Errorf("numeric optimum %v, analytic %v", tc, m.Tc)
	}
}

func TestConstantLnLFinite(tst *testing.T) {
	intervals := Intervals(datedTree(tst))
	c := Constant{Tc: 20}
	lnL := c.LnL(intervals)
	if math.IsInf(lnL, 0) || math.IsNaN(lnL) {
		tst.Errorf("lnL=%v, expected finite", lnL)
	}
}

func TestSkylineSegments(tst *testing.T) {
	intervals := Intervals(datedTree(tst))
	s, err := FitSkyline(intervals, 2, 0, "")
	if err != nil {
		tst.Fatal(err)
	}
	if len(s.Tc) != 2 {
		tst.Fatalf("%d segments, expected 2", len(s.Tc))
	}
	// recent segment: 3 pairs * 10 years / 1 event
	if math.Abs(s.Tc[0]-30) > smallDiff {
		tst.Errorf("recent Tc %v, expected 30", s.Tc[0])
	}
	// old segment: 1 pair * 10 years / 1 event
	if math.Abs(s.Tc[1]-10) > smallDiff {
		tst.Errorf("old Tc %v, expected 10", s.Tc[1])
	}
	if s.TcAt(2005) != s.Tc[0] || s.TcAt(1995) != s.Tc[1] {
		tst.Error("TcAt picks the wrong segment")
	}

	points := s.Inferred(50)
	if len(points) != 2 || math.Abs(points[0].Tc-1500) > smallDiff {
		tst.Errorf("inferred points %v, expected Ne=30*50 for the recent segment", points)
	}
}

func TestSkylineSmoothing(tst *testing.T) {
	intervals := Intervals(datedTree(tst))
	raw, err := FitSkyline(intervals, 2, 0, "")
	if err != nil {
		tst.Fatal(err)
	}
	smooth, err := FitSkyline(intervals, 2, 100, "")
	if err != nil {
		tst.Fatal(err)
	}
	rawGap := math.Abs(math.Log(raw.Tc[0]) - math.Log(raw.Tc[1]))
	smoothGap := math.Abs(math.Log(smooth.Tc[0]) - math.Log(smooth.Tc[1]))
	if smoothGap >= rawGap {
		tst.Errorf("smoothing did not shrink the gap: raw %v, smooth %v", rawGap, smoothGap)
	}
}

func TestSkylineSmoothingSimplex(tst *testing.T) {
	intervals := Intervals(datedTree(tst))
	raw, err := FitSkyline(intervals, 2, 0, "")
	if err != nil {
		tst.Fatal(err)
	}
	smooth, err := FitSkyline(intervals, 2, 100, "simplex")
	if err != nil {
		tst.Fatal(err)
	}
	rawGap := math.Abs(math.Log(raw.Tc[0]) - math.Log(raw.Tc[1]))
	smoothGap := math.Abs(math.Log(smooth.Tc[0]) - math.Log(smooth.Tc[1]))
	if smoothGap >= rawGap {
		tst.Errorf("smoothing did not shrink the gap: raw %v, smooth %v", rawGap, smoothGap)
	}
}

func TestNoCoalescentEvents(tst *testing.T) {
	if _, err := FitConstant(nil); err == nil {
		tst.Error("expected an error without coalescent events")
	}
	if _, err := FitSkyline(nil, 2, 0, ""); err == nil {
		tst.Error("expected an error without coalescent events")
	}
}
