// plotskyline turns a skyline TSV file (as written by phylodate
// --skyline) into a step plot of the effective population size.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

func main() {
	in := flag.String("in", "skyline.tsv", "skyline TSV file (date, ne)")
	out := flag.String("out", "skyline.png", "output PNG file")
	flag.Parse()

	f, err := os.Open(*in)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	var pts plotter.XYs
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		x, err1 := strconv.ParseFloat(fields[0], 64)
		y, err2 := strconv.ParseFloat(fields[1], 64)
		if err1 != nil || err2 != nil {
			// header
			continue
		}
		pts = append(pts, plotter.XY{X: x, Y: y})
	}
	if err := scanner.Err(); err != nil {
		panic(err)
	}
	if len(pts) == 0 {
		panic(fmt.Errorf("no skyline points in %s", *in))
	}

	p := plot.New()
	p.Title.Text = "skyline"
	p.X.Label.Text = "date"
	p.Y.Label.Text = "Ne"

	err = plotutil.AddLinePoints(p, "Ne", pts)
	if err != nil {
		panic(err)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, *out); err != nil {
		panic(err)
	}
}
