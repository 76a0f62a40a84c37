package bio

import (
	"math"
	"strings"
	"testing"
	"time"
)

const smallDiff = 1e-9

func TestParseFasta(tst *testing.T) {
	in := ">seq one\nacgt\nACGT\n\n>seq_two\nTTTT\n"
	seqs, err := ParseFasta(strings.NewReader(in))
	if err != nil {
		tst.Fatal(err)
	}
	if len(seqs) != 2 {
		tst.Fatalf("parsed %d sequences, expected 2", len(seqs))
	}
	if seqs[0].Name != "seq one" || seqs[0].Sequence != "ACGTACGT" {
		tst.Errorf("first sequence parsed as %+v", seqs[0])
	}
	if seqs[1].Name != "seq_two" || seqs[1].Sequence != "TTTT" {
		tst.Errorf("second sequence parsed as %+v", seqs[1])
	}
}

func TestParseFastaNoPrefix(tst *testing.T) {
	if _, err := ParseFasta(strings.NewReader("ACGT\n")); err == nil {
		tst.Error("expected an error for a sequence without a name line")
	}
}

func TestWrap(tst *testing.T) {
	s := Wrap("AAAAA", 2)
	if s != "AA\nAA\nA\n" {
		tst.Errorf("wrapped as %q", s)
	}
}

func TestParseDates(tst *testing.T) {
	in := "name,date,sigma\n" +
		"# comment\n" +
		"a,2000.5\n" +
		"b,2012-02-24\n" +
		"c\t2010.25\t0.5\n" +
		"\n"
	dates, err := ParseDates(strings.NewReader(in))
	if err != nil {
		tst.Fatal(err)
	}
	if len(dates) != 3 {
		tst.Fatalf("parsed %d dates, expected 3", len(dates))
	}
	if d := dates["a"]; math.Abs(d.Year-2000.5) > smallDiff || d.Sigma != 0 {
		tst.Errorf("date a parsed as %+v", d)
	}
	if d := dates["b"]; d.Year < 2012.1 || d.Year > 2012.2 {
		tst.Errorf("date b parsed as %+v, expected mid-February 2012", d)
	}
	if d := dates["c"]; math.Abs(d.Year-2010.25) > smallDiff || d.Sigma != 0.5 {
		tst.Errorf("date c parsed as %+v", d)
	}
}

func TestParseDatesEmpty(tst *testing.T) {
	if _, err := ParseDates(strings.NewReader("just,a header\n")); err == nil {
		tst.Error("expected an error when no date is parsable")
	}
}

func TestParseYear(tst *testing.T) {
	y, err := ParseYear("1999.75")
	if err != nil || math.Abs(y-1999.75) > smallDiff {
		tst.Errorf("1999.75 parsed as %v, %v", y, err)
	}
	y, err = ParseYear("2000-01-01")
	if err != nil || math.Abs(y-2000) > smallDiff {
		tst.Errorf("2000-01-01 parsed as %v, %v", y, err)
	}
	if _, err = ParseYear("yesterday"); err == nil {
		tst.Error("expected an error for an unparsable date")
	}
}

func TestYearFraction(tst *testing.T) {
	// 2012 is a leap year; July 2 is day 183 of 366
	mid := time.Date(2012, 7, 2, 0, 0, 0, 0, time.UTC)
	if y := YearFraction(mid); math.Abs(y-2012.5) > smallDiff {
		tst.Errorf("mid-2012 converted to %v", y)
	}
}
