package bio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Date is a sampling date in decimal years with an optional
// uncertainty (standard deviation, also in years). Sigma of zero
// means the date is exact.
type Date struct {
	Year  float64
	Sigma float64
}

// Dates maps a sample name to its sampling date.
type Dates map[string]Date

// ParseDates reads a sampling-date table from a reader. Every line is
// 'name,date' or 'name,date,sigma', where date is either a decimal
// year (2012.15) or a calendar date (2012-02-24). Lines which cannot
// be parsed (e.g. a header) are skipped.
func ParseDates(rd io.Reader) (Dates, error) {
	dates := make(Dates)
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			fields = strings.Fields(line)
		}
		if len(fields) < 2 {
			continue
		}
		name := strings.TrimSpace(fields[0])
		year, err := ParseYear(strings.TrimSpace(fields[1]))
		if err != nil {
			continue
		}
		d := Date{Year: year}
		if len(fields) > 2 {
			sigma, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
			if err == nil && sigma >= 0 {
				d.Sigma = sigma
			}
		}
		dates[name] = d
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("no parsable dates found")
	}
	return dates, nil
}

// ParseYear converts a date string into decimal years. Both plain
// floats (2012.15) and ISO calendar dates (2012-02-24) are accepted.
func ParseYear(s string) (float64, error) {
	if year, err := strconv.ParseFloat(s, 64); err == nil {
		return year, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, err
	}
	return YearFraction(t), nil
}

// YearFraction converts a calendar date into decimal years.
func YearFraction(t time.Time) float64 {
	start := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(t.Year()+1, 1, 1, 0, 0, 0, 0, time.UTC)
	frac := float64(t.Sub(start)) / float64(end.Sub(start))
	return float64(t.Year()) + frac
}
