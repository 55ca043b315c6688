package crawl

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// DateRange is an inclusive range of calendar dates for historical crawls.
type DateRange struct {
	start time.Time
	end   time.Time
}

// NewDateRange parses YYYY-MM-DD bounds. A single supplied date fills both
// bounds. Supplying neither is a hard precondition failure: it is raised
// here, before any navigation happens.
func NewDateRange(start, end string) (DateRange, error) {
	if start == "" && end == "" {
		return DateRange{}, fmt.Errorf("historical crawl requires a start and/or end date (YYYY-MM-DD)")
	}
	if start == "" {
		start = end
	}
	if end == "" {
		end = start
	}
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse start date %q: %w", start, err)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse end date %q: %w", end, err)
	}
	if e.Before(s) {
		return DateRange{}, fmt.Errorf("end date %s precedes start date %s", end, start)
	}
	return DateRange{start: s, end: e}, nil
}

// Dates returns every calendar date in the range, ascending, inclusive of
// both endpoints, each exactly once.
func (r DateRange) Dates() []string {
	var out []string
	for d := r.start; !d.After(r.end); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(dateLayout))
	}
	return out
}

// Label names the range for output files: a single date, or start_to_end.
func (r DateRange) Label() string {
	if r.start.Equal(r.end) {
		return r.start.Format(dateLayout)
	}
	return fmt.Sprintf("%s_to_%s", r.start.Format(dateLayout), r.end.Format(dateLayout))
}
