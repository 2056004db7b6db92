package report

import (
	"fmt"
	"time"
)

// Period is a half-open reporting window [Start, End)
type Period struct {
	Start time.Time
	End   time.Time
}

// ParsePeriod resolves a named reporting window, or a custom one from RFC 3339
// date bounds when name is "custom"
func ParsePeriod(name, start, end string, now time.Time) (Period, error) {
	switch name {
	case "", "this_month":
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return Period{Start: first, End: first.AddDate(0, 1, 0)}, nil
	case "last_month":
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return Period{Start: first.AddDate(0, -1, 0), End: first}, nil
	case "this_year":
		first := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		return Period{Start: first, End: first.AddDate(1, 0, 0)}, nil
	case "custom":
		from, err := time.Parse("2006-01-02", start)
		if err != nil {
			return Period{}, fmt.Errorf("invalid start date %q", start)
		}
		to, err := time.Parse("2006-01-02", end)
		if err != nil {
			return Period{}, fmt.Errorf("invalid end date %q", end)
		}
		if !to.After(from) {
			return Period{}, fmt.Errorf("end date must be after start date")
		}
		// make the window inclusive of the end day
		return Period{Start: from, End: to.AddDate(0, 0, 1)}, nil
	default:
		return Period{}, fmt.Errorf("unknown period %q", name)
	}
}

// Label renders the window the way people write date ranges: the month and
// year are not repeated when both ends share them
func (p Period) Label() string {
	last := p.End.AddDate(0, 0, -1)
	switch {
	case p.Start.Year() == last.Year() && p.Start.Month() == last.Month():
		return fmt.Sprintf("%s %d-%d, %d", p.Start.Format("Jan"), p.Start.Day(), last.Day(), p.Start.Year())
	case p.Start.Year() == last.Year():
		return fmt.Sprintf("%s %d - %s %d, %d", p.Start.Format("Jan"), p.Start.Day(), last.Format("Jan"), last.Day(), p.Start.Year())
	default:
		return fmt.Sprintf("%s %d, %d - %s %d, %d", p.Start.Format("Jan"), p.Start.Day(), p.Start.Year(), last.Format("Jan"), last.Day(), last.Year())
	}
}
