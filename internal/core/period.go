package core

import (
	"errors"
	"fmt"
	"time"
)

const (
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

// Period is the budgeting interval of a Budget.
type Period string

var ErrUnknownPeriod = errors.New("unknown period")

// ParsePeriod maps a stored period string to a Period.
// Anything other than weekly, monthly or yearly is rejected.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case Weekly, Monthly, Yearly:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, s)
	}
}

// Window is a closed interval [Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies inside the window, both ends included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// ResolveWindow returns the window of the current period ending at now.
// Starts are midnight in now's location; weeks start on Sunday.
func ResolveWindow(p Period, now time.Time) (Window, error) {
	y, m, d := now.Date()
	loc := now.Location()

	var start time.Time
	switch p {
	case Monthly:
		start = time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case Yearly:
		start = time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	case Weekly:
		start = time.Date(y, m, d-int(now.Weekday()), 0, 0, 0, 0, loc)
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, string(p))
	}
	return Window{Start: start, End: now}, nil
}

// PreviousMonthWindow returns [now minus one calendar month, now].
func PreviousMonthWindow(now time.Time) Window {
	return Window{Start: now.AddDate(0, -1, 0), End: now}
}

// Label renders the window as "M/D/YYYY - M/D/YYYY".
func (w Window) Label() string {
	const layout = "1/2/2006"
	return w.Start.Format(layout) + " - " + w.End.Format(layout)
}
