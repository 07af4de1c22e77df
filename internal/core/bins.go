package core

import (
	"sort"
	"time"
)

// MonthBin is one calendar month. Both edges are inclusive: Left is the
// first instant of the month and Right the last representable instant
// before the next month starts.
type MonthBin struct {
	Left  time.Time
	Right time.Time
}

// Contains reports whether t lies in [Left, Right].
func (b MonthBin) Contains(t time.Time) bool {
	return !t.Before(b.Left) && !t.After(b.Right)
}

// Label returns the month name and year, e.g. "January 2023".
func (b MonthBin) Label() string {
	return b.Left.Format("January 2006")
}

// Key returns the sortable month key, e.g. "2023-01".
func (b MonthBin) Key() string {
	return b.Left.Format("2006-01")
}

// MonthBinner computes calendar month bins in a single time zone.
type MonthBinner struct {
	Location *time.Location
}

// NewMonthBinner returns a binner for loc, UTC when loc is nil.
func NewMonthBinner(loc *time.Location) MonthBinner {
	if loc == nil {
		loc = time.UTC
	}
	return MonthBinner{Location: loc}
}

func (b MonthBinner) location() *time.Location {
	if b.Location == nil {
		return time.UTC
	}
	return b.Location
}

// MonthStart returns the first instant of t's month in the binner's zone.
func (b MonthBinner) MonthStart(t time.Time) time.Time {
	loc := b.location()
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// Bins returns the contiguous month bins covering [fro, to]. The first bin
// starts on the first of fro's month and the last one ends with to's month,
// so partial months at either end are never truncated.
func (b MonthBinner) Bins(fro, to time.Time) ([]MonthBin, error) {
	if to.Before(fro) {
		return nil, &InvalidRangeError{From: fro, To: to}
	}
	loc := b.location()
	fro, to = fro.In(loc), to.In(loc)

	year, month := fro.Year(), fro.Month()
	months := (to.Year()-year)*12 + int(to.Month()-month) + 1

	bins := make([]MonthBin, 0, months)
	// Every edge comes from time.Date on day 1 so a shifted midnight in one
	// month never drifts into the next.
	left := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	for i := 0; i < months; i++ {
		next := time.Date(year, month+time.Month(i+1), 1, 0, 0, 0, 0, loc)
		bins = append(bins, MonthBin{Left: left, Right: next.Add(-time.Nanosecond)})
		left = next
	}
	return bins, nil
}

// FindBin returns the index of the bin containing t, or -1. bins must be
// sorted and contiguous as returned by Bins.
func FindBin(bins []MonthBin, t time.Time) int {
	i := sort.Search(len(bins), func(i int) bool {
		return !bins[i].Right.Before(t)
	})
	if i < len(bins) && bins[i].Contains(t) {
		return i
	}
	return -1
}
