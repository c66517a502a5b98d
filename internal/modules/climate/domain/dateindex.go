// Package domain holds the date-to-data join behind each map frame: day
// offsets, season lookup, per-day grouping of observations and per-region
// temperature resolution.
package domain

import (
	"errors"
	"time"

	"climatemap-server/internal/modules/climate/types"
)

const (
	// KeyLayout formats the grouping key of a day's observations.
	KeyLayout = "02/01/2006"
	// InputLayout is the date layout of the observation CSV.
	InputLayout = "2006-01-02"
	// LabelLayout is the human readable date shown next to the map.
	LabelLayout = "2 January, 2006"
)

var ErrNoObservations = errors.New("no observations")

// DateRange is the span of days covered by a dataset.
type DateRange struct {
	Start    time.Time
	End      time.Time
	DayCount int
}

// NewDateRange derives the range from the earliest and latest observation.
func NewDateRange(observations []types.Observation) (DateRange, error) {
	if len(observations) == 0 {
		return DateRange{}, ErrNoObservations
	}
	start := Day(observations[0].Date)
	end := start
	for _, o := range observations[1:] {
		d := Day(o.Date)
		if d.Before(start) {
			start = d
		}
		if d.After(end) {
			end = d
		}
	}
	return DateRange{Start: start, End: end, DayCount: DaysBetween(start, end) + 1}, nil
}

// Day truncates t to UTC midnight of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// ParseDate parses an observation date such as "2023-07-01".
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(InputLayout, s, time.UTC)
}

func FormatKey(t time.Time) string {
	return t.Format(KeyLayout)
}

func FormatLabel(t time.Time) string {
	return t.Format(LabelLayout)
}

// DateIndex converts between day offsets and calendar dates.
type DateIndex struct {
	start    time.Time
	dayCount int
}

func NewDateIndex(start time.Time, dayCount int) DateIndex {
	if dayCount < 1 {
		dayCount = 1
	}
	return DateIndex{start: Day(start), dayCount: dayCount}
}

// IndexOf returns the DateIndex spanning r.
func IndexOf(r DateRange) DateIndex {
	return NewDateIndex(r.Start, r.DayCount)
}

func (ix DateIndex) Start() time.Time { return ix.start }

func (ix DateIndex) DayCount() int { return ix.dayCount }

// End returns the last date addressable by an offset.
func (ix DateIndex) End() time.Time { return ix.DateFromOffset(ix.dayCount - 1) }

// DateFromOffset returns start plus offset calendar days. The offset is not
// range checked; callers clamp or wrap first.
func (ix DateIndex) DateFromOffset(offset int) time.Time {
	return ix.start.AddDate(0, 0, offset)
}

func (ix DateIndex) OffsetFromDate(date time.Time) int {
	return DaysBetween(ix.start, date)
}

// Clamp forces offset into [0, DayCount).
func (ix DateIndex) Clamp(offset int) int {
	if offset < 0 {
		return 0
	}
	if offset >= ix.dayCount {
		return ix.dayCount - 1
	}
	return offset
}

// Next advances offset by one day, wrapping to 0 past the last day.
func (ix DateIndex) Next(offset int) int {
	offset++
	if offset >= ix.dayCount {
		return 0
	}
	return offset
}
