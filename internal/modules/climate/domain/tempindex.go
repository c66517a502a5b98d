package domain

import (
	"sort"
	"time"

	"climatemap-server/internal/modules/climate/types"
)

// TemperatureIndex groups observations by their formatted day key.
type TemperatureIndex struct {
	byDate map[string][]types.Observation
	total  int
}

func NewTemperatureIndex(observations []types.Observation) *TemperatureIndex {
	ix := &TemperatureIndex{byDate: make(map[string][]types.Observation)}
	for _, o := range observations {
		key := FormatKey(o.Date)
		ix.byDate[key] = append(ix.byDate[key], o)
	}
	ix.total = len(observations)
	return ix
}

// ObservationsOn returns the observations recorded on date's calendar day, or
// nil when the dataset has no entry for it.
func (ix *TemperatureIndex) ObservationsOn(date time.Time) []types.Observation {
	return ix.byDate[FormatKey(date)]
}

// Len returns the number of distinct days with data.
func (ix *TemperatureIndex) Len() int { return len(ix.byDate) }

// Total returns the number of indexed observations.
func (ix *TemperatureIndex) Total() int { return ix.total }

// Keys returns the day keys in chronological order.
func (ix *TemperatureIndex) Keys() []string {
	keys := make([]string, 0, len(ix.byDate))
	for k := range ix.byDate {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a := ix.byDate[keys[i]][0].Date
		b := ix.byDate[keys[j]][0].Date
		return a.Before(b)
	})
	return keys
}

// Flatten returns every indexed observation, grouped by day in chronological
// order and in input order within a day.
func (ix *TemperatureIndex) Flatten() []types.Observation {
	out := make([]types.Observation, 0, ix.total)
	for _, k := range ix.Keys() {
		out = append(out, ix.byDate[k]...)
	}
	return out
}

// MissingDays lists the days of r with no observations.
func (ix *TemperatureIndex) MissingDays(r DateRange) []time.Time {
	var out []time.Time
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		if _, ok := ix.byDate[FormatKey(d)]; !ok {
			out = append(out, d)
		}
	}
	return out
}
