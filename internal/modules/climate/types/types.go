package types

import "time"

// Observation is one row of the source dataset: the average temperature of a
// region on a calendar day. Date is always UTC midnight.
type Observation struct {
	RegionID string    `json:"regionId"`
	Date     time.Time `json:"date"`
	AvgTemp  float64   `json:"avgTemp"`
}

type Season struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RegionFill is the colour assigned to one region for a frame.
type RegionFill struct {
	RegionID    string  `json:"regionId"`
	Temperature float64 `json:"temperature"`
	Explicit    bool    `json:"explicit"`
	Fill        string  `json:"fill"`
}

// FrameDiff lists the keys the renderer entered, updated and removed.
type FrameDiff struct {
	Entered []string `json:"entered,omitempty"`
	Updated []string `json:"updated,omitempty"`
	Exited  []string `json:"exited,omitempty"`
}

// Frame is the fully resolved map state for one day offset.
type Frame struct {
	Offset       int          `json:"offset"`
	DayCount     int          `json:"dayCount"`
	Date         string       `json:"date"`
	DateLabel    string       `json:"dateLabel"`
	Season       string       `json:"season,omitempty"`
	Mean         float64      `json:"mean"`
	HasData      bool         `json:"hasData"`
	Fills        []RegionFill `json:"fills"`
	Diff         FrameDiff    `json:"diff"`
	TransitionMS int64        `json:"transitionMs"`
	Playing      bool         `json:"playing"`
	RenderedAt   time.Time    `json:"renderedAt"`
}

// FrameSummary is the compact frame published to message brokers.
type FrameSummary struct {
	Offset   int                `json:"offset"`
	Date     string             `json:"date"`
	Season   string             `json:"season,omitempty"`
	Mean     float64            `json:"mean"`
	HasData  bool               `json:"hasData"`
	Regions  map[string]float64 `json:"regions"`
	Rendered time.Time          `json:"renderedAt"`
}

// Summary strips colours and diff data from f. Only explicit readings are
// included in Regions; consumers apply the mean as fallback themselves.
func (f Frame) Summary() FrameSummary {
	regions := make(map[string]float64, len(f.Fills))
	for _, fill := range f.Fills {
		if fill.Explicit {
			regions[fill.RegionID] = fill.Temperature
		}
	}
	return FrameSummary{
		Offset:   f.Offset,
		Date:     f.Date,
		Season:   f.Season,
		Mean:     f.Mean,
		HasData:  f.HasData,
		Regions:  regions,
		Rendered: f.RenderedAt,
	}
}

// ImportRecord describes one CSV load into the observation store.
type ImportRecord struct {
	Source      string    `json:"source"`
	Mode        string    `json:"mode"`
	RowsLoaded  int       `json:"rowsLoaded"`
	RowsSkipped int       `json:"rowsSkipped"`
	ImportedAt  time.Time `json:"importedAt"`
}

// RegionInfo is the hover detail for one region on one day.
type RegionInfo struct {
	RegionID    string  `json:"regionId"`
	Offset      int     `json:"offset"`
	Date        string  `json:"date"`
	Temperature float64 `json:"temperature"`
	Explicit    bool    `json:"explicit"`
	Fill        string  `json:"fill"`
	Tooltip     string  `json:"tooltip"`
}
