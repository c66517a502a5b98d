package domain

import "climatemap-server/internal/modules/climate/types"

// RegionTemperatures is the sparse region to temperature mapping for one
// day. Regions without a reading fall back to Mean at lookup time.
type RegionTemperatures struct {
	Temps   map[string]float64
	Mean    float64
	HasData bool
}

// Resolve builds the mapping for a day's observations. A region reported
// more than once keeps its last reading; every reading counts toward Mean.
// An empty day yields HasData=false and a zero Mean.
func Resolve(observations []types.Observation) RegionTemperatures {
	rt := RegionTemperatures{Temps: make(map[string]float64, len(observations))}
	if len(observations) == 0 {
		return rt
	}
	var sum float64
	for _, o := range observations {
		rt.Temps[o.RegionID] = o.AvgTemp
		sum += o.AvgTemp
	}
	rt.Mean = sum / float64(len(observations))
	rt.HasData = true
	return rt
}

// Lookup returns the region's reading, or the day's mean when it has none.
// explicit reports which of the two was returned.
func (rt RegionTemperatures) Lookup(regionID string) (temp float64, explicit bool) {
	if t, ok := rt.Temps[regionID]; ok {
		return t, true
	}
	return rt.Mean, false
}
