// Package geo loads the static region geometries the map is drawn from.
package geo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const DefaultRegionKey = "POA_CODE"

var ErrRegionKeyMissing = errors.New("region key missing")

// Region is one geographic feature keyed by its region identifier.
type Region struct {
	ID       string
	Geometry orb.Geometry
}

// LoadFile reads a GeoJSON feature collection from path.
func LoadFile(path, key string) ([]Region, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geojson: %w", err)
	}
	defer f.Close()
	return Load(f, key)
}

// Load decodes a feature collection and keys every polygonal feature by the
// string property key. Features without the property fail the load; repeated
// ids are merged into a single multipolygon.
func Load(r io.Reader, key string) ([]Region, error) {
	if key == "" {
		key = DefaultRegionKey
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	byID := make(map[string]orb.MultiPolygon)
	var order []string
	for i, f := range fc.Features {
		id, err := featureID(f, key)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		polys := polygons(f.Geometry)
		if len(polys) == 0 {
			continue
		}
		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] = append(byID[id], polys...)
	}

	regions := make([]Region, 0, len(order))
	for _, id := range order {
		mp := byID[id]
		var g orb.Geometry = mp
		if len(mp) == 1 {
			g = mp[0]
		}
		regions = append(regions, Region{ID: id, Geometry: g})
	}
	return regions, nil
}

func featureID(f *geojson.Feature, key string) (string, error) {
	v, ok := f.Properties[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %q", ErrRegionKeyMissing, key)
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return "", fmt.Errorf("%w: %q is empty", ErrRegionKeyMissing, key)
		}
		return t, nil
	case float64:
		return fmt.Sprintf("%.0f", t), nil
	default:
		return fmt.Sprint(t), nil
	}
}

func polygons(g orb.Geometry) []orb.Polygon {
	switch t := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{t}
	case orb.MultiPolygon:
		return []orb.Polygon(t)
	case orb.Collection:
		var out []orb.Polygon
		for _, c := range t {
			out = append(out, polygons(c)...)
		}
		return out
	default:
		return nil
	}
}

// IDs returns the region ids in ascending order.
func IDs(regions []Region) []string {
	ids := make([]string, len(regions))
	for i, r := range regions {
		ids[i] = r.ID
	}
	sort.Strings(ids)
	return ids
}

// Bound returns the bounding box of every region.
func Bound(regions []Region) orb.Bound {
	var b orb.Bound
	for i, r := range regions {
		if i == 0 {
			b = r.Geometry.Bound()
			continue
		}
		b = b.Union(r.Geometry.Bound())
	}
	return b
}
