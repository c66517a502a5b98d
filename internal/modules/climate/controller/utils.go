package controller

import (
	"errors"
	"net/http"
	"strconv"

	"climatemap-server/internal/modules/climate/render"
)

const (
	legendWidth  = 20
	legendHeight = 250
	legendTicks  = 5
)

// parseOffset converts a path or query value to a day offset. Range checks
// are left to the clamping layer.
func parseOffset(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'offset' (expected integer)")
	}
	return n, nil
}

// parseOffsetQuery returns the "offset" query value; ok is false when the
// parameter is absent.
func parseOffsetQuery(r *http.Request) (offset int, ok bool, err error) {
	s := r.URL.Query().Get("offset")
	if s == "" {
		return 0, false, nil
	}
	offset, err = parseOffset(s)
	if err != nil {
		return 0, false, err
	}
	return offset, true, nil
}

// parseZoomQuery reads the k, x and y transform components and applies an
// optional zoom=in|out step around the map centre.
func parseZoomQuery(r *http.Request, width, height int) (render.Zoom, error) {
	q := r.URL.Query()
	z := render.IdentityZoom()

	for _, p := range []struct {
		key string
		dst *float64
	}{
		{key: "k", dst: &z.K},
		{key: "x", dst: &z.X},
		{key: "y", dst: &z.Y},
	} {
		s := q.Get(p.key)
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return render.Zoom{}, errors.New("invalid '" + p.key + "' (expected number)")
		}
		*p.dst = v
	}
	if z.K < render.MinZoom || z.K > render.MaxZoom {
		return render.Zoom{}, errors.New("'k' must be between 1 and 8")
	}

	cx, cy := float64(width)/2, float64(height)/2
	switch q.Get("zoom") {
	case "":
	case "in":
		z = z.ScaleBy(render.ZoomInStep, cx, cy)
	case "out":
		z = z.ScaleBy(render.ZoomOutStep, cx, cy)
	default:
		return render.Zoom{}, errors.New("invalid 'zoom' (expected in or out)")
	}
	return z, nil
}
