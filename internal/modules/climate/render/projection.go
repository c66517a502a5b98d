package render

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

const (
	DefaultMapWidth  = 650
	DefaultMapHeight = 550
	DefaultScale     = 700
)

// DefaultCenter is the geographic centre of Australia.
var DefaultCenter = orb.Point{133.7751, -25.2744}

// Projection is a spherical Mercator projection scaled and translated so
// that Center lands on (TX, TY) in screen pixels.
type Projection struct {
	Center orb.Point
	Scale  float64
	TX, TY float64

	cx, cy float64
}

// NewProjection returns the map projection for a width x height viewport.
func NewProjection(width, height int) Projection {
	return NewProjectionAt(DefaultCenter, DefaultScale, float64(width)/2+30, float64(height)/2-30)
}

func NewProjectionAt(center orb.Point, scale, tx, ty float64) Projection {
	c := project.WGS84.ToMercator(center)
	return Projection{
		Center: center,
		Scale:  scale,
		TX:     tx,
		TY:     ty,
		cx:     c[0] / orb.EarthRadius,
		cy:     c[1] / orb.EarthRadius,
	}
}

// Project maps a lon/lat point to screen coordinates; y grows downward.
func (p Projection) Project(pt orb.Point) (x, y float64) {
	m := project.WGS84.ToMercator(pt)
	x = p.TX + p.Scale*(m[0]/orb.EarthRadius-p.cx)
	y = p.TY - p.Scale*(m[1]/orb.EarthRadius-p.cy)
	return x, y
}

// Path renders the polygonal parts of g as SVG path data. Other geometry
// types produce an empty path.
func (p Projection) Path(g orb.Geometry) string {
	var b strings.Builder
	p.writeGeometry(&b, g)
	return b.String()
}

func (p Projection) writeGeometry(b *strings.Builder, g orb.Geometry) {
	switch t := g.(type) {
	case orb.Polygon:
		for _, ring := range t {
			p.writeRing(b, ring)
		}
	case orb.MultiPolygon:
		for _, poly := range t {
			p.writeGeometry(b, poly)
		}
	case orb.Ring:
		p.writeRing(b, t)
	case orb.Collection:
		for _, c := range t {
			p.writeGeometry(b, c)
		}
	}
}

func (p Projection) writeRing(b *strings.Builder, ring orb.Ring) {
	if len(ring) == 0 {
		return
	}
	n := len(ring)
	if n > 1 && ring[0] == ring[n-1] {
		n--
	}
	for i := 0; i < n; i++ {
		if i == 0 {
			b.WriteByte('M')
		} else {
			b.WriteByte('L')
		}
		x, y := p.Project(ring[i])
		b.WriteString(formatCoord(x))
		b.WriteByte(',')
		b.WriteString(formatCoord(y))
	}
	b.WriteByte('Z')
}

func formatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', 1, 64)
	if s == "-0.0" {
		return "0.0"
	}
	return s
}
