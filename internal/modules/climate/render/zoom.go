package render

import (
	"fmt"
	"math"
)

const (
	MinZoom     = 1.0
	MaxZoom     = 8.0
	ZoomInStep  = 1.2
	ZoomOutStep = 0.8
)

// Zoom is the pan/zoom transform applied to the map paths.
type Zoom struct {
	K float64 `json:"k"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func IdentityZoom() Zoom {
	return Zoom{K: 1}
}

// ScaleBy multiplies the zoom factor, keeping the screen point (cx, cy)
// fixed. The factor is clamped to [MinZoom, MaxZoom].
func (z Zoom) ScaleBy(factor, cx, cy float64) Zoom {
	if z.K == 0 {
		z.K = 1
	}
	k := math.Max(MinZoom, math.Min(MaxZoom, z.K*factor))
	// World point under (cx, cy) before scaling.
	wx := (cx - z.X) / z.K
	wy := (cy - z.Y) / z.K
	return Zoom{K: k, X: cx - wx*k, Y: cy - wy*k}
}

// Transform renders z as an SVG transform attribute value.
func (z Zoom) Transform() string {
	if z.K == 0 {
		z.K = 1
	}
	return fmt.Sprintf("translate(%s,%s) scale(%s)", formatCoord(z.X), formatCoord(z.Y), trimFloat(z.K))
}

func trimFloat(v float64) string {
	return fmt.Sprintf("%g", math.Round(v*1e4)/1e4)
}
