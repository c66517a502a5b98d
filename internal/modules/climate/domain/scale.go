package domain

import (
	"fmt"
	"image/color"
	"math"
)

// NeutralFill paints regions on days without any observations.
const NeutralFill = "#cccccc"

const (
	DefaultScaleMin = -10.0
	DefaultScaleMax = 40.0
)

// cubehelix is a colour in Green's cubehelix space; hue in degrees.
type cubehelix struct {
	h, s, l float64
}

// Endpoints of the "cool" sequential scheme.
var (
	coolFrom = cubehelix{h: 260, s: 0.75, l: 0.35}
	coolTo   = cubehelix{h: 80, s: 1.50, l: 0.8}
)

// RGBA converts c to sRGB.
func (c cubehelix) RGBA() color.RGBA {
	const (
		a = -0.14861
		b = +1.78277
		cc = -0.29227
		d = -0.90649
		e = +1.97294
	)
	h := (c.h + 120) * math.Pi / 180
	amp := c.s * c.l * (1 - c.l)
	cosh, sinh := math.Cos(h), math.Sin(h)
	return color.RGBA{
		R: channel(255 * (c.l + amp*(a*cosh+b*sinh))),
		G: channel(255 * (c.l + amp*(cc*cosh+d*sinh))),
		B: channel(255 * (c.l + amp*(e*cosh))),
		A: 255,
	}
}

func channel(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}

// InterpolateCool samples the cool scheme at t in [0, 1]. Hue moves the long
// way round, matching the scheme's purple to green sweep.
func InterpolateCool(t float64) color.RGBA {
	t = math.Max(0, math.Min(1, t))
	c := cubehelix{
		h: coolFrom.h + t*(coolTo.h-coolFrom.h),
		s: coolFrom.s + t*(coolTo.s-coolFrom.s),
		l: coolFrom.l + t*(coolTo.l-coolFrom.l),
	}
	return c.RGBA()
}

// Hex formats c as #rrggbb.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseHex parses a #rrggbb colour.
func ParseHex(s string) (color.RGBA, error) {
	var c color.RGBA
	if len(s) != 7 || s[0] != '#' {
		return c, fmt.Errorf("invalid colour %q", s)
	}
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	c.A = 255
	return c, nil
}

// ColorScale maps temperatures in [Min, Max] onto the cool scheme. Values
// outside the domain are clamped.
type ColorScale struct {
	Min float64
	Max float64
}

func DefaultColorScale() ColorScale {
	return ColorScale{Min: DefaultScaleMin, Max: DefaultScaleMax}
}

// Normalize maps temp into [0, 1].
func (s ColorScale) Normalize(temp float64) float64 {
	if s.Max == s.Min {
		return 0
	}
	return math.Max(0, math.Min(1, (temp-s.Min)/(s.Max-s.Min)))
}

func (s ColorScale) Color(temp float64) color.RGBA {
	return InterpolateCool(s.Normalize(temp))
}

func (s ColorScale) Fill(temp float64) string {
	return Hex(s.Color(temp))
}

// LegendStop is one gradient stop of the legend bar, top to bottom.
type LegendStop struct {
	Offset string `json:"offset"`
	Color  string `json:"color"`
}

// LegendTick is one axis label of the legend; Y is the pixel offset from the
// top of the bar.
type LegendTick struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
	Y     float64 `json:"y"`
}

type Legend struct {
	Width  int          `json:"width"`
	Height int          `json:"height"`
	Stops  []LegendStop `json:"stops"`
	Ticks  []LegendTick `json:"ticks"`
}

// Legend builds a vertical legend with the warmest colour on top.
func (s ColorScale) Legend(width, height, ticks int) Legend {
	lg := Legend{Width: width, Height: height}
	const stops = 5
	for i := 0; i <= stops; i++ {
		frac := float64(i) / stops
		lg.Stops = append(lg.Stops, LegendStop{
			Offset: fmt.Sprintf("%d%%", int(math.Round(frac*100))),
			Color:  Hex(InterpolateCool(1 - frac)),
		})
	}
	if ticks < 2 {
		ticks = 2
	}
	step := (s.Max - s.Min) / float64(ticks)
	for i := 0; i <= ticks; i++ {
		v := s.Max - float64(i)*step
		lg.Ticks = append(lg.Ticks, LegendTick{
			Value: v,
			Label: fmt.Sprintf("%g °C", v),
			Y:     float64(height) * float64(i) / float64(ticks),
		})
	}
	return lg
}
