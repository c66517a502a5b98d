// Package render keeps the set of coloured region shapes that make up the
// map and reconciles it against each new frame.
package render

import (
	"image/color"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"

	"climatemap-server/internal/modules/climate/domain"
	"climatemap-server/internal/modules/climate/types"
)

const DefaultTransition = 100 * time.Millisecond

// Desired is the target state of one region for a frame.
type Desired struct {
	ID          string
	Geometry    orb.Geometry
	Temperature float64
	Explicit    bool
	Fill        string
}

// Element is one persistent region shape.
type Element struct {
	ID          string
	Path        string
	Temperature float64
	Explicit    bool

	geometry orb.Geometry
	from     string
	to       string
	started  time.Time
}

// ElementView is a point-in-time copy of an Element for templates and JSON.
type ElementView struct {
	ID          string  `json:"id"`
	Path        string  `json:"path"`
	Tooltip     string  `json:"tooltip"`
	Temperature float64 `json:"temperature"`
	Explicit    bool    `json:"explicit"`
	Fill        string  `json:"fill"`
	Target      string  `json:"target"`
}

// Scene owns the visual elements, keyed by region id.
type Scene struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	projection Projection
	transition time.Duration
	elements   map[string]*Element
	order      []string
}

type SceneOption func(*Scene)

func WithClock(c clockwork.Clock) SceneOption {
	return func(s *Scene) { s.clock = c }
}

func WithTransition(d time.Duration) SceneOption {
	return func(s *Scene) { s.transition = d }
}

func NewScene(projection Projection, opts ...SceneOption) *Scene {
	s := &Scene{
		clock:      clockwork.NewRealClock(),
		projection: projection,
		transition: DefaultTransition,
		elements:   make(map[string]*Element),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scene) Transition() time.Duration { return s.transition }

func (s *Scene) Projection() Projection { return s.projection }

// Reconcile joins desired against the current elements by id. New ids are
// entered with their path projected, ids absent from desired are removed,
// and every remaining element starts a transition from its current colour to
// the desired one. A transition still in flight is retargeted.
func (s *Scene) Reconcile(desired []Desired) types.FrameDiff {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var diff types.FrameDiff

	want := make(map[string]struct{}, len(desired))
	for _, d := range desired {
		want[d.ID] = struct{}{}
	}
	for _, id := range s.order {
		if _, ok := want[id]; !ok {
			delete(s.elements, id)
			diff.Exited = append(diff.Exited, id)
		}
	}

	order := make([]string, 0, len(desired))
	seen := make(map[string]struct{}, len(desired))
	for _, d := range desired {
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}
		el, ok := s.elements[d.ID]
		if !ok {
			el = &Element{
				ID:       d.ID,
				Path:     s.projection.Path(d.Geometry),
				geometry: d.Geometry,
				from:     d.Fill,
				to:       d.Fill,
				started:  now,
			}
			s.elements[d.ID] = el
			diff.Entered = append(diff.Entered, d.ID)
		} else {
			el.from = el.fillAt(now, s.transition)
			el.to = d.Fill
			el.started = now
			if geometryChanged(el.geometry, d.Geometry) {
				el.geometry = d.Geometry
				el.Path = s.projection.Path(d.Geometry)
			}
			diff.Updated = append(diff.Updated, d.ID)
		}
		el.Temperature = d.Temperature
		el.Explicit = d.Explicit
		order = append(order, d.ID)
	}
	s.order = order
	return diff
}

func geometryChanged(old, next orb.Geometry) bool {
	if old == nil || next == nil {
		return old != next
	}
	return !orb.Equal(old, next)
}

// Len returns the number of live elements.
func (s *Scene) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.elements)
}

// Elements returns the elements in the order of the last reconcile, with
// fills sampled at the current clock time.
func (s *Scene) Elements() []ElementView {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	out := make([]ElementView, 0, len(s.order))
	for _, id := range s.order {
		el := s.elements[id]
		out = append(out, ElementView{
			ID:          el.ID,
			Path:        el.Path,
			Tooltip:     domain.TooltipText(el.ID, el.Temperature),
			Temperature: el.Temperature,
			Explicit:    el.Explicit,
			Fill:        el.fillAt(now, s.transition),
			Target:      el.to,
		})
	}
	return out
}

// Element returns a view of a single element.
func (s *Scene) Element(id string) (ElementView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.elements[id]
	if !ok {
		return ElementView{}, false
	}
	return ElementView{
		ID:          el.ID,
		Path:        el.Path,
		Tooltip:     domain.TooltipText(el.ID, el.Temperature),
		Temperature: el.Temperature,
		Explicit:    el.Explicit,
		Fill:        el.fillAt(s.clock.Now(), s.transition),
		Target:      el.to,
	}, true
}

// fillAt linearly interpolates the element's colour at now.
func (el *Element) fillAt(now time.Time, d time.Duration) string {
	if el.from == el.to || d <= 0 {
		return el.to
	}
	elapsed := now.Sub(el.started)
	if elapsed >= d {
		return el.to
	}
	if elapsed <= 0 {
		return el.from
	}
	from, err1 := domain.ParseHex(el.from)
	to, err2 := domain.ParseHex(el.to)
	if err1 != nil || err2 != nil {
		return el.to
	}
	return domain.Hex(lerp(from, to, float64(elapsed)/float64(d)))
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + t*(float64(y)-float64(x)) + 0.5)
	}
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}
