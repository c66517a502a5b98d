// Package service turns a day offset into a rendered frame and fans frames
// out to listeners.
package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"climatemap-server/internal/modules/climate/domain"
	"climatemap-server/internal/modules/climate/geo"
	"climatemap-server/internal/modules/climate/render"
	"climatemap-server/internal/modules/climate/types"
	"climatemap-server/internal/observability"
)

// Dataset is everything loaded once at startup.
type Dataset struct {
	Observations []types.Observation
	Regions      []geo.Region
	Seasons      []types.Season
}

type Service struct {
	dateRange domain.DateRange
	index     domain.DateIndex
	seasons   *domain.SeasonResolver
	temps     *domain.TemperatureIndex
	regions   []geo.Region
	regionIDs map[string]struct{}
	scale     domain.ColorScale
	scene     *render.Scene
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger

	mu        sync.RWMutex
	last      types.Frame
	rendered  bool
	listeners []func(types.Frame)
}

type Option func(*Service)

func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithColorScale(c domain.ColorScale) Option {
	return func(s *Service) { s.scale = c }
}

// New indexes the dataset. It fails with domain.ErrNoObservations when the
// dataset is empty. Seasons default to domain.DefaultSeasons.
func New(ds Dataset, scene *render.Scene, opts ...Option) (*Service, error) {
	r, err := domain.NewDateRange(ds.Observations)
	if err != nil {
		return nil, err
	}
	seasons := ds.Seasons
	if len(seasons) == 0 {
		seasons = domain.DefaultSeasons()
	}

	s := &Service{
		dateRange: r,
		index:     domain.IndexOf(r),
		seasons:   domain.NewSeasonResolver(seasons),
		temps:     domain.NewTemperatureIndex(ds.Observations),
		regions:   ds.Regions,
		regionIDs: make(map[string]struct{}, len(ds.Regions)),
		scale:     domain.DefaultColorScale(),
		scene:     scene,
		clock:     clockwork.NewRealClock(),
		metrics:   observability.NewMetricsForTesting(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, reg := range ds.Regions {
		s.regionIDs[reg.ID] = struct{}{}
	}

	if err := domain.ValidateSeasons(seasons, r); err != nil {
		s.logger.Warn("season table does not cover the dataset", "error", err)
	}
	missing := s.temps.MissingDays(r)
	s.logger.Info("dataset loaded",
		"from", domain.FormatLabel(r.Start),
		"to", domain.FormatLabel(r.End),
		"days", r.DayCount,
		"days_with_data", s.temps.Len(),
		"days_missing", len(missing),
		"observations", s.temps.Total(),
		"regions", len(ds.Regions),
	)
	s.metrics.ObservationsLoaded.Set(float64(s.temps.Total()))
	s.metrics.RegionsLoaded.Set(float64(len(ds.Regions)))
	return s, nil
}

func (s *Service) Range() domain.DateRange { return s.dateRange }

func (s *Service) Index() domain.DateIndex { return s.index }

func (s *Service) DayCount() int { return s.index.DayCount() }

func (s *Service) Seasons() []types.Season { return s.seasons.Seasons() }

func (s *Service) Scale() domain.ColorScale { return s.scale }

func (s *Service) Scene() *render.Scene { return s.scene }

func (s *Service) RegionCount() int { return len(s.regions) }

// Subscribe registers fn to receive every frame produced by Render. fn runs
// on the rendering goroutine and must not block.
func (s *Service) Subscribe(fn func(types.Frame)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Render resolves the frame for offset, reconciles the scene against it and
// notifies subscribers. The offset is clamped to the date range.
func (s *Service) Render(offset int, playing bool) types.Frame {
	start := time.Now()

	offset = s.index.Clamp(offset)
	frame, desired := s.build(offset)
	frame.Playing = playing
	frame.Diff = s.scene.Reconcile(desired)
	frame.TransitionMS = s.scene.Transition().Milliseconds()

	s.metrics.RenderDuration.Observe(time.Since(start).Seconds())
	s.metrics.FramesRendered.Inc()
	s.metrics.CurrentOffset.Set(float64(offset))
	if playing {
		s.metrics.Playing.Set(1)
	} else {
		s.metrics.Playing.Set(0)
	}
	if !frame.HasData {
		s.metrics.EmptyDays.Inc()
		s.logger.Debug("no observations for date", "date", frame.Date, "offset", offset)
	}

	s.mu.Lock()
	s.last = frame
	s.rendered = true
	listeners := append([]func(types.Frame){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(frame)
	}
	return frame
}

// Current returns the last rendered frame, rendering offset 0 first if
// nothing has been rendered yet.
func (s *Service) Current() types.Frame {
	s.mu.RLock()
	f, ok := s.last, s.rendered
	s.mu.RUnlock()
	if ok {
		return f
	}
	return s.Preview(0)
}

// Preview computes the frame for offset without touching the scene or
// notifying subscribers.
func (s *Service) Preview(offset int) types.Frame {
	frame, _ := s.build(s.index.Clamp(offset))
	return frame
}

// Region reports the hover detail of one region on the clamped offset. ok is
// false for ids absent from the loaded geometry.
func (s *Service) Region(id string, offset int) (types.RegionInfo, bool) {
	if _, ok := s.regionIDs[id]; !ok {
		return types.RegionInfo{}, false
	}
	offset = s.index.Clamp(offset)
	date := s.index.DateFromOffset(offset)
	rt := domain.Resolve(s.temps.ObservationsOn(date))
	temp, explicit := rt.Lookup(id)
	fill := domain.NeutralFill
	if rt.HasData {
		fill = s.scale.Fill(temp)
	}
	return types.RegionInfo{
		RegionID:    id,
		Offset:      offset,
		Date:        domain.FormatKey(date),
		Temperature: temp,
		Explicit:    explicit,
		Fill:        fill,
		Tooltip:     domain.TooltipText(id, temp),
	}, true
}

func (s *Service) build(offset int) (types.Frame, []render.Desired) {
	date := s.index.DateFromOffset(offset)
	rt := domain.Resolve(s.temps.ObservationsOn(date))

	frame := types.Frame{
		Offset:     offset,
		DayCount:   s.index.DayCount(),
		Date:       domain.FormatKey(date),
		DateLabel:  domain.FormatLabel(date),
		Mean:       rt.Mean,
		HasData:    rt.HasData,
		Fills:      make([]types.RegionFill, 0, len(s.regions)),
		RenderedAt: s.clock.Now(),
	}
	if season, ok := s.seasons.SeasonOf(date); ok {
		frame.Season = season.Name
	}

	desired := make([]render.Desired, 0, len(s.regions))
	for _, reg := range s.regions {
		temp, explicit := rt.Lookup(reg.ID)
		fill := domain.NeutralFill
		if rt.HasData {
			fill = s.scale.Fill(temp)
		}
		frame.Fills = append(frame.Fills, types.RegionFill{
			RegionID:    reg.ID,
			Temperature: temp,
			Explicit:    explicit,
			Fill:        fill,
		})
		desired = append(desired, render.Desired{
			ID:          reg.ID,
			Geometry:    reg.Geometry,
			Temperature: temp,
			Explicit:    explicit,
			Fill:        fill,
		})
	}
	return frame, desired
}
