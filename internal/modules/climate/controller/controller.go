package controller

import (
	"net/http"

	"climatemap-server/internal/modules/climate/domain"
	"climatemap-server/internal/modules/climate/playback"
	"climatemap-server/internal/modules/climate/render"
	"climatemap-server/internal/modules/climate/stream"
	"climatemap-server/internal/modules/climate/types"
)

// FrameSource is the read side of the frame pipeline.
type FrameSource interface {
	Current() types.Frame
	Preview(offset int) types.Frame
	Region(id string, offset int) (types.RegionInfo, bool)
	Range() domain.DateRange
	Seasons() []types.Season
	Scale() domain.ColorScale
	Scene() *render.Scene
}

// ImportSource reports the last observation import.
type ImportSource interface {
	LatestImport() (types.ImportRecord, bool, error)
}

type Deps struct {
	Frames   FrameSource
	Playback stream.Controls
	Stream   http.Handler
	Imports  ImportSource
	// OnPlayback is called after a playback command changes state.
	OnPlayback func(playback.Snapshot)
	Title      string
	MapWidth   int
	MapHeight  int
}

type ClimateController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type climateControllerImpl struct {
	frames     FrameSource
	playback   stream.Controls
	stream     http.Handler
	imports    ImportSource
	onPlayback func(playback.Snapshot)
	title      string
	width      int
	height     int
}

func NewClimateController(d Deps) ClimateController {
	c := &climateControllerImpl{
		frames:     d.Frames,
		playback:   d.Playback,
		stream:     d.Stream,
		imports:    d.Imports,
		onPlayback: d.OnPlayback,
		title:      d.Title,
		width:      d.MapWidth,
		height:     d.MapHeight,
	}
	if c.title == "" {
		c.title = "Australian postcode temperatures"
	}
	if c.width <= 0 {
		c.width = render.DefaultMapWidth
	}
	if c.height <= 0 {
		c.height = render.DefaultMapHeight
	}
	return c
}

func (c *climateControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /", c.handlePage)
	mux.HandleFunc("GET /partials/map", c.handleMapPartial)
	mux.HandleFunc("GET /api/range", c.handleRange)
	mux.HandleFunc("GET /api/frames/{offset}", c.handleFrame)
	mux.HandleFunc("GET /api/regions/{id}", c.handleRegion)
	mux.HandleFunc("GET /api/legend", c.handleLegend)
	mux.HandleFunc("GET /api/playback", c.handlePlayback)
	mux.HandleFunc("POST /api/playback/{action}", c.handlePlaybackAction)
	if c.stream != nil {
		mux.Handle("GET /ws", c.stream)
	}
}
