package climate

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"climatemap-server/internal/config"
	"climatemap-server/internal/modules/climate/controller"
	"climatemap-server/internal/modules/climate/geo"
	"climatemap-server/internal/modules/climate/playback"
	"climatemap-server/internal/modules/climate/render"
	"climatemap-server/internal/modules/climate/repository"
	"climatemap-server/internal/modules/climate/service"
	"climatemap-server/internal/modules/climate/stream"
	"climatemap-server/internal/observability"
)

type FeatureDeps struct {
	Config  config.Config
	DB      *sql.DB
	Logger  *slog.Logger
	Metrics *observability.Metrics
	// Sinks receive every rendered frame through the dispatcher.
	Sinks []service.FrameSink
}

// Feature is the running map pipeline. Dispatcher.Run must be started by
// the caller; Close stops playback and disconnects stream clients.
type Feature struct {
	Service    *service.Service
	Playback   *playback.Controller
	Hub        *stream.Hub
	Dispatcher *service.Dispatcher
}

// RegisterFeature imports observations if needed, builds the frame pipeline,
// renders the first frame and registers the HTTP routes on mux.
func RegisterFeature(mux *http.ServeMux, deps FeatureDeps) (*Feature, error) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}

	repo := repository.NewRepository(deps.DB)
	if _, _, err := NewImporter(repo, logger, metrics).Import(cfg.ObservationsCSV, cfg.ImportMode); err != nil {
		return nil, fmt.Errorf("import observations: %w", err)
	}
	observations, err := repo.ListObservations()
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	regions, err := geo.LoadFile(cfg.GeoJSONPath, cfg.RegionKey)
	if err != nil {
		return nil, err
	}
	if ids := geo.IDs(regions); len(ids) > 0 {
		bound := geo.Bound(regions)
		logger.Info("regions loaded",
			"count", len(ids),
			"first", ids[0],
			"last", ids[len(ids)-1],
			"min", []float64{bound.Min.Lon(), bound.Min.Lat()},
			"max", []float64{bound.Max.Lon(), bound.Max.Lat()},
		)
	}

	scene := render.NewScene(
		render.NewProjection(cfg.MapWidth, cfg.MapHeight),
		render.WithTransition(cfg.TransitionDuration),
	)
	svc, err := service.New(
		service.Dataset{Observations: observations, Regions: regions},
		scene,
		service.WithLogger(logger),
		service.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}

	pb := playback.New(svc.DayCount(),
		func(offset int, state playback.State) { svc.Render(offset, state == playback.Playing) },
		playback.WithInterval(cfg.TickInterval),
		playback.WithLogger(logger),
	)
	hub := stream.NewHub(pb, svc.Current,
		stream.WithLogger(logger),
		stream.WithMetrics(metrics),
	)
	dispatcher := service.NewDispatcher(service.DefaultQueueSize, logger, metrics, deps.Sinks...)

	svc.Subscribe(hub.Broadcast)
	svc.Subscribe(dispatcher.Enqueue)
	pb.Render()

	controller.NewClimateController(controller.Deps{
		Frames:     svc,
		Playback:   pb,
		Stream:     hub,
		Imports:    repo,
		OnPlayback: hub.BroadcastPlayback,
		MapWidth:   cfg.MapWidth,
		MapHeight:  cfg.MapHeight,
	}).RegisterRoutes(mux)

	return &Feature{Service: svc, Playback: pb, Hub: hub, Dispatcher: dispatcher}, nil
}

func (f *Feature) Close() {
	f.Playback.Close()
	f.Hub.Close()
	f.Dispatcher.Close()
}
