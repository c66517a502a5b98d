package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"climatemap-server/internal/config"
	db "climatemap-server/internal/db"
	httpapi "climatemap-server/internal/httpapi"
	"climatemap-server/internal/migrate"
	climate "climatemap-server/internal/modules/climate"
	climateviews "climatemap-server/internal/modules/climate/views"
	"climatemap-server/internal/observability"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"staticDir", cfg.StaticDir,
		"sqliteDriver", cfg.SQLiteDriver,
		"sqlitePath", cfg.SQLitePath,
		"geojson", cfg.GeoJSONPath,
		"observations", cfg.ObservationsCSV,
		"importMode", cfg.ImportMode,
		"tickInterval", cfg.TickInterval,
		"mqttBroker", cfg.MQTTBroker,
		"mqttTopic", cfg.MQTTTopic,
		"kafkaBrokers", cfg.KafkaBrokers,
		"kafkaTopic", cfg.KafkaTopic,
	)
	dbConn, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.RunContext(ctx, dbConn, slog.Default()); err != nil {
		return err
	}
	if err := climateviews.LoadTemplates(); err != nil {
		return err
	}

	metrics := observability.NewMetrics()

	sinks := openSinks(ctx, cfg)
	defer sinks.Close()

	mux := httpapi.NewMux(dbConn, cfg.StaticDir)
	feature, err := climate.RegisterFeature(mux, climate.FeatureDeps{
		Config:  cfg,
		DB:      dbConn,
		Logger:  slog.Default(),
		Metrics: metrics,
		Sinks:   sinks.sinks,
	})
	if err != nil {
		return err
	}

	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()
	go feature.Dispatcher.Run(dispatchCtx)

	srv := httpapi.NewServer(cfg, mux)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		feature.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	slog.Info("playback stopping")
	feature.Close()

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
