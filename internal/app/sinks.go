package app

import (
	"context"
	"log/slog"
	"time"

	"climatemap-server/internal/config"
	"climatemap-server/internal/kafka"
	"climatemap-server/internal/modules/climate/service"
	"climatemap-server/internal/mqtt"
)

const mqttConnectTimeout = 5 * time.Second

// sinkSet holds the frame sinks and their teardown, closed in reverse
// order of registration.
type sinkSet struct {
	sinks   []service.FrameSink
	closers []func()
}

func (s *sinkSet) add(sink service.FrameSink, closeFn func()) {
	s.sinks = append(s.sinks, sink)
	s.closers = append(s.closers, closeFn)
}

// Close is idempotent.
func (s *sinkSet) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func openSinks(ctx context.Context, cfg config.Config) *sinkSet {
	set := &sinkSet{}

	if cfg.MQTTBroker != "" {
		publisher := mqtt.NewPublisher(cfg, slog.Default().With("component", "mqtt"))
		connectCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
		err := publisher.Connect(connectCtx)
		cancel()
		if err != nil {
			// The client keeps retrying; frames fail with ErrNotConnected until it connects.
			slog.Warn("mqtt not connected yet (retrying in background)", "error", err)
		}
		set.add(publisher, func() {
			slog.Info("mqtt disconnecting")
			publisher.Disconnect()
		})
	}

	if len(cfg.KafkaBrokers) > 0 {
		writer := kafka.NewWriter(cfg, slog.Default().With("component", "kafka"))
		set.add(writer, func() {
			slog.Info("kafka writer closing")
			if err := writer.Close(); err != nil {
				slog.Error("kafka close", "error", err)
			}
		})
	}

	return set
}
