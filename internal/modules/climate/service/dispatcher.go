package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"climatemap-server/internal/modules/climate/types"
	"climatemap-server/internal/observability"
)

const (
	DefaultQueueSize      = 16
	DefaultPublishTimeout = 5 * time.Second
)

// FrameSink publishes frames to an external consumer.
type FrameSink interface {
	Name() string
	Publish(ctx context.Context, frame types.Frame) error
}

// Dispatcher forwards frames to sinks from its own goroutine. Enqueue never
// blocks: when the queue is full the oldest pending frame is discarded.
type Dispatcher struct {
	sinks   []FrameSink
	queue   chan types.Frame
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics

	mu        sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func NewDispatcher(size int, logger *slog.Logger, metrics *observability.Metrics, sinks ...FrameSink) *Dispatcher {
	if size < 1 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}
	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan types.Frame, size),
		timeout: DefaultPublishTimeout,
		logger:  logger,
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

// Len reports the number of sinks.
func (d *Dispatcher) Len() int { return len(d.sinks) }

// Enqueue hands frame to the dispatcher. It is a no-op after Close or when
// there are no sinks.
func (d *Dispatcher) Enqueue(frame types.Frame) {
	if len(d.sinks) == 0 {
		return
	}
	select {
	case <-d.done:
		return
	default:
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case d.queue <- frame:
		return
	default:
	}
	select {
	case old := <-d.queue:
		d.metrics.FramesDropped.WithLabelValues("dispatch").Inc()
		d.logger.Debug("dispatch queue full, dropped frame", "date", old.Date)
	default:
	}
	select {
	case d.queue <- frame:
	default:
		d.metrics.FramesDropped.WithLabelValues("dispatch").Inc()
	}
}

// Run publishes queued frames until ctx is cancelled or Close is called.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case frame := <-d.queue:
			d.publish(ctx, frame)
		}
	}
}

func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

func (d *Dispatcher) publish(ctx context.Context, frame types.Frame) {
	for _, sink := range d.sinks {
		pctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := sink.Publish(pctx, frame)
		cancel()
		if err != nil {
			d.metrics.SinkErrors.WithLabelValues(sink.Name()).Inc()
			d.logger.Warn("frame publish failed",
				"sink", sink.Name(),
				"date", frame.Date,
				"error", err,
			)
		}
	}
}
