package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"climatemap-server/internal/config"
	"climatemap-server/internal/modules/climate/types"

	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces one message per rendered frame, keyed by date so every
// frame for a day lands on the same partition.
type Writer struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

func NewWriter(cfg config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newWriter(w, cfg.KafkaTopic, logger)
}

func newWriter(w messageWriter, topic string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{writer: w, topic: topic, logger: logger}
}

func (w *Writer) Name() string { return "kafka" }

func (w *Writer) Publish(ctx context.Context, frame types.Frame) error {
	msg, err := serializeToMessage(frame)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", w.topic, err)
	}
	w.logger.Debug("frame written", "topic", w.topic, "date", frame.Date)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals the frame summary into a Kafka message.
func serializeToMessage(frame types.Frame) (kafkago.Message, error) {
	data, err := json.Marshal(frame.Summary())
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize frame: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(frame.Date),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "offset", Value: []byte(strconv.Itoa(frame.Offset))},
			{Key: "season", Value: []byte(frame.Season)},
			{Key: "has_data", Value: []byte(strconv.FormatBool(frame.HasData))},
			{Key: "rendered_at", Value: []byte(frame.RenderedAt.Format(time.RFC3339))},
		},
	}, nil
}
