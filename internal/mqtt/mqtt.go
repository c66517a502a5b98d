package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"climatemap-server/internal/config"
	"climatemap-server/internal/modules/climate/types"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

var (
	ErrNotConnected = errors.New("mqtt: not connected")
	ErrStopped      = errors.New("mqtt: publisher stopped")
	ErrBreakerOpen  = errors.New("mqtt: circuit breaker open")
)

const (
	frameQoS     = byte(0)
	tokenPoll    = 200 * time.Millisecond
	breakerTrips = 3
)

// Publisher pushes frame summaries to a broker as retained messages so
// late subscribers immediately see the current day.
type Publisher struct {
	client  mqtt.Client
	topic   string
	logger  *slog.Logger
	breaker *gobreaker.CircuitBreaker

	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewPublisher(cfg config.Config, logger *slog.Logger) *Publisher {
	clientID := cfg.MQTTClientID
	if clientID == "" {
		clientID = "climatemap-" + uuid.NewString()
	}

	p := newPublisher(nil, cfg.MQTTTopic, logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		p.logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort, "client_id", clientID)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		p.logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

func newPublisher(client mqtt.Client, topic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		client: client,
		topic:  topic,
		logger: logger,
		stopCh: make(chan struct{}),
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mqtt-frames",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerTrips
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return p
}

func (p *Publisher) Name() string { return "mqtt" }

// Connect blocks until the broker accepts the connection, ctx is done or
// the publisher is stopped. When ctx ends first the client keeps retrying
// in the background and the publisher goes live on the first successful
// connect.
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return ErrStopped
	default:
	}
	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()
	for !token.WaitTimeout(tokenPoll) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			p.client.Disconnect(0)
			return ErrStopped
		default:
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.setConnected(true)
	return nil
}

// Publish sends the frame summary to the configured topic.
func (p *Publisher) Publish(ctx context.Context, frame types.Frame) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(frame.Summary())
	if err != nil {
		return fmt.Errorf("mqtt marshal frame: %w", err)
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.publish(ctx, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrBreakerOpen, err)
	}
	if err != nil {
		return err
	}
	p.logger.Debug("frame published", "topic", p.topic, "date", frame.Date, "size", len(payload))
	return nil
}

func (p *Publisher) publish(ctx context.Context, payload []byte) error {
	token := p.client.Publish(p.topic, frameQoS, true, payload)
	for !token.WaitTimeout(tokenPoll) {
		select {
		case <-ctx.Done():
			return fmt.Errorf("mqtt publish %s: %w", p.topic, ctx.Err())
		default:
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", p.topic, err)
	}
	return nil
}

func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect is idempotent.
func (p *Publisher) Disconnect() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	if p.client != nil {
		p.client.Disconnect(250)
	}
	p.setConnected(false)
	p.logger.Info("mqtt publisher disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
