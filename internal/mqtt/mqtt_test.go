package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"climatemap-server/internal/config"
	"climatemap-server/internal/modules/climate/types"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// pendingToken never completes.
type pendingToken struct{ done chan struct{} }

func (t *pendingToken) Wait() bool {
	<-t.done
	return true
}
func (t *pendingToken) WaitTimeout(time.Duration) bool {
	time.Sleep(time.Millisecond)
	return false
}
func (t *pendingToken) Error() error          { return nil }
func (t *pendingToken) Done() <-chan struct{} { return t.done }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	connecting bool
	publishErr error
	published  []published
	disconnect int
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
func (c *fakeClient) IsConnectionOpen() bool { return c.IsConnected() }
func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connecting {
		return &pendingToken{done: make(chan struct{})}
	}
	c.connected = c.connectErr == nil
	return &fakeToken{err: c.connectErr}
}
func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnect++
}
func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic, qos, retained, payload.([]byte)})
	return &fakeToken{err: c.publishErr}
}
func (c *fakeClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}
func (c *fakeClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}
func (c *fakeClient) Unsubscribe(...string) mqtt.Token        { return &fakeToken{} }
func (c *fakeClient) AddRoute(string, mqtt.MessageHandler)    {}
func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func sampleFrame() types.Frame {
	return types.Frame{
		Offset:  2,
		Date:    "03/07/2023",
		Season:  "Winter",
		Mean:    12.5,
		HasData: true,
		Fills: []types.RegionFill{
			{RegionID: "3000", Temperature: 10, Explicit: true, Fill: "#111111"},
			{RegionID: "2000", Temperature: 12.5, Explicit: false, Fill: "#222222"},
		},
	}
}

func TestPublisher_PublishesRetainedSummary(t *testing.T) {
	client := &fakeClient{}
	p := newPublisher(client, "climatemap/frames", nil)
	require.NoError(t, p.Connect(context.Background()))
	require.True(t, p.IsConnected())
	assert.Equal(t, "mqtt", p.Name())

	require.NoError(t, p.Publish(context.Background(), sampleFrame()))

	require.Len(t, client.published, 1)
	msg := client.published[0]
	assert.Equal(t, "climatemap/frames", msg.topic)
	assert.Equal(t, byte(0), msg.qos)
	assert.True(t, msg.retained)

	var got types.FrameSummary
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, "03/07/2023", got.Date)
	assert.Equal(t, map[string]float64{"3000": 10}, got.Regions)
}

func TestPublisher_NotConnected(t *testing.T) {
	client := &fakeClient{}
	p := newPublisher(client, "t", nil)
	err := p.Publish(context.Background(), sampleFrame())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, client.published)
}

func TestPublisher_ConnectError(t *testing.T) {
	p := newPublisher(&fakeClient{connectErr: errors.New("refused")}, "t", nil)
	err := p.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
	assert.False(t, p.IsConnected())
}

func TestPublisher_ConnectTimeoutKeepsRetrying(t *testing.T) {
	client := &fakeClient{connecting: true}
	p := newPublisher(client, "t", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Connect(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	client.mu.Lock()
	assert.Equal(t, 0, client.disconnect, "a timed out connect must leave the retry loop running")
	client.mu.Unlock()

	// The client's on-connect callback flips the publisher live later.
	client.mu.Lock()
	client.connected = true
	client.mu.Unlock()
	p.setConnected(true)
	assert.True(t, p.IsConnected())
}

func TestPublisher_StopDuringConnect(t *testing.T) {
	client := &fakeClient{connecting: true}
	p := newPublisher(client, "t", nil)

	errCh := make(chan error, 1)
	go func() { errCh <- p.Connect(context.Background()) }()
	time.Sleep(5 * time.Millisecond)
	p.Disconnect()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return after Disconnect")
	}
	client.mu.Lock()
	assert.GreaterOrEqual(t, client.disconnect, 1)
	client.mu.Unlock()
}

func TestPublisher_BreakerOpensAfterFailures(t *testing.T) {
	client := &fakeClient{publishErr: errors.New("broker gone")}
	p := newPublisher(client, "t", nil)
	require.NoError(t, p.Connect(context.Background()))

	for i := 0; i < breakerTrips; i++ {
		err := p.Publish(context.Background(), sampleFrame())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrBreakerOpen)
	}
	err := p.Publish(context.Background(), sampleFrame())
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Len(t, client.published, breakerTrips, "open breaker must not reach the client")
}

func TestPublisher_DisconnectStops(t *testing.T) {
	client := &fakeClient{}
	p := newPublisher(client, "t", nil)
	require.NoError(t, p.Connect(context.Background()))

	p.Disconnect()
	p.Disconnect()

	assert.False(t, p.IsConnected())
	assert.Equal(t, 2, client.disconnect)
	assert.ErrorIs(t, p.Connect(context.Background()), ErrStopped)
}

func TestNewPublisher_GeneratesClientID(t *testing.T) {
	p := NewPublisher(config.Config{MQTTBroker: "localhost", MQTTPort: 1883, MQTTTopic: "t"}, nil)
	opts := p.client.OptionsReader()
	assert.Contains(t, opts.ClientID(), "climatemap-")
	assert.False(t, p.IsConnected())
}
