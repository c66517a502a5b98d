package stream

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"climatemap-server/internal/modules/climate/playback"
	"climatemap-server/internal/modules/climate/types"
	"climatemap-server/internal/observability"
)

type fakeControls struct {
	mu    sync.Mutex
	calls []string
	snap  playback.Snapshot
}

func (f *fakeControls) record(name string, state playback.State) playback.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	f.snap.State = state
	return f.snap
}

func (f *fakeControls) Play() playback.Snapshot   { return f.record("play", playback.Playing) }
func (f *fakeControls) Pause() playback.Snapshot  { return f.record("pause", playback.Stopped) }
func (f *fakeControls) Toggle() playback.Snapshot { return f.record("toggle", playback.Playing) }
func (f *fakeControls) Reset() playback.Snapshot  { return f.record("reset", f.snap.State) }

func (f *fakeControls) Seek(offset int) playback.Snapshot {
	f.mu.Lock()
	f.snap.Offset = offset
	f.mu.Unlock()
	return f.record("seek", f.snap.State)
}

func (f *fakeControls) Snapshot() playback.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeControls) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func intPtr(v int) *int { return &v }

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Command
		wantErr error
	}{
		{name: "play", in: `{"action":"play"}`, want: Command{Action: "play"}},
		{name: "seek", in: `{"action":"seek","offset":12}`, want: Command{Action: "seek", Offset: intPtr(12)}},
		{name: "seek zero", in: `{"action":"seek","offset":0}`, want: Command{Action: "seek", Offset: intPtr(0)}},
		{name: "seek without offset", in: `{"action":"seek"}`, wantErr: ErrMissingOffset},
		{name: "unknown", in: `{"action":"rewind"}`, wantErr: ErrUnknownAction},
		{name: "empty", in: `{}`, wantErr: ErrUnknownAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.in))
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseCommand([]byte(`not json`))
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	c := &fakeControls{snap: playback.Snapshot{DayCount: 10}}
	assert.Equal(t, playback.Playing, Apply(c, Command{Action: "play"}).State)
	assert.Equal(t, playback.Stopped, Apply(c, Command{Action: "pause"}).State)
	assert.Equal(t, 4, Apply(c, Command{Action: "seek", Offset: intPtr(4)}).Offset)
	Apply(c, Command{Action: "reset"})
	Apply(c, Command{Action: "toggle"})
	assert.Equal(t, []string{"play", "pause", "seek", "reset", "toggle"}, c.Calls())
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func newTestHub(controls Controls, m *observability.Metrics) (*Hub, *httptest.Server) {
	current := func() types.Frame { return types.Frame{Offset: 3, Date: "04/07/2023"} }
	h := NewHub(controls, current, WithMetrics(m))
	return h, httptest.NewServer(h)
}

func TestHub_initialStateAndBroadcast(t *testing.T) {
	m := observability.NewMetricsForTesting()
	controls := &fakeControls{snap: playback.Snapshot{State: playback.Stopped, Offset: 3, DayCount: 10}}
	h, srv := newTestHub(controls, m)
	defer srv.Close()
	defer h.Close()

	conn := dial(t, srv)

	first := readMessage(t, conn)
	require.Equal(t, "frame", first.Type)
	assert.Equal(t, 3, first.Frame.Offset)

	second := readMessage(t, conn)
	require.Equal(t, "playback", second.Type)
	assert.Equal(t, 10, second.Playback.DayCount)

	assert.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StreamClients))

	h.Broadcast(types.Frame{Offset: 4, Date: "05/07/2023"})
	msg := readMessage(t, conn)
	require.Equal(t, "frame", msg.Type)
	assert.Equal(t, "05/07/2023", msg.Frame.Date)
}

func TestHub_commands(t *testing.T) {
	controls := &fakeControls{snap: playback.Snapshot{DayCount: 10}}
	h, srv := newTestHub(controls, observability.NewMetricsForTesting())
	defer srv.Close()
	defer h.Close()

	conn := dial(t, srv)
	readMessage(t, conn)
	readMessage(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"seek","offset":6}`)))
	msg := readMessage(t, conn)
	require.Equal(t, "playback", msg.Type)
	assert.Equal(t, 6, msg.Playback.Offset)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"fly"}`)))
	msg = readMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "unknown action")

	assert.Equal(t, []string{"seek"}, controls.Calls())
}

func TestHub_slowClientDisconnected(t *testing.T) {
	m := observability.NewMetricsForTesting()
	h := NewHub(nil, nil, WithMetrics(m), WithSendBuffer(1))
	c := &client{id: "slow", send: make(chan []byte, 1), done: make(chan struct{})}
	require.NoError(t, h.register(c))

	h.Broadcast(types.Frame{Offset: 1})
	assert.Equal(t, 1, h.Len())
	h.Broadcast(types.Frame{Offset: 2})

	assert.Equal(t, 0, h.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FramesDropped.WithLabelValues("stream")))
	select {
	case <-c.done:
	default:
		t.Fatal("slow client not closed")
	}
}

func TestHub_closeRejectsClients(t *testing.T) {
	h, srv := newTestHub(&fakeControls{}, observability.NewMetricsForTesting())
	defer srv.Close()

	conn := dial(t, srv)
	readMessage(t, conn)
	readMessage(t, conn)
	assert.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 10*time.Millisecond)

	h.Close()
	assert.Equal(t, 0, h.Len())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "err = %v", err)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	assert.ErrorIs(t, h.register(&client{id: "late", done: make(chan struct{})}), ErrHubClosed)
}
