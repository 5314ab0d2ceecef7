package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/botrelay/internal/adapters/signal"
	"github.com/dkeye/botrelay/internal/app"
	"github.com/dkeye/botrelay/internal/app/orch"
	"github.com/dkeye/botrelay/internal/config"
	"github.com/dkeye/botrelay/internal/core"
	"github.com/dkeye/botrelay/internal/domain"
	"github.com/dkeye/botrelay/internal/metrics"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	frames chan []byte
}

func (s *memSink) Append(_ context.Context, _ domain.BotID, data []byte) error {
	select {
	case s.frames <- data:
	default:
	}
	return nil
}

func (s *memSink) Close() error { return nil }

type testServer struct {
	url  string
	orch *orch.Orchestrator
	sink *memSink
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{Mode: "release"}
	}
	reg := metrics.NewRegistry()
	m := metrics.NewRelayMetrics(reg)
	sink := &memSink{frames: make(chan []byte, 16)}
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Conns:    app.NewConnTable(),
		Sink:     sink,
		Policy:   app.DropPolicy{},
		Metrics:  m,
	}
	ctl := signal.NewSignalWSController(o, m, signal.Settings{ReadLimit: 1 << 16, PingPeriod: 30 * time.Second, SendBuffer: 16})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := httptest.NewServer(SetupRouter(ctx, cfg, ctl, reg))
	t.Cleanup(srv.Close)
	return &testServer{url: srv.URL, orch: o, sink: sink}
}

func (s *testServer) dial(t *testing.T, path string) *ws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.url, "http") + path
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *ws.Conn) map[string]string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]string
	require.NoError(t, json.Unmarshal(msg, &out))
	return out
}

func send(t *testing.T, conn *ws.Conn, msg string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(msg)))
}

const audioBot1 = `{"event":"audio_mixed_raw.data","data":{"bot":{"id":"bot1"},"data":{"buffer":"aGVsbG8="}}}`

func TestRelay_EndToEnd(t *testing.T) {
	s := newTestServer(t, nil)
	bot := s.dial(t, "/")
	listener := s.dial(t, "/ws")

	send(t, listener, `{"type":"subscribe","botId":"bot1"}`)
	require.Eventually(t, func() bool {
		return len(s.orch.Registry.SubscribersOf("bot1")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	send(t, bot, audioBot1)
	assert.Equal(t, map[string]string{"botId": "bot1", "audio": "aGVsbG8="}, readJSON(t, listener))

	select {
	case got := <-s.sink.frames:
		assert.Equal(t, []byte("hello"), got)
	case <-time.After(2 * time.Second):
		t.Fatal("sink did not receive frame")
	}

	require.NoError(t, bot.Close())
	assert.Equal(t, map[string]string{"type": "bot_disconnected", "botId": "bot1"}, readJSON(t, listener))
	require.Eventually(t, func() bool {
		return len(s.orch.Registry.Snapshot()) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRelay_MalformedKeepsConnection(t *testing.T) {
	s := newTestServer(t, nil)
	bot := s.dial(t, "/ws")
	listener := s.dial(t, "/ws")

	send(t, listener, `not json`)
	send(t, listener, `{"type":"subscribe","botId":"bot1"}`)
	require.Eventually(t, func() bool {
		return len(s.orch.Registry.SubscribersOf("bot1")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	send(t, bot, `{"event":"audio_mixed_raw.data","data":{}}`)
	send(t, bot, audioBot1)
	assert.Equal(t, "aGVsbG8=", readJSON(t, listener)["audio"])
}

func TestRelay_ListenerCloseCleansRegistry(t *testing.T) {
	s := newTestServer(t, nil)
	listener := s.dial(t, "/ws")

	send(t, listener, `{"type":"subscribe","botId":"bot1"}`)
	require.Eventually(t, func() bool {
		return len(s.orch.Registry.SubscribersOf("bot1")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, listener.Close())
	require.Eventually(t, func() bool {
		return len(s.orch.Registry.SubscribersOf("bot1")) == 0 && s.orch.Conns.Count() == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRelay_ReadLimitClosesSocket(t *testing.T) {
	s := newTestServer(t, nil)
	conn := s.dial(t, "/ws")

	_ = conn.WriteMessage(ws.TextMessage, []byte(`{"pad":"`+strings.Repeat("x", 1<<17)+`"}`))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	resp, err := http.Get(s.url + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBotsAPI(t *testing.T) {
	s := newTestServer(t, nil)
	s.orch.Registry.BindProducer(core.SessionID("a"), "bot1")
	s.orch.Registry.AddSubscriber("bot1", "s1")

	resp, err := http.Get(s.url + "/api/bots")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Bots        []domain.BotInfo `json:"bots"`
		Connections int              `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []domain.BotInfo{{ID: "bot1", Online: true, Subscribers: 1}}, body.Bots)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	bot := s.dial(t, "/ws")
	send(t, bot, audioBot1)
	select {
	case <-s.sink.frames:
	case <-time.After(2 * time.Second):
		t.Fatal("frame not processed")
	}

	resp, err := http.Get(s.url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "botrelay_bots_online 1")
	assert.Contains(t, string(body), "botrelay_websocket_active_connections 1")
}

func TestConnRateLimit(t *testing.T) {
	s := newTestServer(t, &config.Config{Mode: "release", ConnRate: config.RateConfig{Limit: 1, Interval: time.Minute}})
	s.dial(t, "/ws")

	url := "ws" + strings.TrimPrefix(s.url, "http") + "/ws"
	_, resp, err := ws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
