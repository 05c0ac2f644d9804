package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xander1421/yt-fs/internal/relay"
)

type FakeController struct {
	HandleMessageFunc func(ctx context.Context, msg relay.Message) (relay.Ack, error)
	StatusFunc        func(ctx context.Context) (relay.Status, error)
}

func (f *FakeController) HandleMessage(ctx context.Context, msg relay.Message) (relay.Ack, error) {
	return f.HandleMessageFunc(ctx, msg)
}

func (f *FakeController) Status(ctx context.Context) (relay.Status, error) {
	return f.StatusFunc(ctx)
}

func toggler() *FakeController {
	enabled := false
	return &FakeController{
		HandleMessageFunc: func(_ context.Context, msg relay.Message) (relay.Ack, error) {
			if msg.Action != "toggle-tabfs" {
				return relay.Ack{ID: msg.ID, Error: "unknown action"}, nil
			}
			enabled = !enabled
			return relay.Ack{ID: msg.ID, OK: true, Enabled: enabled}, nil
		},
		StatusFunc: func(context.Context) (relay.Status, error) {
			return relay.Status{Path: "/watch", Watch: true, Enabled: enabled}, nil
		},
	}
}

func newTestServer(t *testing.T, ctrl Controller) (*Server, *httptest.Server) {
	t.Helper()
	s := New(DefaultConfig(), ctrl, BuildInfo{Version: "1.2.3", Commit: "abc", Date: "today"}, zap.NewNop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestPingAndVersion(t *testing.T) {
	_, ts := newTestServer(t, toggler())

	var ping map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/1/ping", &ping))
	assert.Equal(t, map[string]string{"status": "ok", "app": "yt-fs"}, ping)

	var ver map[string]string
	getJSON(t, ts.URL+"/api/1/version", &ver)
	assert.Equal(t, "1.2.3", ver["version"])
	assert.Equal(t, "abc", ver["commit"])
	assert.Equal(t, "today", ver["build"])
}

func TestMessage(t *testing.T) {
	_, ts := newTestServer(t, toggler())

	var ack relay.Ack
	require.Equal(t, http.StatusOK, postJSON(t, ts.URL+"/api/1/message", `{"id":"m1","action":"toggle-tabfs"}`, &ack))
	assert.Equal(t, relay.Ack{ID: "m1", OK: true, Enabled: true}, ack)

	require.Equal(t, http.StatusOK, postJSON(t, ts.URL+"/api/1/message", `{"id":"m2","action":"explode"}`, &ack))
	assert.False(t, ack.OK)
	assert.Equal(t, "unknown action", ack.Error)

	var st relay.Status
	getJSON(t, ts.URL+"/api/1/status", &st)
	assert.True(t, st.Enabled)
}

func TestMessageBadBody(t *testing.T) {
	_, ts := newTestServer(t, toggler())
	var e map[string]string
	assert.Equal(t, http.StatusBadRequest, postJSON(t, ts.URL+"/api/1/message", `{`, &e))
	assert.Equal(t, "Invalid request", e["error"])
}

func TestControllerUnavailable(t *testing.T) {
	stopped := errors.New("tabfs: controller stopped")
	_, ts := newTestServer(t, &FakeController{
		HandleMessageFunc: func(context.Context, relay.Message) (relay.Ack, error) { return relay.Ack{}, stopped },
		StatusFunc:        func(context.Context) (relay.Status, error) { return relay.Status{}, stopped },
	})

	var e map[string]string
	assert.Equal(t, http.StatusServiceUnavailable, postJSON(t, ts.URL+"/api/1/message", `{"action":"toggle-tabfs"}`, &e))
	assert.Contains(t, e["error"], "controller stopped")
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/api/1/status", &e))
}

func TestMethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t, toggler())
	resp, err := http.Get(ts.URL + "/api/1/message")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t, toggler())
	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/1/message", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://www.youtube.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://www.youtube.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestOriginAllowed(t *testing.T) {
	s := New(DefaultConfig(), toggler(), BuildInfo{}, zap.NewNop())
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://www.youtube.com", true},
		{"https://youtube.com", true},
		{"https://M.YouTube.com", true},
		{"http://www.youtube.com", false},
		{"https://youtube.com.evil.example", false},
		{"https://evil.example", false},
		{"null", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.want, s.originAllowed(tt.origin))
		})
	}

	open := New(Config{AllowedOrigins: []string{"*"}}, toggler(), BuildInfo{}, zap.NewNop())
	assert.True(t, open.originAllowed("https://evil.example"))
}

func TestCrossSitePostRefused(t *testing.T) {
	var toggled, shutdown atomic.Bool
	s, ts := newTestServer(t, &FakeController{
		HandleMessageFunc: func(_ context.Context, msg relay.Message) (relay.Ack, error) {
			toggled.Store(true)
			return relay.Ack{ID: msg.ID, OK: true}, nil
		},
	})
	s.SetOnShutdown(func() { shutdown.Store(true) })

	post := func(path, contentType, origin, body string) int {
		req, err := http.NewRequest(http.MethodPost, ts.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", contentType)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusForbidden, post("/api/1/message", "text/plain", "https://evil.example", `{"action":"toggle-tabfs"}`))
	assert.Equal(t, http.StatusForbidden, post("/api/1/shutdown", "text/plain", "https://evil.example", ``))
	assert.Equal(t, http.StatusUnsupportedMediaType, post("/api/1/message", "text/plain", "", `{"action":"toggle-tabfs"}`))
	assert.False(t, toggled.Load())
	assert.False(t, shutdown.Load())

	assert.Equal(t, http.StatusOK, post("/api/1/message", "application/json; charset=utf-8", "https://www.youtube.com", `{"action":"toggle-tabfs"}`))
	assert.True(t, toggled.Load())
}

func TestWebSocketOriginChecked(t *testing.T) {
	_, ts := newTestServer(t, toggler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/1/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://www.youtube.com"}})
	require.NoError(t, err)
	conn.Close()
}

func TestLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := New(DefaultConfig(), toggler(), BuildInfo{}, zap.New(core))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	var ok map[string]string
	postJSON(t, ts.URL+"/api/1/log", `{"message":"player missing","level":"warn"}`, &ok)
	assert.Equal(t, "ok", ok["status"])

	entries := logs.FilterMessage("player missing").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "api.js", entries[0].LoggerName)
}

func TestWebSocket(t *testing.T) {
	_, ts := newTestServer(t, toggler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(relay.Message{ID: "w1", Action: "toggle-tabfs"}))
	var ack relay.Ack
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, relay.Ack{ID: "w1", OK: true, Enabled: true}, ack)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
	ack = relay.Ack{}
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "invalid message format", ack.Error)

	require.NoError(t, conn.WriteJSON(relay.Message{ID: "w2", Action: relay.ActionStatus}))
	var st relay.Status
	require.NoError(t, conn.ReadJSON(&st))
	assert.True(t, st.Enabled)
	assert.Equal(t, "/watch", st.Path)
}

func TestShutdown(t *testing.T) {
	s, ts := newTestServer(t, toggler())
	called := make(chan struct{})
	s.SetOnShutdown(func() { close(called) })

	var out map[string]string
	postJSON(t, ts.URL+"/api/1/shutdown", ``, &out)
	assert.Equal(t, "shutting down", out["message"])
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("shutdown callback not called")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestStartSkipsBusyPorts(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	busyPort := busy.Addr().(*net.TCPAddr).Port
	free := freePort(t)

	cfg := DefaultConfig()
	cfg.Ports = []int{busyPort, free}
	s := New(cfg, toggler(), BuildInfo{}, zap.NewNop())
	require.NoError(t, s.Start())
	defer s.Shutdown(context.Background())
	assert.Equal(t, free, s.Port())

	var ping map[string]string
	getJSON(t, "http://127.0.0.1:"+strconv.Itoa(free)+"/api/1/ping", &ping)
	assert.Equal(t, "ok", ping["status"])
}

func TestStartAllPortsBusy(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := DefaultConfig()
	cfg.Ports = []int{busy.Addr().(*net.TCPAddr).Port}
	s := New(cfg, toggler(), BuildInfo{}, zap.NewNop())
	assert.ErrorIs(t, s.Start(), ErrNoPort)
}
