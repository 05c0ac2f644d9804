package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const targetList = `[
  {"id": "sw", "type": "service_worker", "url": "https://www.youtube.com/sw.js"},
  {"id": "A1", "type": "page", "title": "Inbox", "url": "https://mail.example.com/", "webSocketDebuggerUrl": "ws://x/devtools/page/A1"},
  {"id": "B2", "type": "page", "title": "Video", "url": "https://www.youtube.com/watch?v=abc", "webSocketDebuggerUrl": "ws://x/devtools/page/B2"}
]`

func devtools(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(targetList))
	})
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Browser": "Chrome/140.0", "webSocketDebuggerUrl": "ws://127.0.0.1:9222/devtools/browser/xyz"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestListTargets(t *testing.T) {
	srv := devtools(t)
	targets, err := ListTargets(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "A1", targets[0].ID)
	assert.Equal(t, "B2", targets[1].ID)
}

func TestFindTarget(t *testing.T) {
	srv := devtools(t)

	tgt, err := FindTarget(context.Background(), srv.Client(), srv.URL, "youtube.com")
	require.NoError(t, err)
	assert.Equal(t, "B2", tgt.ID)
	assert.Equal(t, "Video", tgt.Title)

	_, err = FindTarget(context.Background(), srv.Client(), srv.URL, "vimeo.com")
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestFindTargetServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := FindTarget(context.Background(), srv.Client(), srv.URL, "youtube.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestBrowserWebSocketURL(t *testing.T) {
	srv := devtools(t)

	ws, err := BrowserWebSocketURL(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/xyz", ws)

	ws, err = BrowserWebSocketURL(context.Background(), srv.Client(), "ws://host/devtools/browser/1")
	require.NoError(t, err)
	assert.Equal(t, "ws://host/devtools/browser/1", ws)
}

func TestEndpoint(t *testing.T) {
	ep, err := endpoint("ws://127.0.0.1:9222/devtools/browser/x?y=1", "/json/list")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9222/json/list", ep)

	ep, err = endpoint("https://remote.example/", "/json/version")
	require.NoError(t, err)
	assert.Equal(t, "https://remote.example/json/version", ep)
}

// fakeTab answers Runtime.evaluate the way a page target does, sending an
// unrelated event first.
func fakeTab(t *testing.T, reply func(expr string) map[string]any) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var cmd struct {
			ID     int64  `json:"id"`
			Method string `json:"method"`
			Params struct {
				Expression string `json:"expression"`
			} `json:"params"`
		}
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"method": "Runtime.consoleAPICalled", "params": map[string]any{}})
		msg := reply(cmd.Params.Expression)
		msg["id"] = cmd.ID
		_ = conn.WriteJSON(msg)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestEvaluate(t *testing.T) {
	ws := fakeTab(t, func(expr string) map[string]any {
		assert.Equal(t, "document.readyState", expr)
		return map[string]any{"result": map[string]any{"result": map[string]any{"type": "string", "value": "complete"}}}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	v, err := Evaluate(ctx, ws, "document.readyState")
	require.NoError(t, err)
	assert.Equal(t, "complete", v)
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name  string
		reply map[string]any
		want  string
	}{
		{"protocol error", map[string]any{"error": map[string]any{"message": "No target"}}, "CDP error: No target"},
		{"exception", map[string]any{"result": map[string]any{"exceptionDetails": map[string]any{"text": "Uncaught"}}}, "CDP exception: Uncaught"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := fakeTab(t, func(string) map[string]any { return tt.reply })
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, err := Evaluate(ctx, ws, "1")
			assert.EqualError(t, err, tt.want)
		})
	}
}

func TestAttachProbeFailure(t *testing.T) {
	srv := devtools(t)
	cfg := DefaultConfig()
	cfg.Mode = ModeAttach
	cfg.RemoteURL = srv.URL
	cfg.ReadyTimeout = 200 * time.Millisecond

	// The listed debugger URL points nowhere.
	_, err := attach(context.Background(), cfg, srv.Client(), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probe tab")
}

func TestModeValid(t *testing.T) {
	assert.True(t, ModeLaunch.Valid())
	assert.True(t, ModeAttach.Valid())
	assert.True(t, ModeKernel.Valid())
	assert.False(t, Mode("firefox").Valid())
}

func TestKernelNeedsBrowserAndKey(t *testing.T) {
	t.Setenv(kernelAPIKeyEnv, "")
	cfg := DefaultConfig()
	cfg.Mode = ModeKernel

	_, err := Open(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "kernel_browser_id")

	cfg.KernelBrowserID = "b-123"
	_, err = Open(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "API key")
}
