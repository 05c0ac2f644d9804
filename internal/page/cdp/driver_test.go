package cdp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/inspector"
	cdppage "github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xander1421/yt-fs/internal/page"
)

// offline returns a driver that is not connected to any tab, for exercising
// event handling.
func offline(t *testing.T) *Driver {
	t.Helper()
	opts := Options{}.withDefaults()
	return &Driver{
		ctx:       context.Background(),
		opts:      opts,
		log:       zap.NewNop(),
		events:    make(chan page.Event, 16),
		mainFrame: cdp.FrameID("main"),
	}
}

func next(t *testing.T, d *Driver) page.Event {
	t.Helper()
	select {
	case ev := <-d.events:
		return ev
	default:
		t.Fatal("no event")
		return page.Event{}
	}
}

func TestBridgeScript(t *testing.T) {
	opts := Options{CSS: "html { color: red }"}.withDefaults()
	script, err := bridgeScript(opts.bridge())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(script, "(function (cfg)"))
	assert.True(t, strings.HasSuffix(script, ");"))

	start := strings.LastIndex(script, ")({")
	require.Positive(t, start)
	var cfg bridgeConfig
	require.NoError(t, json.Unmarshal([]byte(script[start+2:len(script)-2]), &cfg))
	assert.Equal(t, defaultBinding, cfg.Binding)
	assert.Equal(t, "yt-tabfs-button", cfg.WidgetID)
	assert.Equal(t, ".ytp-chrome-controls .ytp-left-controls", cfg.Container)
	assert.Equal(t, "ytp-fullscreen", cfg.HostFullscreenClass)
	assert.Equal(t, "yt-navigate-finish", cfg.NavigateEvent)
	assert.Equal(t, "html { color: red }", cfg.CSS)
	assert.EqualValues(t, 50, cfg.SettleMs)
}

func TestBridgeSourceMentionsEveryEvent(t *testing.T) {
	for _, kind := range []page.EventKind{
		page.EventMutation, page.EventLocation, page.EventNavigateFinish,
		page.EventWidgetClick, page.EventShortcut, page.EventFullscreen, page.EventRootClass,
	} {
		assert.Contains(t, bridgeSource, "'"+string(kind)+"'", kind)
	}
	assert.Contains(t, bridgeSource, logPrefix)
}

func TestBridgeReportsFullscreenOnInstall(t *testing.T) {
	initial := strings.LastIndex(bridgeSource, "send(where('location'));")
	require.NotEqual(t, -1, initial)
	tail := bridgeSource[initial:]
	assert.Contains(t, tail, "send({ type: 'fullscreen', fullscreen: !!document.fullscreenElement });")
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"#a"`, quote("#a"))
	assert.Equal(t, `"a\"b\u003c/script\u003e"`, quote(`a"b</script>`))
}

func TestParseConsole(t *testing.T) {
	tests := []struct {
		name  string
		msg   string
		ok    bool
		level string
		text  string
	}{
		{"info", "__YTFS_LOG__:info:widget injected", true, "info", "widget injected"},
		{"message with colons", "__YTFS_LOG__:warn:a:b:c", true, "warn", "a:b:c"},
		{"empty level", "__YTFS_LOG__::hello", true, "info", "hello"},
		{"no level separator", "__YTFS_LOG__:oops", false, "", ""},
		{"other console output", "[YT] something", false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := parseConsole(tt.msg)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, page.EventConsole, ev.Kind)
			assert.Equal(t, tt.level, ev.Level)
			assert.Equal(t, tt.text, ev.Message)
		})
	}
}

func TestLocationEvent(t *testing.T) {
	ev, ok := locationEvent("https://www.youtube.com/watch?v=abc")
	require.True(t, ok)
	assert.Equal(t, page.EventLocation, ev.Kind)
	assert.Equal(t, "www.youtube.com", ev.Host)
	assert.Equal(t, "/watch", ev.Path)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", ev.Href)

	ev, ok = locationEvent("https://www.youtube.com")
	require.True(t, ok)
	assert.Equal(t, "/", ev.Path)

	_, ok = locationEvent("about:blank")
	assert.False(t, ok)
}

func TestListenBinding(t *testing.T) {
	d := offline(t)

	d.listen(&cdpruntime.EventBindingCalled{Name: defaultBinding, Payload: `{"type":"mutation","widget":true,"container":true}`})
	ev := next(t, d)
	assert.Equal(t, page.EventMutation, ev.Kind)
	assert.True(t, ev.WidgetPresent)
	assert.True(t, ev.ContainerPresent)

	d.listen(&cdpruntime.EventBindingCalled{Name: "somethingElse", Payload: `{"type":"widget-click"}`})
	d.listen(&cdpruntime.EventBindingCalled{Name: defaultBinding, Payload: `{"type":"bogus"}`})
	d.listen(&cdpruntime.EventBindingCalled{Name: defaultBinding, Payload: `not json`})
	assert.Empty(t, d.events)
}

func TestListenConsole(t *testing.T) {
	d := offline(t)
	d.listen(&cdpruntime.EventConsoleAPICalled{Args: []*cdpruntime.RemoteObject{
		{Type: cdpruntime.TypeNumber, Value: []byte(`1`)},
		{Type: cdpruntime.TypeString, Value: []byte(`"plain log"`)},
		{Type: cdpruntime.TypeString, Value: []byte(`"__YTFS_LOG__:error:boom"`)},
	}})
	ev := next(t, d)
	assert.Equal(t, page.EventConsole, ev.Kind)
	assert.Equal(t, "error", ev.Level)
	assert.Equal(t, "boom", ev.Message)
	assert.Empty(t, d.events)
}

func TestListenSameDocumentNavigation(t *testing.T) {
	d := offline(t)
	d.listen(&cdppage.EventNavigatedWithinDocument{FrameID: "child", URL: "https://www.youtube.com/watch?v=x"})
	assert.Empty(t, d.events)

	d.listen(&cdppage.EventNavigatedWithinDocument{FrameID: "main", URL: "https://www.youtube.com/watch?v=x"})
	ev := next(t, d)
	assert.Equal(t, page.EventLocation, ev.Kind)
	assert.Equal(t, "/watch", ev.Path)
}

func TestDetach(t *testing.T) {
	d := offline(t)
	d.listen(&inspector.EventDetached{Reason: "target_closed"})

	ev, ok := <-d.events
	require.True(t, ok)
	assert.Equal(t, page.EventDetached, ev.Kind)
	_, ok = <-d.events
	assert.False(t, ok)

	// Late events and a second detach are ignored.
	d.emit(page.Event{Kind: page.EventWidgetClick})
	d.detach()
}

func TestEmitDropsWhenFull(t *testing.T) {
	d := offline(t)
	for range cap(d.events) + 5 {
		d.emit(page.Event{Kind: page.EventMutation})
	}
	assert.Len(t, d.events, cap(d.events))
}

func TestEvalAfterDetach(t *testing.T) {
	d := offline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.ctx = ctx

	_, err := d.Location(context.Background())
	assert.ErrorIs(t, err, page.ErrDetached)
	assert.ErrorIs(t, d.SetRootClass(context.Background(), "x", true), page.ErrDetached)
}

func TestStorageResult(t *testing.T) {
	assert.NoError(t, storageResult{OK: true}.err())
	assert.EqualError(t, storageResult{Error: "SecurityError"}.err(), "session storage: SecurityError")
}

func TestStylesheetDefault(t *testing.T) {
	s := NewStylesheet("")
	css, changed, err := s.Load()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, DefaultCSS(), css)
	assert.Contains(t, css, "yt-tabfs-enabled")
}

func TestStylesheetReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.css")
	require.NoError(t, os.WriteFile(path, []byte("a{}"), 0o644))

	s := NewStylesheet(path)
	css, changed, err := s.Load()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "a{}", css)

	_, changed, err = s.Load()
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, os.WriteFile(path, []byte("b{}"), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	css, changed, err = s.Load()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "b{}", css)
}

func TestStylesheetWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.css")
	require.NoError(t, os.WriteFile(path, []byte("a{}"), 0o644))
	s := NewStylesheet(path)
	_, _, err := s.Load()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	applied := make(chan string, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Watch(ctx, 5*time.Millisecond, func(_ context.Context, css string) error {
			applied <- css
			return nil
		}, nil)
	}()

	require.NoError(t, os.WriteFile(path, []byte("c{}"), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	select {
	case css := <-applied:
		assert.Equal(t, "c{}", css)
	case <-time.After(2 * time.Second):
		t.Fatal("stylesheet change not applied")
	}
	cancel()
	<-done
}
