package cdp

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/chromedp/cdproto/inspector"
	cdppage "github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"go.uber.org/zap"

	"github.com/xander1421/yt-fs/internal/page"
)

// logPrefix marks console lines written by window.ytfsLog.
const logPrefix = "__YTFS_LOG__:"

// listen runs on chromedp's event goroutine and must not block.
func (d *Driver) listen(ev any) {
	switch ev := ev.(type) {
	case *cdpruntime.EventBindingCalled:
		if ev.Name != d.opts.Binding {
			return
		}
		pe, err := page.DecodeEvent(ev.Payload)
		if err != nil {
			d.log.Debug("bad bridge payload", zap.Error(err))
			return
		}
		d.emit(pe)

	case *cdpruntime.EventConsoleAPICalled:
		for _, arg := range ev.Args {
			if arg.Type != cdpruntime.TypeString || arg.Value == nil {
				continue
			}
			var msg string
			if err := json.Unmarshal([]byte(arg.Value), &msg); err != nil {
				continue
			}
			if pe, ok := parseConsole(msg); ok {
				d.emit(pe)
			}
		}

	case *cdppage.EventNavigatedWithinDocument:
		if !d.isMainFrame(string(ev.FrameID)) {
			return
		}
		if pe, ok := locationEvent(ev.URL); ok {
			d.emit(pe)
		}

	case *inspector.EventDetached:
		d.log.Info("inspector detached", zap.String("reason", string(ev.Reason)))
		d.detach()
	}
}

func (d *Driver) isMainFrame(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mainFrame == "" || string(d.mainFrame) == id
}

// parseConsole extracts a log line of the form __YTFS_LOG__:level:message.
func parseConsole(msg string) (page.Event, bool) {
	rest, ok := strings.CutPrefix(msg, logPrefix)
	if !ok {
		return page.Event{}, false
	}
	level, text, ok := strings.Cut(rest, ":")
	if !ok {
		return page.Event{}, false
	}
	if level == "" {
		level = "info"
	}
	return page.Event{Kind: page.EventConsole, Level: level, Message: text}, true
}

// locationEvent covers same-document navigations (history.pushState) that
// leave the DOM untouched and so never reach the bridge's observer.
func locationEvent(raw string) (page.Event, bool) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return page.Event{}, false
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return page.Event{Kind: page.EventLocation, Href: raw, Host: u.Host, Path: path}, true
}
