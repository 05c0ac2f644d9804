package tabfs

import (
	"context"

	"go.uber.org/zap"

	"github.com/xander1421/yt-fs/internal/hostpage"
	"github.com/xander1421/yt-fs/internal/page"
	"github.com/xander1421/yt-fs/internal/relay"
)

// ShortcutRouter funnels every way of toggling (the widget, Alt+T and the
// relayed message) into the same sequence.
type ShortcutRouter struct {
	sel        hostpage.Selectors
	nav        *NavigationWatcher
	injector   *Injector
	widget     *Widget
	overlay    *Overlay
	fullscreen *FullscreenReconciler
	log        *zap.Logger
}

func (r *ShortcutRouter) OnWidgetClick(ctx context.Context) {
	if !r.widget.Present(ctx) {
		return
	}
	r.toggled(r.widget.Click(ctx), "widget")
}

// OnShortcut handles Alt+T. loc is where the key was pressed; a zero
// location means the last known one.
func (r *ShortcutRouter) OnShortcut(ctx context.Context, loc page.Location) {
	if loc.Host == "" && loc.Path == "" {
		loc = r.nav.Location()
	}
	if !r.sel.IsWatchPage(loc.Host, loc.Path) {
		r.log.Debug("shortcut ignored off watch page", zap.String("host", loc.Host), zap.String("path", loc.Path))
		return
	}
	r.toggle(ctx, "shortcut")
}

func (r *ShortcutRouter) OnMessage(ctx context.Context, msg relay.Message) relay.Ack {
	ack := relay.Ack{ID: msg.ID}
	if msg.Action != hostpage.ActionToggle {
		ack.Error = "unknown action"
		ack.Enabled = r.widget.session.Get(ctx)
		return ack
	}
	loc := r.nav.Location()
	if !r.sel.IsHost(loc.Host) {
		ack.Error = "tab is not on a supported site"
		return ack
	}
	if !r.sel.IsWatchPath(loc.Path) {
		ack.Error = "tab is not on a watch page"
		ack.Enabled = r.widget.session.Get(ctx)
		return ack
	}
	ack.Enabled = r.toggle(ctx, "message")
	ack.OK = true
	return ack
}

// toggle clicks the widget, injecting it first if needed. Without a widget
// the overlay is toggled directly so the key still works while the
// controls are missing.
func (r *ShortcutRouter) toggle(ctx context.Context, source string) bool {
	if !r.widget.Present(ctx) {
		r.injector.Inject(ctx)
	}
	var enabled bool
	if r.widget.Present(ctx) {
		enabled = r.widget.Click(ctx)
	} else {
		enabled = r.overlay.Toggle(ctx)
	}
	r.toggled(enabled, source)
	return enabled
}

func (r *ShortcutRouter) toggled(enabled bool, source string) {
	r.fullscreen.Forget()
	r.log.Info("tab fullscreen toggled", zap.Bool("enabled", enabled), zap.String("source", source))
}
