// Package tabfs keeps a YouTube tab's tab-fullscreen state consistent: the
// session flag, the overlay class on the root element and the control-bar
// widget, across in-app navigations, host page rebuilds and real
// fullscreen.
//
// All state is owned by a single goroutine, Controller.Run. Page events,
// debounced actions, retries and external requests are all delivered to
// that loop and handled one at a time.
package tabfs

import (
	"context"
	"errors"
	"time"

	"github.com/bep/debounce"
	"go.uber.org/zap"

	"github.com/xander1421/yt-fs/internal/adskip"
	"github.com/xander1421/yt-fs/internal/logging"
	"github.com/xander1421/yt-fs/internal/page"
	"github.com/xander1421/yt-fs/internal/relay"
)

// ErrStopped is returned by requests made after Run has returned.
var ErrStopped = errors.New("tabfs: controller stopped")

type Controller struct {
	page page.Page
	opts Options
	log  *zap.Logger

	session    *SessionState
	overlay    *Overlay
	widget     *Widget
	injector   *Injector
	nav        *NavigationWatcher
	fullscreen *FullscreenReconciler
	router     *ShortcutRouter
	skipper    *adskip.Skipper

	actions chan func(context.Context)
	done    chan struct{}
}

func New(p page.Page, opts Options) *Controller {
	opts = opts.withDefaults()
	log := opts.Logger

	c := &Controller{
		page:    p,
		opts:    opts,
		log:     log,
		actions: make(chan func(context.Context), 64),
		done:    make(chan struct{}),
	}

	c.session = NewSessionState(p, log.Named("session"))
	c.overlay = NewOverlay(p, c.session, log.Named("overlay"))
	c.widget = NewWidget(p, c.session, c.overlay, log.Named("widget"))
	c.fullscreen = &FullscreenReconciler{
		page:      p,
		hostClass: opts.Selectors.HostFullscreenClass,
		overlay:   c.overlay,
		widget:    c.widget,
		log:       log.Named("fullscreen"),
	}
	c.injector = &Injector{
		page:       p,
		widget:     c.widget,
		session:    c.session,
		fullscreen: c.fullscreen,
		container:  opts.Selectors.ControlsContainer,
		window:     opts.Timing.InjectDebounce,
		now:        opts.Now,
		log:        log.Named("injector"),
	}
	c.nav = &NavigationWatcher{
		page:         p,
		sel:          opts.Selectors,
		timing:       opts.Timing,
		session:      c.session,
		overlay:      c.overlay,
		widget:       c.widget,
		injector:     c.injector,
		fullscreen:   c.fullscreen,
		log:          log.Named("navigation"),
		post:         c.post,
		after:        c.after,
		navDebounce:  debounce.New(opts.Timing.NavigationDebounce),
		healDebounce: debounce.New(opts.Timing.HealDebounce),
	}
	c.router = &ShortcutRouter{
		sel:        opts.Selectors,
		nav:        c.nav,
		injector:   c.injector,
		widget:     c.widget,
		overlay:    c.overlay,
		fullscreen: c.fullscreen,
		log:        log.Named("shortcut"),
	}
	if opts.Player != nil {
		c.skipper = adskip.New(opts.Player, opts.AdSkip, log.Named("adskip"))
	}
	return c
}

// Run drives the controller until ctx is cancelled or the page detaches.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	c.start(ctx)

	poll := time.NewTicker(c.opts.Timing.PollInterval)
	defer poll.Stop()

	var adTick <-chan time.Time
	if c.skipper != nil {
		t := time.NewTicker(c.skipper.Interval())
		defer t.Stop()
		adTick = t.C
	}

	events := c.page.Events()
	for {
		select {
		case <-ctx.Done():
			c.stop(ctx)
			return ctx.Err()
		case ev, ok := <-events:
			if !ok || ev.Kind == page.EventDetached {
				c.log.Info("page detached")
				return page.ErrDetached
			}
			c.handle(ctx, ev)
		case fn := <-c.actions:
			fn(ctx)
		case <-poll.C:
			c.nav.Poll(ctx)
		case <-adTick:
			c.skipper.Tick(ctx)
		}
	}
}

func (c *Controller) start(ctx context.Context) {
	c.fullscreen.Refresh(ctx)
	c.nav.Poll(ctx)
}

func (c *Controller) stop(ctx context.Context) {
	if c.skipper == nil {
		return
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	c.skipper.Stop(stopCtx)
}

func (c *Controller) handle(ctx context.Context, ev page.Event) {
	switch ev.Kind {
	case page.EventLocation:
		c.nav.OnLocation(ctx, ev.Location())
	case page.EventNavigateFinish:
		c.nav.OnLocation(ctx, ev.Location())
		c.nav.CheckWidget(ctx)
	case page.EventMutation:
		c.nav.CheckWidget(ctx)
	case page.EventWidgetClick:
		c.router.OnWidgetClick(ctx)
	case page.EventShortcut:
		c.router.OnShortcut(ctx, ev.Location())
	case page.EventFullscreen:
		c.fullscreen.OnNative(ctx, ev.Fullscreen)
	case page.EventRootClass:
		c.fullscreen.OnHost(ctx, ev.Fullscreen)
	case page.EventConsole:
		c.console(ev)
	}
}

func (c *Controller) console(ev page.Event) {
	logging.Script(c.log.Named("page"), ev.Level, ev.Message)
}

// post queues fn on the loop. It drops fn once the loop has stopped, so
// late timers are harmless.
func (c *Controller) post(fn func(context.Context)) {
	select {
	case c.actions <- fn:
	case <-c.done:
	}
}

func (c *Controller) after(d time.Duration, fn func(context.Context)) {
	time.AfterFunc(d, func() { c.post(fn) })
}

// call runs fn on the loop and waits for its result. The result travels
// over a channel so a caller that gives up early shares nothing with the
// loop.
func call[T any](ctx context.Context, c *Controller, fn func(context.Context) T) (T, error) {
	var zero T
	result := make(chan T, 1)
	wrapped := func(ctx context.Context) { result <- fn(ctx) }
	select {
	case c.actions <- wrapped:
	case <-c.done:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case v := <-result:
		return v, nil
	case <-c.done:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// HandleMessage delivers a relayed message and returns its acknowledgement.
func (c *Controller) HandleMessage(ctx context.Context, msg relay.Message) (relay.Ack, error) {
	return call(ctx, c, func(ctx context.Context) relay.Ack {
		return c.router.OnMessage(ctx, msg)
	})
}

func (c *Controller) Status(ctx context.Context) (relay.Status, error) {
	return call(ctx, c, c.snapshot)
}

func (c *Controller) snapshot(ctx context.Context) relay.Status {
	loc := c.nav.Location()
	return relay.Status{
		Href:          loc.Href,
		Path:          loc.Path,
		Supported:     c.opts.Selectors.IsHost(loc.Host),
		Watch:         c.opts.Selectors.IsWatchPage(loc.Host, loc.Path),
		Enabled:       c.session.Get(ctx),
		Overlay:       c.overlay.IsEnabled(ctx),
		WidgetPresent: c.widget.Present(ctx),
		WidgetActive:  c.widget.Active(ctx),
		Injector:      c.injector.State().String(),
		Fullscreen:    c.fullscreen.State().String(),
		AdSkip:        c.skipper != nil,
	}
}
