package tabfs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xander1421/yt-fs/internal/hostpage"
	"github.com/xander1421/yt-fs/internal/page"
)

// NavigationWatcher follows the tab through in-app navigations. YouTube
// swaps content without reloading, so the widget has to be re-injected on
// every watch page and the overlay dropped when leaving one.
type NavigationWatcher struct {
	page       page.Page
	sel        hostpage.Selectors
	timing     Timing
	session    *SessionState
	overlay    *Overlay
	widget     *Widget
	injector   *Injector
	fullscreen *FullscreenReconciler
	log        *zap.Logger

	// post runs fn on the controller loop; after runs it there after d.
	post         func(fn func(context.Context))
	after        func(d time.Duration, fn func(context.Context))
	navDebounce  func(func())
	healDebounce func(func())

	loc page.Location
	// gen identifies the current init sequence. Scheduled retries from an
	// older sequence see a different value and stop.
	gen      int
	attempts int
	waiting  bool
	pending  bool
	gaveUp   bool
	// healing is set while a heal is scheduled, so repeated checks do not
	// keep pushing the debounced heal back.
	healing bool
}

func (n *NavigationWatcher) Location() page.Location { return n.loc }

func (n *NavigationWatcher) onWatch() bool { return n.sel.IsWatchPage(n.loc.Host, n.loc.Path) }

// Poll is the fallback for URL changes nobody announced.
func (n *NavigationWatcher) Poll(ctx context.Context) {
	loc, err := n.page.Location(ctx)
	if err != nil {
		n.log.Debug("poll location", zap.Error(err))
		return
	}
	n.OnLocation(ctx, loc)
	n.CheckWidget(ctx)
}

func (n *NavigationWatcher) OnLocation(ctx context.Context, loc page.Location) {
	if loc.Href == "" || loc.Href == n.loc.Href {
		return
	}
	first := n.loc.Href == ""
	n.log.Debug("location changed", zap.String("from", n.loc.Href), zap.String("to", loc.Href))
	n.loc = loc
	n.gaveUp = false

	if n.onWatch() {
		n.pending = true
		n.navDebounce(func() { n.post(n.reinit) })
		return
	}
	// Attaching to a tab that is not on a watch page is not a navigation
	// away from one; the stored flag is kept for the next watch page.
	if first {
		return
	}
	n.leaveWatch(ctx)
}

// leaveWatch turns tab-fullscreen off and takes the widget away. The
// overlay must not linger on pages without a player.
func (n *NavigationWatcher) leaveWatch(ctx context.Context) {
	n.gen++
	n.waiting = false
	n.pending = false

	if n.session.Get(ctx) || n.overlay.IsEnabled(ctx) {
		n.log.Info("left watch page, disabling tab fullscreen")
		n.overlay.Disable(ctx)
		n.session.Set(ctx, false)
		n.widget.SetActiveVisual(ctx, false)
	}
	n.fullscreen.Forget()
	n.injector.Reset(ctx)
}

func (n *NavigationWatcher) reinit(ctx context.Context) {
	n.pending = false
	if !n.onWatch() {
		return
	}
	n.fullscreen.Refresh(ctx)
	n.injector.Reset(ctx)
	n.beginInit(ctx)
}

func (n *NavigationWatcher) beginInit(ctx context.Context) {
	n.gen++
	n.attempts = 0
	n.waiting = true
	n.tryInit(ctx, n.gen)
}

// tryInit is one step of the bounded wait for the player. Each retry is a
// separate loop event so the loop keeps serving other events meanwhile.
func (n *NavigationWatcher) tryInit(ctx context.Context, gen int) {
	if gen != n.gen {
		return
	}
	if !n.onWatch() {
		n.waiting = false
		return
	}

	if n.playerReady(ctx) && n.injector.Inject(ctx) {
		n.waiting = false
		n.reapply(ctx)
		return
	}

	n.attempts++
	if n.attempts >= n.timing.ReadyAttempts {
		n.waiting = false
		n.gaveUp = true
		n.log.Warn("player controls never appeared, giving up until next navigation",
			zap.Int("attempts", n.attempts), zap.String("href", n.loc.Href))
		return
	}
	n.after(n.timing.ReadyInterval, func(ctx context.Context) { n.tryInit(ctx, gen) })
}

func (n *NavigationWatcher) playerReady(ctx context.Context) bool {
	ok, err := n.page.Exists(ctx, n.sel.Player)
	if err != nil {
		n.log.Debug("look up player", zap.Error(err))
		return false
	}
	return ok
}

func (n *NavigationWatcher) reapply(ctx context.Context) {
	if n.session.Get(ctx) {
		n.fullscreen.Show(ctx)
	}
}

// CheckWidget schedules a re-injection when the host page dropped the
// widget on its own.
func (n *NavigationWatcher) CheckWidget(ctx context.Context) {
	if !n.onWatch() || n.waiting || n.pending || n.gaveUp {
		return
	}
	if n.healing || n.widget.Present(ctx) {
		return
	}
	n.healing = true
	n.healDebounce(func() { n.post(n.heal) })
}

func (n *NavigationWatcher) heal(ctx context.Context) {
	n.healing = false
	if !n.onWatch() || n.waiting || n.pending || n.gaveUp || n.widget.Present(ctx) {
		return
	}
	n.log.Info("widget missing, re-injecting", zap.String("href", n.loc.Href))
	n.fullscreen.Refresh(ctx)
	n.injector.Reset(ctx)
	n.beginInit(ctx)
}
