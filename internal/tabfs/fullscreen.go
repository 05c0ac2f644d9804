package tabfs

import (
	"context"

	"go.uber.org/zap"

	"github.com/xander1421/yt-fs/internal/page"
)

type FullscreenState int

const (
	Idle FullscreenState = iota
	SuppressedForFullscreen
)

func (s FullscreenState) String() string {
	if s == SuppressedForFullscreen {
		return "suppressed"
	}
	return "idle"
}

// FullscreenReconciler hides the overlay while the player is in real
// fullscreen, native or the host's own, and puts it back afterwards. It
// never writes the session flag.
type FullscreenReconciler struct {
	page      page.Page
	hostClass string
	overlay   *Overlay
	widget    *Widget
	log       *zap.Logger

	native  bool
	host    bool
	state   FullscreenState
	restore bool
}

func (r *FullscreenReconciler) State() FullscreenState { return r.state }

func (r *FullscreenReconciler) Suppressed() bool { return r.state == SuppressedForFullscreen }

func (r *FullscreenReconciler) OnNative(ctx context.Context, active bool) {
	if r.native == active {
		return
	}
	r.native = active
	r.reconcile(ctx)
}

func (r *FullscreenReconciler) OnHost(ctx context.Context, active bool) {
	if r.host == active {
		return
	}
	r.host = active
	r.reconcile(ctx)
}

// Refresh reads both fullscreen signals from the page. A new document starts
// outside browser fullscreen without ever firing a change event, so this runs
// whenever one may have loaded.
func (r *FullscreenReconciler) Refresh(ctx context.Context) {
	native, err := r.page.FullscreenActive(ctx)
	if err != nil {
		r.log.Debug("read fullscreen state", zap.Error(err))
		native = r.native
	}
	host, err := r.page.HasRootClass(ctx, r.hostClass)
	if err != nil {
		r.log.Debug("read host fullscreen class", zap.Error(err))
		host = r.host
	}
	r.native, r.host = native, host
	r.reconcile(ctx)
}

func (r *FullscreenReconciler) reconcile(ctx context.Context) {
	active := r.native || r.host
	switch {
	case active && r.state == Idle:
		r.restore = r.overlay.IsEnabled(ctx)
		if r.restore {
			r.overlay.Disable(ctx)
			r.widget.SetActiveVisual(ctx, false)
		}
		r.state = SuppressedForFullscreen
		r.log.Debug("fullscreen entered", zap.Bool("native", r.native), zap.Bool("host", r.host), zap.Bool("restore", r.restore))
	case !active && r.state == SuppressedForFullscreen:
		if r.restore {
			r.overlay.Enable(ctx)
			r.widget.SetActiveVisual(ctx, true)
		}
		r.state = Idle
		r.restore = false
		r.log.Debug("fullscreen left")
	}
}

// Show turns the overlay on, or, while suppressed, arranges for it to come
// on when fullscreen ends.
func (r *FullscreenReconciler) Show(ctx context.Context) {
	if r.state == SuppressedForFullscreen {
		r.restore = true
		return
	}
	r.overlay.Enable(ctx)
	r.widget.SetActiveVisual(ctx, true)
}

// Forget drops the captured overlay state. Used when the user or a
// navigation decides the overlay state while fullscreen is active, so that
// leaving fullscreen does not override that decision.
func (r *FullscreenReconciler) Forget() {
	r.restore = false
}
