package tabfs

import (
	"context"

	"go.uber.org/zap"

	"github.com/xander1421/yt-fs/internal/hostpage"
	"github.com/xander1421/yt-fs/internal/page"
)

// Overlay is the root class that the stylesheet keys off. Setting it is what
// actually puts the player into tab-fullscreen.
type Overlay struct {
	page    page.Page
	session *SessionState
	log     *zap.Logger
}

func NewOverlay(p page.Page, session *SessionState, log *zap.Logger) *Overlay {
	return &Overlay{page: p, session: session, log: log}
}

func (o *Overlay) Enable(ctx context.Context)  { o.set(ctx, true) }
func (o *Overlay) Disable(ctx context.Context) { o.set(ctx, false) }

func (o *Overlay) set(ctx context.Context, on bool) {
	if err := o.page.SetRootClass(ctx, hostpage.OverlayClass, on); err != nil {
		o.log.Warn("set overlay class", zap.Bool("on", on), zap.Error(err))
	}
}

// IsEnabled reports whether the class is on the root element. A page that
// cannot be read counts as not enabled.
func (o *Overlay) IsEnabled(ctx context.Context) bool {
	on, err := o.page.HasRootClass(ctx, hostpage.OverlayClass)
	if err != nil {
		o.log.Warn("read overlay class", zap.Error(err))
		return false
	}
	return on
}

// Toggle flips the session flag, applies the result to the mark and
// returns it. The mark may be hidden for fullscreen, so the flag decides.
func (o *Overlay) Toggle(ctx context.Context) bool {
	next := !o.session.Get(ctx)
	o.set(ctx, next)
	o.session.Set(ctx, next)
	return next
}
