package tabfs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xander1421/yt-fs/internal/hostpage"
	"github.com/xander1421/yt-fs/internal/page"
)

// Widget is the "TF" button in the player's control bar. The page holds the
// node; Widget only tracks whether we believe it is live.
type Widget struct {
	page    page.Page
	session *SessionState
	overlay *Overlay
	log     *zap.Logger
	live    bool
}

func NewWidget(p page.Page, session *SessionState, overlay *Overlay, log *zap.Logger) *Widget {
	return &Widget{page: p, session: session, overlay: overlay, log: log}
}

func widgetSpec() page.WidgetSpec {
	return page.WidgetSpec{
		ID:        hostpage.WidgetID,
		Classes:   hostpage.WidgetClasses,
		Text:      hostpage.WidgetText,
		Title:     hostpage.WidgetTitle,
		AriaLabel: hostpage.WidgetAriaLabel,
	}
}

// Create removes any node carrying the widget id and appends a fresh one to
// container. It returns page.ErrNotFound if the container is gone.
func (w *Widget) Create(ctx context.Context, container string) error {
	if _, err := w.page.Remove(ctx, hostpage.WidgetSelector()); err != nil {
		return fmt.Errorf("remove stale widget: %w", err)
	}
	w.live = false
	if err := w.page.AppendWidget(ctx, container, widgetSpec()); err != nil {
		return err
	}
	w.live = true
	return nil
}

// Adopt takes ownership of a widget node already on the page.
func (w *Widget) Adopt() { w.live = true }

func (w *Widget) Destroy(ctx context.Context) {
	w.live = false
	if _, err := w.page.Remove(ctx, hostpage.WidgetSelector()); err != nil {
		w.log.Warn("remove widget", zap.Error(err))
	}
}

// Present reports whether exactly one widget node is on the page.
func (w *Widget) Present(ctx context.Context) bool {
	return w.count(ctx) == 1
}

func (w *Widget) count(ctx context.Context) int {
	n, err := w.page.Count(ctx, hostpage.WidgetSelector())
	if err != nil {
		w.log.Warn("count widget nodes", zap.Error(err))
		return 0
	}
	return n
}

// Active reports the widget's visual state.
func (w *Widget) Active(ctx context.Context) bool {
	ok, err := w.page.Exists(ctx, hostpage.WidgetSelector()+"."+hostpage.WidgetActiveClass)
	if err != nil {
		return false
	}
	return ok
}

// SetActiveVisual does nothing without a live widget.
func (w *Widget) SetActiveVisual(ctx context.Context, active bool) {
	if !w.live {
		return
	}
	n, err := w.page.SetClass(ctx, hostpage.WidgetSelector(), hostpage.WidgetActiveClass, active)
	if err != nil {
		w.log.Warn("set widget visual", zap.Bool("active", active), zap.Error(err))
		return
	}
	if n == 0 {
		w.live = false
	}
}

// Click is the widget's click handler: the flag is the source of truth,
// the overlay and the button follow it.
func (w *Widget) Click(ctx context.Context) bool {
	next := !w.session.Get(ctx)
	w.session.Set(ctx, next)
	if next {
		w.overlay.Enable(ctx)
	} else {
		w.overlay.Disable(ctx)
	}
	w.SetActiveVisual(ctx, next)
	return next
}
