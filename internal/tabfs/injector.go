package tabfs

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xander1421/yt-fs/internal/page"
)

type InjectorState int

const (
	NotInjected InjectorState = iota
	Injected
)

func (s InjectorState) String() string {
	if s == Injected {
		return "injected"
	}
	return "not-injected"
}

// Injector puts the widget into the control bar and keeps track of when it
// last did so.
type Injector struct {
	page       page.Page
	widget     *Widget
	session    *SessionState
	fullscreen *FullscreenReconciler
	container  string
	window     time.Duration
	now        func() time.Time
	log        *zap.Logger

	state InjectorState
	last  time.Time
}

func (in *Injector) State() InjectorState { return in.state }

// Inject makes sure exactly one widget is in the control bar. It returns
// false when the container is not on the page yet.
func (in *Injector) Inject(ctx context.Context) bool {
	now := in.now()
	if in.state == Injected && now.Sub(in.last) < in.window && in.widget.Present(ctx) {
		return true
	}

	ready, err := in.page.Exists(ctx, in.container)
	if err != nil {
		in.log.Warn("look up controls container", zap.Error(err))
		return false
	}
	if !ready {
		in.log.Debug("controls container not ready", zap.String("selector", in.container))
		return false
	}

	if in.widget.count(ctx) == 1 {
		in.widget.Adopt()
		in.mark(now)
		return true
	}

	if err := in.widget.Create(ctx, in.container); err != nil {
		if !errors.Is(err, page.ErrNotFound) {
			in.log.Warn("create widget", zap.Error(err))
		}
		return false
	}
	in.log.Info("widget injected")

	if in.session.Get(ctx) {
		in.fullscreen.Show(ctx)
	}
	in.mark(now)
	return true
}

func (in *Injector) mark(now time.Time) {
	in.state = Injected
	in.last = now
}

// Reset removes the widget and forgets the last injection.
func (in *Injector) Reset(ctx context.Context) {
	in.widget.Destroy(ctx)
	in.state = NotInjected
	in.last = time.Time{}
}
