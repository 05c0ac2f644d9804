// Package cdp drives a live Chromium tab over the DevTools protocol. A small
// bridge script is installed on every document; it reports DOM and
// navigation changes through a runtime binding, and the driver evaluates
// short snippets for everything the controller asks of the page.
package cdp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdppage "github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xander1421/yt-fs/internal/hostpage"
	"github.com/xander1421/yt-fs/internal/page"
)

const (
	defaultBinding = "__ytfsEmit"
	styleID        = "yt-tabfs-style"
)

type Options struct {
	// Binding is the name of the runtime binding the bridge calls.
	Binding             string
	ContainerSelector   string
	HostFullscreenClass string
	NavigateEvent       string
	// CSS is the overlay stylesheet. Empty leaves styling to the user.
	CSS string
	// Settle is how long the bridge batches DOM mutations before checking
	// the widget and its container.
	Settle time.Duration
	// CallTimeout bounds every evaluation.
	CallTimeout time.Duration
	Logger      *zap.Logger
}

func (o Options) withDefaults() Options {
	sel := hostpage.DefaultSelectors()
	if o.Binding == "" {
		o.Binding = defaultBinding
	}
	if o.ContainerSelector == "" {
		o.ContainerSelector = sel.ControlsContainer
	}
	if o.HostFullscreenClass == "" {
		o.HostFullscreenClass = sel.HostFullscreenClass
	}
	if o.NavigateEvent == "" {
		o.NavigateEvent = hostpage.NavigateFinishEvent
	}
	if o.Settle <= 0 {
		o.Settle = 50 * time.Millisecond
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o Options) bridge() bridgeConfig {
	return bridgeConfig{
		Binding:             o.Binding,
		WidgetID:            hostpage.WidgetID,
		Container:           o.ContainerSelector,
		HostFullscreenClass: o.HostFullscreenClass,
		NavigateEvent:       o.NavigateEvent,
		StyleID:             styleID,
		CSS:                 o.CSS,
		SettleMs:            o.Settle.Milliseconds(),
	}
}

// Driver is a page.Page backed by a chromedp tab context.
type Driver struct {
	ctx    context.Context
	opts   Options
	log    *zap.Logger
	events chan page.Event

	mu        sync.Mutex
	closed    bool
	mainFrame cdp.FrameID
	scriptID  cdppage.ScriptIdentifier
}

var _ page.Page = (*Driver)(nil)

// New attaches to the tab behind tabCtx, which must come from
// chromedp.NewContext. The bridge is installed for future documents and
// evaluated in the current one. The tab is released when tabCtx is done.
func New(tabCtx context.Context, opts Options) (*Driver, error) {
	opts = opts.withDefaults()
	d := &Driver{
		ctx:    tabCtx,
		opts:   opts,
		log:    opts.Logger.Named("cdp"),
		events: make(chan page.Event, 256),
	}

	chromedp.ListenTarget(tabCtx, d.listen)

	script, err := bridgeScript(opts.bridge())
	if err != nil {
		return nil, err
	}

	err = chromedp.Run(tabCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := cdppage.GetFrameTree().Do(ctx)
			if err != nil {
				return fmt.Errorf("get frame tree: %w", err)
			}
			d.mu.Lock()
			d.mainFrame = tree.Frame.ID
			d.mu.Unlock()
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := cdpruntime.AddBinding(opts.Binding).Do(ctx); err != nil {
				return fmt.Errorf("add binding: %w", err)
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			id, err := cdppage.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			if err != nil {
				return fmt.Errorf("add bridge script: %w", err)
			}
			d.mu.Lock()
			d.scriptID = id
			d.mu.Unlock()
			d.log.Debug("bridge installed", zap.String("script_id", string(id)))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	// The current document predates the script registration.
	var ignored bool
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(script+"true", &ignored)); err != nil {
		d.log.Warn("bridge not installed in current document", zap.Error(err))
	}

	go d.watchForExit()
	return d, nil
}

func (d *Driver) Events() <-chan page.Event { return d.events }

func (d *Driver) watchForExit() {
	<-d.ctx.Done()
	d.log.Debug("tab context done")
	d.detach()
}

func (d *Driver) detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.events <- page.Event{Kind: page.EventDetached}:
	default:
	}
	d.closed = true
	close(d.events)
}

func (d *Driver) emit(ev page.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.events <- ev:
	default:
		d.log.Warn("page event dropped", zap.String("type", string(ev.Kind)))
	}
}

// eval runs expr in the tab and decodes its value into res. Cancellation of
// ctx aborts the call; the tab itself stays open.
func (d *Driver) eval(ctx context.Context, expr string, res any) error {
	if d.ctx.Err() != nil {
		return page.ErrDetached
	}
	runCtx, cancel := context.WithTimeout(d.ctx, d.opts.CallTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, chromedp.Evaluate(expr, res))
	switch {
	case err == nil:
		return nil
	case d.ctx.Err() != nil:
		return page.ErrDetached
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return err
	}
}

func (d *Driver) Location(ctx context.Context) (page.Location, error) {
	var loc page.Location
	err := d.eval(ctx, `({href: location.href, host: location.host, path: location.pathname})`, &loc)
	return loc, err
}

func (d *Driver) Count(ctx context.Context, selector string) (int, error) {
	var n int
	err := d.eval(ctx, fmt.Sprintf(`document.querySelectorAll(%s).length`, quote(selector)), &n)
	return n, err
}

func (d *Driver) Exists(ctx context.Context, selector string) (bool, error) {
	var ok bool
	err := d.eval(ctx, fmt.Sprintf(`document.querySelector(%s) !== null`, quote(selector)), &ok)
	return ok, err
}

func (d *Driver) HasRootClass(ctx context.Context, class string) (bool, error) {
	var ok bool
	err := d.eval(ctx, fmt.Sprintf(`document.documentElement.classList.contains(%s)`, quote(class)), &ok)
	return ok, err
}

func (d *Driver) SetRootClass(ctx context.Context, class string, on bool) error {
	var ok bool
	return d.eval(ctx, fmt.Sprintf(`document.documentElement.classList.toggle(%s, %t), true`, quote(class), on), &ok)
}

func (d *Driver) SetClass(ctx context.Context, selector, class string, on bool) (int, error) {
	expr := fmt.Sprintf(`(() => {
  const nodes = document.querySelectorAll(%s);
  nodes.forEach((n) => n.classList.toggle(%s, %t));
  return nodes.length;
})()`, quote(selector), quote(class), on)
	var n int
	err := d.eval(ctx, expr, &n)
	return n, err
}

func (d *Driver) AppendWidget(ctx context.Context, container string, spec page.WidgetSpec) error {
	expr := fmt.Sprintf(`(() => {
  const parent = document.querySelector(%s);
  if (!parent) return false;
  const b = document.createElement('button');
  b.id = %s;
  b.className = %s;
  b.textContent = %s;
  b.title = %s;
  b.setAttribute('aria-label', %s);
  b.type = 'button';
  parent.appendChild(b);
  return true;
})()`, quote(container), quote(spec.ID), quote(spec.Classes), quote(spec.Text), quote(spec.Title), quote(spec.AriaLabel))
	var ok bool
	if err := d.eval(ctx, expr, &ok); err != nil {
		return err
	}
	if !ok {
		return page.ErrNotFound
	}
	return nil
}

func (d *Driver) Remove(ctx context.Context, selector string) (int, error) {
	expr := fmt.Sprintf(`(() => {
  const nodes = document.querySelectorAll(%s);
  nodes.forEach((n) => n.remove());
  return nodes.length;
})()`, quote(selector))
	var n int
	err := d.eval(ctx, expr, &n)
	return n, err
}

func (d *Driver) FullscreenActive(ctx context.Context) (bool, error) {
	var ok bool
	err := d.eval(ctx, `document.fullscreenElement !== null && document.fullscreenElement !== undefined`, &ok)
	return ok, err
}

// storageResult is what the storage snippets return. sessionStorage can
// throw (disabled cookies, sandboxed frames), so errors come back as data.
type storageResult struct {
	OK      bool   `json:"ok"`
	Present bool   `json:"present"`
	Value   string `json:"value"`
	Error   string `json:"error"`
}

func (r storageResult) err() error {
	if r.OK {
		return nil
	}
	return fmt.Errorf("session storage: %s", r.Error)
}

func (d *Driver) storage(ctx context.Context, body string) (storageResult, error) {
	expr := fmt.Sprintf(`(() => {
  try {
    %s
  } catch (e) {
    return {ok: false, error: String(e)};
  }
})()`, body)
	var res storageResult
	if err := d.eval(ctx, expr, &res); err != nil {
		return storageResult{}, err
	}
	return res, res.err()
}

func (d *Driver) StorageGet(ctx context.Context, key string) (string, bool, error) {
	res, err := d.storage(ctx, fmt.Sprintf(
		`const v = window.sessionStorage.getItem(%s); return {ok: true, present: v !== null, value: v || ''};`, quote(key)))
	if err != nil {
		return "", false, err
	}
	return res.Value, res.Present, nil
}

func (d *Driver) StorageSet(ctx context.Context, key, value string) error {
	_, err := d.storage(ctx, fmt.Sprintf(
		`window.sessionStorage.setItem(%s, %s); return {ok: true};`, quote(key), quote(value)))
	return err
}

func (d *Driver) StorageRemove(ctx context.Context, key string) error {
	_, err := d.storage(ctx, fmt.Sprintf(
		`window.sessionStorage.removeItem(%s); return {ok: true};`, quote(key)))
	return err
}

// SetCSS swaps the overlay stylesheet in the current document and in every
// document loaded afterwards.
func (d *Driver) SetCSS(ctx context.Context, css string) error {
	d.mu.Lock()
	d.opts.CSS = css
	old := d.scriptID
	script, err := bridgeScript(d.opts.bridge())
	d.mu.Unlock()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(d.ctx, d.opts.CallTimeout)
	defer cancel()
	err = chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		if old != "" {
			if err := cdppage.RemoveScriptToEvaluateOnNewDocument(old).Do(ctx); err != nil {
				return fmt.Errorf("remove bridge script: %w", err)
			}
		}
		id, err := cdppage.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		if err != nil {
			return fmt.Errorf("add bridge script: %w", err)
		}
		d.mu.Lock()
		d.scriptID = id
		d.mu.Unlock()
		return nil
	}))
	if err != nil {
		if d.ctx.Err() != nil {
			return page.ErrDetached
		}
		return err
	}

	expr := fmt.Sprintf(`(() => {
  let style = document.getElementById(%s);
  if (!style) {
    style = document.createElement('style');
    style.id = %s;
    (document.head || document.documentElement).appendChild(style);
  }
  style.textContent = %s;
  return true;
})()`, quote(styleID), quote(styleID), quote(css))
	var ok bool
	return d.eval(ctx, expr, &ok)
}
