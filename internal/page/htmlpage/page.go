// Package htmlpage implements page.Page over an in-memory HTML document.
//
// It plays the host page in tests: besides the page.Page methods the
// controller calls, it exposes the things YouTube does to a tab on its own
// (SPA navigation, rebuilding the player controls, entering fullscreen, key
// presses) and emits the same events the CDP bridge would.
package htmlpage

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xander1421/yt-fs/internal/hostpage"
	"github.com/xander1421/yt-fs/internal/page"
)

// WatchMarkup is a trimmed-down watch page with the nodes the controller
// looks for.
const WatchMarkup = `<!DOCTYPE html>
<html lang="en">
<head><title>YouTube</title></head>
<body>
<ytd-app>
  <div id="movie_player" class="html5-video-player">
    <video class="html5-main-video"></video>
    <div class="ytp-chrome-bottom">
      <div class="ytp-chrome-controls">
        <div class="ytp-left-controls">
          <button class="ytp-play-button ytp-button"></button>
        </div>
        <div class="ytp-right-controls">
          <button class="ytp-fullscreen-button ytp-button"></button>
        </div>
      </div>
    </div>
  </div>
  <input id="search" type="text">
  <div id="comment" contenteditable="true"></div>
</ytd-app>
</body>
</html>`

// BrowseMarkup is a non-watch page: the app shell without a player.
const BrowseMarkup = `<!DOCTYPE html>
<html lang="en">
<head><title>YouTube</title></head>
<body><ytd-app><div id="contents"></div></ytd-app></body>
</html>`

const eventBuffer = 256

type Options struct {
	WidgetSelector      string
	ContainerSelector   string
	HostFullscreenClass string
}

func defaultOptions() Options {
	s := hostpage.DefaultSelectors()
	return Options{
		WidgetSelector:      hostpage.WidgetSelector(),
		ContainerSelector:   s.ControlsContainer,
		HostFullscreenClass: s.HostFullscreenClass,
	}
}

// Page is an in-memory tab.
type Page struct {
	mu      sync.Mutex
	opts    Options
	doc     *html.Node
	loc     page.Location
	native  bool
	storage *Storage
	domErr  error
	events  chan page.Event
	closed  bool

	lastWidget, lastContainer bool
}

var _ page.Page = (*Page)(nil)

// New parses markup as the document loaded at rawURL.
func New(rawURL, markup string) (*Page, error) {
	return NewWithOptions(rawURL, markup, defaultOptions())
}

func NewWithOptions(rawURL, markup string, opts Options) (*Page, error) {
	p := &Page{
		opts:    opts,
		storage: NewStorage(),
		events:  make(chan page.Event, eventBuffer),
	}
	if err := p.load(rawURL, markup); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Page) load(rawURL, markup string) error {
	loc, err := parseLocation(rawURL)
	if err != nil {
		return err
	}
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("parse markup: %w", err)
	}
	p.doc = doc
	p.loc = loc
	p.lastWidget = p.existsLocked(p.opts.WidgetSelector)
	p.lastContainer = p.existsLocked(p.opts.ContainerSelector)
	return nil
}

func parseLocation(rawURL string) (page.Location, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return page.Location{}, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return page.Location{Href: u.String(), Host: u.Host, Path: path}, nil
}

// Storage exposes the tab's session storage for inspection and fault
// injection.
func (p *Page) Storage() *Storage { return p.storage }

// FailDOM makes every DOM write return err until FailDOM(nil).
func (p *Page) FailDOM(err error) {
	p.mu.Lock()
	p.domErr = err
	p.mu.Unlock()
}

func (p *Page) Events() <-chan page.Event { return p.events }

func (p *Page) Location(ctx context.Context) (page.Location, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return page.Location{}, page.ErrDetached
	}
	return p.loc, nil
}

func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	n, err := p.Count(ctx, selector)
	return n > 0, err
}

func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return 0, fmt.Errorf("selector %q: %w", selector, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, page.ErrDetached
	}
	return len(sel.MatchAll(p.doc)), nil
}

func (p *Page) HasRootClass(ctx context.Context, class string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, page.ErrDetached
	}
	return hasClass(p.root(), class), nil
}

func (p *Page) SetRootClass(ctx context.Context, class string, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.writable(); err != nil {
		return err
	}
	p.setRootClassLocked(class, on)
	return nil
}

func (p *Page) setRootClassLocked(class string, on bool) {
	if setClass(p.root(), class, on) && class == p.opts.HostFullscreenClass {
		p.emitLocked(page.Event{Kind: page.EventRootClass, Fullscreen: on})
	}
}

func (p *Page) SetClass(ctx context.Context, selector, class string, on bool) (int, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return 0, fmt.Errorf("selector %q: %w", selector, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.writable(); err != nil {
		return 0, err
	}
	nodes := sel.MatchAll(p.doc)
	for _, n := range nodes {
		setClass(n, class, on)
	}
	return len(nodes), nil
}

func (p *Page) AppendWidget(ctx context.Context, container string, spec page.WidgetSpec) error {
	sel, err := cascadia.Compile(container)
	if err != nil {
		return fmt.Errorf("selector %q: %w", container, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.writable(); err != nil {
		return err
	}
	parent := sel.MatchFirst(p.doc)
	if parent == nil {
		return page.ErrNotFound
	}

	btn := &html.Node{
		Type:     html.ElementNode,
		Data:     "button",
		DataAtom: atom.Button,
		Attr: []html.Attribute{
			{Key: "id", Val: spec.ID},
			{Key: "class", Val: spec.Classes},
			{Key: "title", Val: spec.Title},
			{Key: "aria-label", Val: spec.AriaLabel},
		},
	}
	btn.AppendChild(&html.Node{Type: html.TextNode, Data: spec.Text})
	parent.AppendChild(btn)

	p.mutatedLocked()
	return nil
}

func (p *Page) Remove(ctx context.Context, selector string) (int, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return 0, fmt.Errorf("selector %q: %w", selector, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.writable(); err != nil {
		return 0, err
	}
	n := removeAll(p.doc, sel)
	if n > 0 {
		p.mutatedLocked()
	}
	return n, nil
}

func (p *Page) FullscreenActive(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, page.ErrDetached
	}
	return p.native, nil
}

func (p *Page) StorageGet(ctx context.Context, key string) (string, bool, error) {
	return p.storage.Get(key)
}

func (p *Page) StorageSet(ctx context.Context, key, value string) error {
	return p.storage.Set(key, value)
}

func (p *Page) StorageRemove(ctx context.Context, key string) error {
	return p.storage.Delete(key)
}

func (p *Page) writable() error {
	if p.closed {
		return page.ErrDetached
	}
	return p.domErr
}

func (p *Page) existsLocked(selector string) bool {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return false
	}
	return sel.MatchFirst(p.doc) != nil
}

// mutatedLocked reports a structural change, but only when the presence of
// the widget or its container flipped. The CDP bridge filters the same way.
func (p *Page) mutatedLocked() {
	w := p.existsLocked(p.opts.WidgetSelector)
	c := p.existsLocked(p.opts.ContainerSelector)
	if w == p.lastWidget && c == p.lastContainer {
		return
	}
	p.lastWidget, p.lastContainer = w, c
	p.emitLocked(page.Event{Kind: page.EventMutation, WidgetPresent: w, ContainerPresent: c})
}

func (p *Page) emitLocked(ev page.Event) {
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
	}
}

func (p *Page) root() *html.Node {
	for n := p.doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode && n.DataAtom == atom.Html {
			return n
		}
	}
	return p.doc
}

func classes(n *html.Node) []string {
	for _, a := range n.Attr {
		if a.Key == "class" {
			return strings.Fields(a.Val)
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	return slices.Contains(classes(n), class)
}

// setClass adds or removes class on n and reports whether anything changed.
func setClass(n *html.Node, class string, on bool) bool {
	cur := classes(n)
	has := slices.Contains(cur, class)
	if has == on {
		return false
	}
	if on {
		cur = append(cur, class)
	} else {
		cur = slices.DeleteFunc(cur, func(c string) bool { return c == class })
	}
	setAttr(n, "class", strings.Join(cur, " "))
	return true
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAll(doc *html.Node, sel cascadia.Selector) int {
	nodes := sel.MatchAll(doc)
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
	return len(nodes)
}
