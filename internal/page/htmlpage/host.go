package htmlpage

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/xander1421/yt-fs/internal/page"
)

// The methods in this file act as the host page (or the user) rather than
// the controller.

// Navigate performs an in-app navigation: the URL changes, the document
// stays. It emits a location event the way the bridge's href check would.
func (p *Page) Navigate(rawURL string) error {
	loc, err := parseLocation(rawURL)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loc = loc
	p.emitLocked(page.Event{Kind: page.EventLocation, Href: loc.Href, Host: loc.Host, Path: loc.Path})
	return nil
}

// NavigateSilently changes the URL without telling anyone. Only polling can
// notice it.
func (p *Page) NavigateSilently(rawURL string) error {
	loc, err := parseLocation(rawURL)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.loc = loc
	p.mu.Unlock()
	return nil
}

// NavigateFinish fires the host's navigation-finished event for the current
// URL.
func (p *Page) NavigateFinish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emitLocked(page.Event{Kind: page.EventNavigateFinish, Href: p.loc.Href, Host: p.loc.Host, Path: p.loc.Path})
}

// Reload replaces the whole document. Session storage survives and browser
// fullscreen ends. The events are the ones the bridge sends when it installs
// into the new document.
func (p *Page) Reload(rawURL, markup string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.load(rawURL, markup); err != nil {
		return err
	}
	p.emitLocked(page.Event{Kind: page.EventLocation, Href: p.loc.Href, Host: p.loc.Host, Path: p.loc.Path})
	if p.native {
		p.native = false
		p.emitLocked(page.Event{Kind: page.EventFullscreen, Fullscreen: false})
	}
	return nil
}

// RemoveNodes deletes nodes behind the controller's back, like the host
// rebuilding its player controls.
func (p *Page) RemoveNodes(selector string) (int, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return 0, fmt.Errorf("selector %q: %w", selector, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n := removeAll(p.doc, sel)
	p.mutatedLocked()
	return n, nil
}

// Insert parses markup as children of the first node matching selector.
func (p *Page) Insert(selector, markup string) error {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return fmt.Errorf("selector %q: %w", selector, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	parent := sel.MatchFirst(p.doc)
	if parent == nil {
		return page.ErrNotFound
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
	if err != nil {
		return fmt.Errorf("parse fragment: %w", err)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	p.mutatedLocked()
	return nil
}

// SetNativeFullscreen enters or leaves browser fullscreen.
func (p *Page) SetNativeFullscreen(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.native == on {
		return
	}
	p.native = on
	p.emitLocked(page.Event{Kind: page.EventFullscreen, Fullscreen: on})
}

// SetHostFullscreen sets or clears the host's fullscreen class on <html>.
func (p *Page) SetHostFullscreen(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setRootClassLocked(p.opts.HostFullscreenClass, on)
}

// ClickWidget clicks the first widget node, if there is one.
func (p *Page) ClickWidget() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.existsLocked(p.opts.WidgetSelector) {
		return false
	}
	p.emitLocked(page.Event{Kind: page.EventWidgetClick})
	return true
}

// Key is a keydown. Focus is a selector for the focused element; empty
// means the document body.
type Key struct {
	Key   string
	Alt   bool
	Ctrl  bool
	Shift bool
	Meta  bool
	Focus string
}

// PressKey delivers a keydown and reports whether it was taken as the
// tab-fullscreen shortcut.
func (p *Page) PressKey(k Key) bool {
	if !k.Alt || k.Ctrl || k.Shift || k.Meta || !strings.EqualFold(k.Key, "t") {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if k.Focus != "" && p.editableLocked(k.Focus) {
		return false
	}
	p.emitLocked(page.Event{Kind: page.EventShortcut, Href: p.loc.Href, Host: p.loc.Host, Path: p.loc.Path})
	return true
}

func (p *Page) editableLocked(selector string) bool {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return false
	}
	n := sel.MatchFirst(p.doc)
	if n == nil {
		return false
	}
	switch strings.ToLower(n.Data) {
	case "input", "textarea":
		return true
	}
	v, ok := attr(n, "contenteditable")
	return ok && v != "false"
}

// Detach simulates the tab closing.
func (p *Page) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.emitLocked(page.Event{Kind: page.EventDetached})
	p.closed = true
	close(p.events)
}

// HasClass reports whether the first node matching selector carries class.
func (p *Page) HasClass(selector, class string) bool {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n := sel.MatchFirst(p.doc)
	return n != nil && hasClass(n, class)
}

// Attr returns an attribute of the first node matching selector.
func (p *Page) Attr(selector, key string) (string, bool) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n := sel.MatchFirst(p.doc)
	if n == nil {
		return "", false
	}
	return attr(n, key)
}

// Text returns the text content of the first node matching selector.
func (p *Page) Text(selector string) string {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n := sel.MatchFirst(p.doc)
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// HTML renders the current document.
func (p *Page) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var buf bytes.Buffer
	_ = html.Render(&buf, p.doc)
	return buf.String()
}
