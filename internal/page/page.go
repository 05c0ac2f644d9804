// Package page is the boundary between the tab-fullscreen controller and the
// host page's DOM. The controller never touches a browser directly; it goes
// through a Page, which is either a live CDP tab (package cdp) or an
// in-memory document (package htmlpage).
package page

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a required node (usually the controls
	// container) is not on the page.
	ErrNotFound = errors.New("page: node not found")
	// ErrDetached is returned once the tab has gone away.
	ErrDetached = errors.New("page: detached")
)

// Location is the tab's current address.
type Location struct {
	Href string `json:"href"`
	Host string `json:"host"`
	Path string `json:"path"`
}

// WidgetSpec describes the control-bar button.
type WidgetSpec struct {
	ID        string
	Classes   string
	Text      string
	Title     string
	AriaLabel string
}

// Page is the DOM surface the controller needs. Implementations must be safe
// for use from one goroutine at a time; the controller serializes all calls
// on its event loop.
type Page interface {
	Location(ctx context.Context) (Location, error)

	Exists(ctx context.Context, selector string) (bool, error)
	Count(ctx context.Context, selector string) (int, error)

	HasRootClass(ctx context.Context, class string) (bool, error)
	SetRootClass(ctx context.Context, class string, on bool) error
	// SetClass toggles class on every node matching selector and returns
	// the number of nodes touched.
	SetClass(ctx context.Context, selector, class string, on bool) (int, error)

	// AppendWidget appends a button built from spec to the first node
	// matching container. It returns ErrNotFound when container is absent.
	AppendWidget(ctx context.Context, container string, spec WidgetSpec) error
	// Remove deletes every node matching selector.
	Remove(ctx context.Context, selector string) (int, error)

	FullscreenActive(ctx context.Context) (bool, error)

	// Session storage, scoped to the tab.
	StorageGet(ctx context.Context, key string) (string, bool, error)
	StorageSet(ctx context.Context, key, value string) error
	StorageRemove(ctx context.Context, key string) error

	// Events delivers page-side notifications. The channel is closed when
	// the page goes away.
	Events() <-chan Event
}
