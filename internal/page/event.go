package page

import (
	"encoding/json"
	"fmt"
)

type EventKind string

const (
	// EventMutation means the structure of the document changed in a way
	// that may affect the widget or its container.
	EventMutation EventKind = "mutation"
	// EventLocation is a URL change seen by the page (history API or a
	// full navigation).
	EventLocation EventKind = "location"
	// EventNavigateFinish is the host's own "navigation settled" event.
	EventNavigateFinish EventKind = "navigate-finish"
	EventWidgetClick    EventKind = "widget-click"
	// EventShortcut is the Alt+T chord. Key events from editable elements
	// are filtered out before they get here.
	EventShortcut EventKind = "shortcut"
	// EventFullscreen is the native fullscreenchange event.
	EventFullscreen EventKind = "fullscreen"
	// EventRootClass reports the host's fullscreen class on <html>.
	EventRootClass EventKind = "root-class"
	EventConsole   EventKind = "console"
	EventDetached  EventKind = "detached"
)

// Event is a single notification from the page. Fields are populated
// according to Kind.
type Event struct {
	Kind EventKind `json:"type"`

	Href string `json:"href,omitempty"`
	Host string `json:"host,omitempty"`
	Path string `json:"path,omitempty"`

	// Fullscreen carries the native state for EventFullscreen and the host
	// class state for EventRootClass.
	Fullscreen bool `json:"fullscreen,omitempty"`

	// WidgetPresent and ContainerPresent accompany EventMutation.
	WidgetPresent    bool `json:"widget,omitempty"`
	ContainerPresent bool `json:"container,omitempty"`

	Level   string `json:"level,omitempty"`
	Message string `json:"message,omitempty"`
}

// Location returns the location carried by the event.
func (e Event) Location() Location {
	return Location{Href: e.Href, Host: e.Host, Path: e.Path}
}

// DecodeEvent parses a payload sent by the page bridge.
func DecodeEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("decode page event: %w", err)
	}
	switch ev.Kind {
	case EventMutation, EventLocation, EventNavigateFinish, EventWidgetClick,
		EventShortcut, EventFullscreen, EventRootClass, EventConsole:
		return ev, nil
	default:
		return Event{}, fmt.Errorf("decode page event: unknown type %q", ev.Kind)
	}
}
