// Package relay carries the cross-script message between yt-fs and the
// process that owns the tab, and the client side used by the CLI.
package relay

import (
	"github.com/google/uuid"

	"github.com/xander1421/yt-fs/internal/hostpage"
)

const (
	// AppName identifies a yt-fs API server in /api/1/ping replies.
	AppName = "yt-fs"

	// ActionStatus asks for a Status over the websocket transport.
	ActionStatus = "status"
)

// DefaultPorts are tried in order by the server and by discovery.
func DefaultPorts() []int {
	return []int{8765, 8766, 8767, 8768, 8769}
}

// Message is the `{"action": "toggle-tabfs"}` message. ID is optional on
// the wire and echoed back in the Ack.
type Message struct {
	ID     string `json:"id,omitempty"`
	Action string `json:"action"`
}

func NewToggle() Message {
	return Message{ID: uuid.NewString(), Action: hostpage.ActionToggle}
}

// Ack acknowledges a Message. OK is false when the message was received
// but not acted on; Error says why.
type Ack struct {
	ID      string `json:"id"`
	OK      bool   `json:"ok"`
	Enabled bool   `json:"enabled"`
	Error   string `json:"error,omitempty"`
}

// Status is a snapshot of a controlled tab.
type Status struct {
	Href          string `json:"href"`
	Path          string `json:"path"`
	Supported     bool   `json:"supported"`
	Watch         bool   `json:"watch"`
	Enabled       bool   `json:"enabled"`
	Overlay       bool   `json:"overlay"`
	WidgetPresent bool   `json:"widget_present"`
	WidgetActive  bool   `json:"widget_active"`
	Injector      string `json:"injector"`
	Fullscreen    string `json:"fullscreen"`
	AdSkip        bool   `json:"adskip"`
}
