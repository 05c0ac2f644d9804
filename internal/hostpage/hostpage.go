// Package hostpage holds the contract yt-fs has with the YouTube watch page:
// storage keys, class names, widget attributes and the selectors the
// controller depends on. Everything here is overridable from config except
// the identifiers other tools (user stylesheets, extensions) may rely on.
package hostpage

import (
	"strings"

	"github.com/samber/lo"
)

const (
	StorageKey   = "ytTabFS"
	StorageValue = "1"

	OverlayClass = "yt-tabfs-enabled"

	WidgetID          = "yt-tabfs-button"
	WidgetClasses     = "ytp-button yt-tabfs-button"
	WidgetActiveClass = "yt-tabfs-active"
	WidgetText        = "TF"
	WidgetTitle       = "Toggle tab-fullscreen (Alt + T)"
	WidgetAriaLabel   = "Toggle Tab-Fullscreen"

	NavigateFinishEvent = "yt-navigate-finish"

	ActionToggle = "toggle-tabfs"
)

// Selectors are the parts of the host page layout that YouTube changes from
// time to time.
type Selectors struct {
	ControlsContainer   string   `yaml:"controls_container" koanf:"controls_container"`
	Player              string   `yaml:"player" koanf:"player"`
	HostFullscreenClass string   `yaml:"host_fullscreen_class" koanf:"host_fullscreen_class"`
	WatchPaths          []string `yaml:"watch_paths" koanf:"watch_paths"`
	Hosts               []string `yaml:"hosts" koanf:"hosts"`
}

func DefaultSelectors() Selectors {
	return Selectors{
		ControlsContainer:   ".ytp-chrome-controls .ytp-left-controls",
		Player:              "#movie_player",
		HostFullscreenClass: "ytp-fullscreen",
		WatchPaths:          []string{"/watch"},
		Hosts:               []string{"youtube.com"},
	}
}

// IsWatchPath reports whether path is a video watch page. Only exact
// matches count: "/watch/abc" and "/watchlater" are not watch pages.
func (s Selectors) IsWatchPath(path string) bool {
	return lo.Contains(s.WatchPaths, path)
}

// IsHost reports whether host belongs to one of the configured sites,
// including subdomains such as www. and music.
func (s Selectors) IsHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	return lo.ContainsBy(s.Hosts, func(h string) bool {
		h = strings.ToLower(h)
		return host == h || strings.HasSuffix(host, "."+h)
	})
}

// IsWatchPage combines IsHost and IsWatchPath.
func (s Selectors) IsWatchPage(host, path string) bool {
	return s.IsHost(host) && s.IsWatchPath(path)
}

// WidgetSelector matches every node carrying the widget id, including
// duplicates the host may have cloned.
func WidgetSelector() string {
	return "#" + WidgetID
}
