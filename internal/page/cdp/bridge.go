package cdp

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed assets/bridge.js
var bridgeSource string

//go:embed assets/overlay.css
var defaultCSS string

// DefaultCSS is the overlay stylesheet used when no css_file is configured.
func DefaultCSS() string { return defaultCSS }

// bridgeConfig is handed to the bridge function as its only argument. The
// field names are read by assets/bridge.js.
type bridgeConfig struct {
	Binding             string `json:"binding"`
	WidgetID            string `json:"widgetId"`
	Container           string `json:"container"`
	HostFullscreenClass string `json:"hostFullscreenClass"`
	NavigateEvent       string `json:"navigateEvent"`
	StyleID             string `json:"styleId"`
	CSS                 string `json:"css"`
	SettleMs            int64  `json:"settleMs"`
}

// bridgeScript renders the script installed on every new document.
func bridgeScript(cfg bridgeConfig) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode bridge config: %w", err)
	}
	return fmt.Sprintf("(%s)(%s);", bridgeSource, raw), nil
}

// quote renders s as a JavaScript string literal.
func quote(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}
