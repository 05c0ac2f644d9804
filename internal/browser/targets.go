package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// ErrNoTarget is returned when no open tab matches.
var ErrNoTarget = errors.New("no matching tab")

// Target is one entry of the DevTools /json/list endpoint.
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

type versionInfo struct {
	Browser              string `json:"Browser"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

func getJSON(ctx context.Context, hc *http.Client, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: %s", endpoint, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

func endpoint(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse remote url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = path
	u.RawQuery = ""
	return u.String(), nil
}

// ListTargets returns the page targets of the browser at base, an
// http://host:port remote-debugging address.
func ListTargets(ctx context.Context, hc *http.Client, base string) ([]Target, error) {
	ep, err := endpoint(base, "/json/list")
	if err != nil {
		return nil, err
	}
	var all []Target
	if err := getJSON(ctx, hc, ep, &all); err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	pages := all[:0]
	for _, t := range all {
		if t.Type == "page" {
			pages = append(pages, t)
		}
	}
	return pages, nil
}

// FindTarget returns the first page whose URL contains match.
func FindTarget(ctx context.Context, hc *http.Client, base, match string) (Target, error) {
	targets, err := ListTargets(ctx, hc, base)
	if err != nil {
		return Target{}, err
	}
	for _, t := range targets {
		if strings.Contains(t.URL, match) {
			return t, nil
		}
	}
	return Target{}, fmt.Errorf("%w for %q", ErrNoTarget, match)
}

// BrowserWebSocketURL resolves the browser-level debugger URL from
// /json/version.
func BrowserWebSocketURL(ctx context.Context, hc *http.Client, base string) (string, error) {
	if strings.HasPrefix(base, "ws://") || strings.HasPrefix(base, "wss://") {
		return base, nil
	}
	ep, err := endpoint(base, "/json/version")
	if err != nil {
		return "", err
	}
	var info versionInfo
	if err := getJSON(ctx, hc, ep, &info); err != nil {
		return "", fmt.Errorf("browser version: %w", err)
	}
	if info.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("browser version: no webSocketDebuggerUrl")
	}
	return info.WebSocketDebuggerURL, nil
}

var evalID atomic.Int64

// Evaluate runs expression in a single target over a short-lived raw
// DevTools connection. It does not take over the tab the way a chromedp
// context does, so it is safe for probing a tab someone else is using.
func Evaluate(ctx context.Context, wsURL, expression string) (any, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	id := evalID.Add(1)
	cmd := map[string]any{
		"id":     id,
		"method": "Runtime.evaluate",
		"params": map[string]any{
			"expression":    expression,
			"returnByValue": true,
		},
	}
	if err := conn.WriteJSON(cmd); err != nil {
		return nil, fmt.Errorf("write command failed: %w", err)
	}

	for {
		var response struct {
			ID     int64 `json:"id"`
			Result struct {
				Result struct {
					Value any `json:"value"`
				} `json:"result"`
				ExceptionDetails *struct {
					Text string `json:"text"`
				} `json:"exceptionDetails"`
			} `json:"result"`
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := conn.ReadJSON(&response); err != nil {
			return nil, fmt.Errorf("read response failed: %w", err)
		}
		// Events may arrive before the reply.
		if response.ID != id {
			continue
		}
		if response.Error.Message != "" {
			return nil, fmt.Errorf("CDP error: %s", response.Error.Message)
		}
		if ex := response.Result.ExceptionDetails; ex != nil {
			return nil, fmt.Errorf("CDP exception: %s", ex.Text)
		}
		return response.Result.Result.Value, nil
	}
}
