package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrNoServer is returned by Discover when no yt-fs API answers.
var ErrNoServer = errors.New("no yt-fs server found")

// Transport carries messages to a yt-fs API server.
type Transport interface {
	Send(ctx context.Context, msg Message) (Ack, error)
	Status(ctx context.Context) (Status, error)
	Close() error
}

type Config struct {
	// Transport is "http" or "websocket".
	Transport string `yaml:"transport" koanf:"transport"`
	// URL pins the server, e.g. http://127.0.0.1:8765. Empty means
	// discover over Host and Ports.
	URL     string        `yaml:"url" koanf:"url"`
	Host    string        `yaml:"host" koanf:"host"`
	Ports   []int         `yaml:"ports" koanf:"ports"`
	Timeout time.Duration `yaml:"timeout" koanf:"timeout"`
}

const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

func DefaultConfig() Config {
	return Config{
		Transport: TransportHTTP,
		Host:      "127.0.0.1",
		Ports:     DefaultPorts(),
		Timeout:   5 * time.Second,
	}
}

// Client sends messages through a transport chosen once, at Dial.
type Client struct {
	Transport
	BaseURL string
}

// Dial finds the server and opens the configured transport.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	hc := &http.Client{Timeout: cfg.Timeout}
	base := cfg.URL
	if base == "" {
		var err error
		base, err = Discover(ctx, hc, cfg.Host, cfg.Ports)
		if err != nil {
			return nil, err
		}
	}
	base = strings.TrimSuffix(base, "/")

	var t Transport
	switch cfg.Transport {
	case TransportHTTP, "":
		t = &httpTransport{base: base, hc: hc}
	case TransportWebSocket, "ws":
		ws, err := dialWebSocket(ctx, base)
		if err != nil {
			return nil, err
		}
		t = ws
	default:
		return nil, fmt.Errorf("unknown relay transport %q", cfg.Transport)
	}
	return &Client{Transport: t, BaseURL: base}, nil
}

// Toggle sends the toggle message. A message the tab refused comes back as
// an Ack with OK unset, not as an error.
func (c *Client) Toggle(ctx context.Context) (Ack, error) {
	return c.Send(ctx, NewToggle())
}

// Discover pings each port and returns the base URL of the first yt-fs
// server.
func Discover(ctx context.Context, hc *http.Client, host string, ports []int) (string, error) {
	for _, port := range ports {
		base := "http://" + net.JoinHostPort(host, strconv.Itoa(port))
		if ping(ctx, hc, base) {
			return base, nil
		}
	}
	return "", ErrNoServer
}

func ping(ctx context.Context, hc *http.Client, base string) bool {
	var reply struct {
		Status string `json:"status"`
		App    string `json:"app"`
	}
	if err := doJSON(ctx, hc, http.MethodGet, base+"/api/1/ping", nil, &reply); err != nil {
		return false
	}
	return reply.Status == "ok" && reply.App == AppName
}

func doJSON(ctx context.Context, hc *http.Client, method, endpoint string, body, out any) error {
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("%s %s: %s: %s", method, endpoint, resp.Status, e.Error)
		}
		return fmt.Errorf("%s %s: %s", method, endpoint, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type httpTransport struct {
	base string
	hc   *http.Client
}

func (t *httpTransport) Send(ctx context.Context, msg Message) (Ack, error) {
	var ack Ack
	err := doJSON(ctx, t.hc, http.MethodPost, t.base+"/api/1/message", msg, &ack)
	return ack, err
}

func (t *httpTransport) Status(ctx context.Context) (Status, error) {
	var st Status
	err := doJSON(ctx, t.hc, http.MethodGet, t.base+"/api/1/status", nil, &st)
	return st, err
}

func (t *httpTransport) Close() error { return nil }

type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func dialWebSocket(ctx context.Context, base string) (*wsTransport, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/api/1/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) roundTrip(ctx context.Context, msg Message, out any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
		_ = t.conn.SetReadDeadline(deadline)
		defer func() {
			_ = t.conn.SetWriteDeadline(time.Time{})
			_ = t.conn.SetReadDeadline(time.Time{})
		}()
	}
	if err := t.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := t.conn.ReadJSON(out); err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	return nil
}

func (t *wsTransport) Send(ctx context.Context, msg Message) (Ack, error) {
	var ack Ack
	err := t.roundTrip(ctx, msg, &ack)
	return ack, err
}

func (t *wsTransport) Status(ctx context.Context) (Status, error) {
	// Errors come back as an Ack-shaped object, so decode loosely first.
	var raw json.RawMessage
	if err := t.roundTrip(ctx, Message{ID: uuid.NewString(), Action: ActionStatus}, &raw); err != nil {
		return Status{}, err
	}
	var probe struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.Error != "" {
		return Status{}, errors.New(probe.Error)
	}
	var st Status
	if err := json.Unmarshal(raw, &st); err != nil {
		return Status{}, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return t.conn.Close()
}
