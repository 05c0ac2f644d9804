// Package browser gets yt-fs a chromedp tab to drive: a Chrome it launches
// itself, a tab in a Chrome already running with remote debugging, or a
// Kernel cloud browser.
package browser

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

type Mode string

const (
	ModeLaunch Mode = "launch"
	ModeAttach Mode = "attach"
	ModeKernel Mode = "kernel"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeLaunch, ModeAttach, ModeKernel:
		return true
	}
	return false
}

type Config struct {
	Mode Mode `yaml:"mode" koanf:"mode"`

	// launch
	ExecPath    string `yaml:"exec_path" koanf:"exec_path"`
	UserDataDir string `yaml:"user_data_dir" koanf:"user_data_dir"`
	Headless    bool   `yaml:"headless" koanf:"headless"`
	Fullscreen  bool   `yaml:"fullscreen" koanf:"fullscreen"`
	StartURL    string `yaml:"start_url" koanf:"start_url"`

	// attach
	RemoteURL   string `yaml:"remote_url" koanf:"remote_url"`
	TargetMatch string `yaml:"target_match" koanf:"target_match"`

	// kernel
	KernelBrowserID string `yaml:"kernel_browser_id" koanf:"kernel_browser_id"`
	KernelAPIKey    string `yaml:"-" koanf:"kernel_api_key"`
	OpenLiveView    bool   `yaml:"open_live_view" koanf:"open_live_view"`

	ReadyTimeout time.Duration `yaml:"ready_timeout" koanf:"ready_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Mode:         ModeLaunch,
		StartURL:     "https://www.youtube.com/",
		RemoteURL:    "http://127.0.0.1:9222",
		TargetMatch:  "youtube.com",
		ReadyTimeout: 10 * time.Second,
	}
}

// Session is one attached tab. Tab is the chromedp context to hand to the
// page driver.
type Session struct {
	Tab         context.Context
	Mode        Mode
	TargetID    string
	LiveViewURL string

	startURL string
	ready    time.Duration
	log      *zap.Logger
	cancels  []context.CancelFunc
}

// Open attaches to a tab according to cfg. The returned session must be
// closed.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("browser")
	switch cfg.Mode {
	case ModeLaunch, "":
		return launch(ctx, cfg, log)
	case ModeAttach:
		return attach(ctx, cfg, http.DefaultClient, log)
	case ModeKernel:
		return attachKernel(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown browser mode %q", cfg.Mode)
	}
}

func launch(ctx context.Context, cfg Config, log *zap.Logger) (*Session, error) {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("hide-crash-restore-bubble", true),
		chromedp.Flag("disable-features", "MediaRouter"),
		chromedp.Flag("headless", cfg.Headless),
	}
	if cfg.Fullscreen {
		opts = append(opts, chromedp.Flag("start-fullscreen", true))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	execPath := cfg.ExecPath
	if execPath == "" {
		execPath = findChrome()
	}
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	s := &Session{
		Tab:      tabCtx,
		Mode:     ModeLaunch,
		startURL: cfg.StartURL,
		ready:    cfg.ReadyTimeout,
		log:      log,
		cancels:  []context.CancelFunc{tabCancel, allocCancel},
	}

	// Starts the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	if t := chromedp.FromContext(tabCtx).Target; t != nil {
		s.TargetID = string(t.TargetID)
	}
	log.Info("chrome launched", zap.String("exec", execPath), zap.String("target", s.TargetID))
	return s, nil
}

func attach(ctx context.Context, cfg Config, hc *http.Client, log *zap.Logger) (*Session, error) {
	t, err := FindTarget(ctx, hc, cfg.RemoteURL, cfg.TargetMatch)
	if err != nil {
		return nil, err
	}
	log.Info("matched tab", zap.String("id", t.ID), zap.String("url", t.URL))

	if t.WebSocketDebuggerURL != "" {
		probeCtx, cancel := context.WithTimeout(ctx, cfg.ReadyTimeout)
		state, err := Evaluate(probeCtx, t.WebSocketDebuggerURL, "document.readyState")
		cancel()
		if err != nil {
			return nil, fmt.Errorf("probe tab: %w", err)
		}
		log.Debug("tab ready state", zap.Any("state", state))
	}

	wsURL, err := BrowserWebSocketURL(ctx, hc, cfg.RemoteURL)
	if err != nil {
		return nil, err
	}
	return remote(ctx, wsURL, t.ID, "", cfg, log)
}

// remote connects to a browser's debugger URL. With a targetID the existing
// tab is used, otherwise chromedp opens a new one.
func remote(ctx context.Context, wsURL, targetID, startURL string, cfg Config, log *zap.Logger) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, wsURL)
	var ctxOpts []chromedp.ContextOption
	if targetID != "" {
		ctxOpts = append(ctxOpts, chromedp.WithTargetID(target.ID(targetID)))
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, ctxOpts...)
	s := &Session{
		Tab:      tabCtx,
		Mode:     cfg.Mode,
		TargetID: targetID,
		startURL: startURL,
		ready:    cfg.ReadyTimeout,
		log:      log,
		cancels:  []context.CancelFunc{tabCancel, allocCancel},
	}
	if err := chromedp.Run(tabCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("attach to %s: %w", wsURL, err)
	}
	if s.TargetID == "" {
		if t := chromedp.FromContext(tabCtx).Target; t != nil {
			s.TargetID = string(t.TargetID)
		}
	}
	return s, nil
}

// Start navigates to the configured start URL, if the mode has one. It is
// called after the page driver is installed so the first document already
// carries the bridge.
func (s *Session) Start(ctx context.Context) error {
	if s.startURL == "" {
		return nil
	}
	s.log.Info("navigating", zap.String("url", s.startURL))
	err := chromedp.Run(s.Tab, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, err := cdppage.Navigate(s.startURL).Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("navigate: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(s.Tab, s.ready)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(waitCtx, chromedp.WaitReady("body")); err != nil {
		s.log.Warn("body not ready, continuing", zap.Error(err))
	}
	return nil
}

func (s *Session) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
}

// findChrome locates the Chrome executable
func findChrome() string {
	var candidates []string

	switch runtime.GOOS {
	case "linux":
		candidates = []string{
			"google-chrome",
			"google-chrome-stable",
			"chromium",
			"chromium-browser",
			"brave-browser",
		}
	case "darwin":
		candidates = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "windows":
		candidates = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			filepath.Join(os.Getenv("LOCALAPPDATA"), `Google\Chrome\Application\chrome.exe`),
		}
	}

	for _, path := range candidates {
		if _, err := exec.LookPath(path); err == nil {
			return path
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
