// Package config loads yt-fs settings: built-in defaults, then an optional
// YAML file, then YTFS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/xander1421/yt-fs/internal/adskip"
	"github.com/xander1421/yt-fs/internal/browser"
	"github.com/xander1421/yt-fs/internal/hostpage"
	"github.com/xander1421/yt-fs/internal/logging"
	"github.com/xander1421/yt-fs/internal/relay"
	"github.com/xander1421/yt-fs/internal/server"
	"github.com/xander1421/yt-fs/internal/tabfs"
)

const (
	// DefaultFile is looked up in the working directory when no path is
	// given.
	DefaultFile = "yt-fs.yaml"
	envPrefix   = "YTFS_"
)

type Overlay struct {
	// CSSFile replaces the built-in overlay stylesheet.
	CSSFile        string        `yaml:"css_file" koanf:"css_file"`
	ReloadInterval time.Duration `yaml:"reload_interval" koanf:"reload_interval"`
}

type AdSkip struct {
	Enabled       bool `yaml:"enabled" koanf:"enabled"`
	adskip.Config `yaml:",inline" koanf:",squash"`
}

type Config struct {
	Browser   browser.Config     `yaml:"browser" koanf:"browser"`
	Server    server.Config      `yaml:"server" koanf:"server"`
	Relay     relay.Config       `yaml:"relay" koanf:"relay"`
	Timing    tabfs.Timing       `yaml:"timing" koanf:"timing"`
	Selectors hostpage.Selectors `yaml:"selectors" koanf:"selectors"`
	Overlay   Overlay            `yaml:"overlay" koanf:"overlay"`
	AdSkip    AdSkip             `yaml:"adskip" koanf:"adskip"`
	Log       logging.Config     `yaml:"log" koanf:"log"`
}

func DefaultConfig() *Config {
	return &Config{
		Browser:   browser.DefaultConfig(),
		Server:    server.DefaultConfig(),
		Relay:     relay.DefaultConfig(),
		Timing:    tabfs.DefaultTiming(),
		Selectors: hostpage.DefaultSelectors(),
		Overlay:   Overlay{ReloadInterval: 2 * time.Second},
		AdSkip:    AdSkip{Config: adskip.DefaultConfig()},
		Log:       logging.DefaultConfig(),
	}
}

// envKey maps YTFS_TIMING__POLL_INTERVAL to timing.poll_interval.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
}

// Load builds the effective configuration. An empty path means DefaultFile
// if it exists; an explicit path must exist. A .env file in the working
// directory is read first and never overrides variables already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	k := koanf.New(".")
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if explicit || !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

// YAML renders the configuration the way a config file would hold it.
func (c *Config) YAML() ([]byte, error) {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshalling config: %w", err)
	}
	return data, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	data, err := c.YAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !c.Browser.Mode.Valid() {
		add("invalid browser.mode %q: must be one of launch, attach, kernel", c.Browser.Mode)
	}
	if c.Browser.Mode == browser.ModeAttach && c.Browser.RemoteURL == "" {
		add("browser.remote_url is required in attach mode")
	}
	if c.Browser.Mode == browser.ModeKernel && c.Browser.KernelBrowserID == "" {
		add("browser.kernel_browser_id is required in kernel mode")
	}

	if len(c.Server.Ports) == 0 {
		add("server.ports must not be empty")
	}
	for _, p := range append(append([]int{}, c.Server.Ports...), c.Relay.Ports...) {
		if p <= 0 || p > 65535 {
			add("invalid port %d", p)
		}
	}
	switch c.Relay.Transport {
	case relay.TransportHTTP, relay.TransportWebSocket:
	default:
		add("invalid relay.transport %q: must be http or websocket", c.Relay.Transport)
	}

	for name, d := range map[string]time.Duration{
		"timing.inject_debounce":     c.Timing.InjectDebounce,
		"timing.navigation_debounce": c.Timing.NavigationDebounce,
		"timing.heal_debounce":       c.Timing.HealDebounce,
		"timing.poll_interval":       c.Timing.PollInterval,
		"timing.ready_interval":      c.Timing.ReadyInterval,
	} {
		if d <= 0 {
			add("%s must be positive", name)
		}
	}
	if c.Timing.ReadyAttempts <= 0 {
		add("timing.ready_attempts must be positive")
	}

	if c.Selectors.ControlsContainer == "" {
		add("selectors.controls_container is required")
	}
	if len(c.Selectors.WatchPaths) == 0 {
		add("selectors.watch_paths must not be empty")
	}
	if len(c.Selectors.Hosts) == 0 {
		add("selectors.hosts must not be empty")
	}

	if c.Overlay.CSSFile != "" && c.Overlay.ReloadInterval <= 0 {
		add("overlay.reload_interval must be positive when css_file is set")
	}

	if c.AdSkip.Enabled {
		if c.AdSkip.Interval <= 0 {
			add("adskip.interval must be positive")
		}
		if c.AdSkip.MaxAttempts <= 0 {
			add("adskip.max_attempts must be positive")
		}
		if c.AdSkip.SpeedUpRate <= 1 {
			add("adskip.speed_up_rate must be greater than 1")
		}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
