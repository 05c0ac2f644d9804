package tabfs

import (
	"time"

	"go.uber.org/zap"

	"github.com/xander1421/yt-fs/internal/adskip"
	"github.com/xander1421/yt-fs/internal/hostpage"
)

type Timing struct {
	// InjectDebounce is how long a fresh injection is trusted without
	// re-checking the container.
	InjectDebounce     time.Duration `yaml:"inject_debounce" koanf:"inject_debounce"`
	NavigationDebounce time.Duration `yaml:"navigation_debounce" koanf:"navigation_debounce"`
	HealDebounce       time.Duration `yaml:"heal_debounce" koanf:"heal_debounce"`
	PollInterval       time.Duration `yaml:"poll_interval" koanf:"poll_interval"`
	ReadyInterval      time.Duration `yaml:"ready_interval" koanf:"ready_interval"`
	ReadyAttempts      int           `yaml:"ready_attempts" koanf:"ready_attempts"`
}

func DefaultTiming() Timing {
	return Timing{
		InjectDebounce:     time.Second,
		NavigationDebounce: 150 * time.Millisecond,
		HealDebounce:       150 * time.Millisecond,
		PollInterval:       500 * time.Millisecond,
		ReadyInterval:      250 * time.Millisecond,
		ReadyAttempts:      40,
	}
}

type Options struct {
	Selectors hostpage.Selectors
	Timing    Timing
	Logger    *zap.Logger
	// Player enables ad skipping when set.
	Player adskip.Player
	AdSkip adskip.Config
	Now    func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if len(o.Selectors.WatchPaths) == 0 {
		o.Selectors = hostpage.DefaultSelectors()
	}
	if o.Timing == (Timing{}) {
		o.Timing = DefaultTiming()
	}
	if o.Player != nil && o.AdSkip == (adskip.Config{}) {
		o.AdSkip = adskip.DefaultConfig()
	}
	return o
}
