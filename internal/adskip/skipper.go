// Package adskip gets the watch page past pre-roll and mid-roll ads.
//
// The Skipper is driven by Tick, which the tab controller calls on its own
// loop. It never sleeps; follow-up checks are picked up by a later tick.
package adskip

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// State is what the skipper needs to know about the page on each tick.
type State struct {
	Host string `json:"host"`
	Path string `json:"path"`

	AdShowing    bool `json:"adShowing"`
	PieCountdown bool `json:"pieCountdown"`
	Survey       bool `json:"survey"`

	PlayerFound bool `json:"playerFound"`
	// AdVideoReady is set when the main video element has a source, is
	// playing and knows its duration.
	AdVideoReady bool    `json:"adVideoReady"`
	HasVideo     bool    `json:"hasVideo"`
	PlaybackRate float64 `json:"playbackRate"`
}

func (s State) adDetected() bool {
	return s.AdShowing || s.PieCountdown || s.Survey
}

// Player is the page-side surface. The CDP driver implements it.
type Player interface {
	AdState(ctx context.Context) (State, error)
	SeekAdToEnd(ctx context.Context) error
	// ReloadAtCurrentTime reloads the current video at the current
	// position through the player API, which drops the ad.
	ReloadAtCurrentTime(ctx context.Context) error
	SetPlaybackRate(ctx context.Context, rate float64) error
}

type Config struct {
	Interval    time.Duration `yaml:"interval" koanf:"interval"`
	Throttle    time.Duration `yaml:"throttle" koanf:"throttle"`
	MaxAttempts int           `yaml:"max_attempts" koanf:"max_attempts"`
	Cooldown    time.Duration `yaml:"cooldown" koanf:"cooldown"`
	VerifyDelay time.Duration `yaml:"verify_delay" koanf:"verify_delay"`
	SpeedUpRate float64       `yaml:"speed_up_rate" koanf:"speed_up_rate"`
}

func DefaultConfig() Config {
	return Config{
		Interval:    500 * time.Millisecond,
		Throttle:    2 * time.Second,
		MaxAttempts: 5,
		Cooldown:    10 * time.Second,
		VerifyDelay: time.Second,
		SpeedUpRate: 16,
	}
}

const musicHost = "music.youtube.com"

type Skipper struct {
	player Player
	cfg    Config
	now    func() time.Time
	log    *zap.Logger

	attempts    int
	lastAttempt time.Time
	verifyAt    time.Time
	verifying   bool

	sped      bool
	savedRate float64
}

func New(player Player, cfg Config, log *zap.Logger) *Skipper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Skipper{
		player:    player,
		cfg:       cfg,
		now:       time.Now,
		log:       log,
		savedRate: 1,
	}
}

// Interval is how often Tick should be called.
func (s *Skipper) Interval() time.Duration { return s.cfg.Interval }

func (s *Skipper) Tick(ctx context.Context) {
	st, err := s.player.AdState(ctx)
	if err != nil {
		s.log.Debug("read ad state", zap.Error(err))
		return
	}
	if strings.HasPrefix(st.Path, "/shorts/") {
		return
	}

	now := s.now()
	if s.verifying && !now.Before(s.verifyAt) {
		s.verifying = false
		if st.AdShowing {
			s.log.Info("seeking did not end the ad, reloading")
			s.reload(ctx)
		} else {
			s.log.Info("ad skipped by seeking")
			s.attempts = 0
		}
		return
	}

	if !st.adDetected() {
		s.restoreSpeed(ctx, st)
		s.attempts = 0
		return
	}

	if now.Sub(s.lastAttempt) < s.cfg.Throttle {
		return
	}
	s.attempts++
	if s.attempts > s.cfg.MaxAttempts {
		if now.Sub(s.lastAttempt) < s.cfg.Cooldown {
			return
		}
		s.attempts = 0
	}
	s.lastAttempt = now

	if !st.PlayerFound {
		s.log.Debug("ad detected but player not found")
		return
	}

	if st.PieCountdown || st.Survey {
		s.log.Info("skipping countdown or survey ad by reload")
		s.reload(ctx)
		return
	}

	if !st.AdVideoReady {
		s.reload(ctx)
		return
	}

	if err := s.player.SeekAdToEnd(ctx); err != nil {
		s.log.Warn("seek ad to end", zap.Error(err))
		s.reload(ctx)
		return
	}
	if st.Host == musicHost {
		s.log.Info("ad skipped by seeking", zap.String("host", st.Host))
		s.attempts = 0
		return
	}
	s.verifying = true
	s.verifyAt = now.Add(s.cfg.VerifyDelay)
}

func (s *Skipper) reload(ctx context.Context) {
	if err := s.player.ReloadAtCurrentTime(ctx); err != nil {
		s.log.Warn("reload video", zap.Error(err))
		s.speedUp(ctx)
		return
	}
	s.log.Info("ad skipped by reload")
	s.attempts = 0
}

func (s *Skipper) speedUp(ctx context.Context) {
	st, err := s.player.AdState(ctx)
	if err != nil || !st.HasVideo || st.PlaybackRate == s.cfg.SpeedUpRate {
		return
	}
	if err := s.player.SetPlaybackRate(ctx, s.cfg.SpeedUpRate); err != nil {
		s.log.Warn("speed up ad", zap.Error(err))
		return
	}
	if !s.sped {
		s.savedRate = st.PlaybackRate
	}
	s.sped = true
	s.log.Info("speeding up ad", zap.Float64("from", st.PlaybackRate), zap.Float64("to", s.cfg.SpeedUpRate))
}

// restoreSpeed only undoes our own speed-up, so a rate the viewer picked
// is left alone.
func (s *Skipper) restoreSpeed(ctx context.Context, st State) {
	if !s.sped || !st.HasVideo {
		return
	}
	if st.PlaybackRate != s.savedRate {
		if err := s.player.SetPlaybackRate(ctx, s.savedRate); err != nil {
			s.log.Warn("restore playback rate", zap.Error(err))
			return
		}
		s.log.Info("restored playback rate", zap.Float64("rate", s.savedRate))
	}
	s.sped = false
}

// Stop puts the playback rate back if the skipper changed it.
func (s *Skipper) Stop(ctx context.Context) {
	st, err := s.player.AdState(ctx)
	if err != nil {
		return
	}
	s.restoreSpeed(ctx, st)
}
