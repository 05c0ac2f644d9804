package adskip

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FakePlayer records calls and serves a mutable State.
type FakePlayer struct {
	State     State
	StateErr  error
	ReloadErr error

	Seeks   int
	Reloads int
	Rates   []float64

	SeekFunc func()
}

func (f *FakePlayer) AdState(ctx context.Context) (State, error) {
	return f.State, f.StateErr
}

func (f *FakePlayer) SeekAdToEnd(ctx context.Context) error {
	f.Seeks++
	if f.SeekFunc != nil {
		f.SeekFunc()
	}
	return nil
}

func (f *FakePlayer) ReloadAtCurrentTime(ctx context.Context) error {
	f.Reloads++
	if f.ReloadErr != nil {
		return f.ReloadErr
	}
	f.State.AdShowing = false
	f.State.PieCountdown = false
	f.State.Survey = false
	return nil
}

func (f *FakePlayer) SetPlaybackRate(ctx context.Context, rate float64) error {
	f.Rates = append(f.Rates, rate)
	f.State.PlaybackRate = rate
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newSkipper(p *FakePlayer) (*Skipper, *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := New(p, DefaultConfig(), nil)
	s.now = c.now
	return s, c
}

func adState() State {
	return State{
		Host:         "www.youtube.com",
		Path:         "/watch",
		AdShowing:    true,
		PlayerFound:  true,
		AdVideoReady: true,
		HasVideo:     true,
		PlaybackRate: 1,
	}
}

func TestNoAdDoesNothing(t *testing.T) {
	p := &FakePlayer{State: State{Path: "/watch", PlayerFound: true, HasVideo: true, PlaybackRate: 1.5}}
	s, _ := newSkipper(p)

	s.Tick(context.Background())

	assert.Zero(t, p.Seeks)
	assert.Zero(t, p.Reloads)
	assert.Empty(t, p.Rates, "a viewer-chosen rate is left alone")
}

func TestShortsIgnored(t *testing.T) {
	st := adState()
	st.Path = "/shorts/abc"
	p := &FakePlayer{State: st}
	s, _ := newSkipper(p)

	s.Tick(context.Background())

	assert.Zero(t, p.Seeks)
	assert.Zero(t, p.Reloads)
}

func TestSeekThenVerify(t *testing.T) {
	ctx := context.Background()
	p := &FakePlayer{State: adState()}
	p.SeekFunc = func() { p.State.AdShowing = false }
	s, c := newSkipper(p)

	s.Tick(ctx)
	assert.Equal(t, 1, p.Seeks)

	c.advance(500 * time.Millisecond)
	s.Tick(ctx)
	assert.Zero(t, p.Reloads, "verification waits for the delay")

	c.advance(500 * time.Millisecond)
	s.Tick(ctx)
	assert.Zero(t, p.Reloads)
	assert.Zero(t, s.attempts)
}

func TestSeekFailsFallsBackToReload(t *testing.T) {
	ctx := context.Background()
	p := &FakePlayer{State: adState()}
	s, c := newSkipper(p)

	s.Tick(ctx)
	require.Equal(t, 1, p.Seeks)

	c.advance(time.Second)
	s.Tick(ctx)
	assert.Equal(t, 1, p.Reloads)
	assert.False(t, p.State.AdShowing)
}

func TestMusicSeekCountsAsSuccess(t *testing.T) {
	ctx := context.Background()
	st := adState()
	st.Host = "music.youtube.com"
	p := &FakePlayer{State: st}
	s, c := newSkipper(p)

	s.Tick(ctx)
	c.advance(time.Second)
	s.Tick(ctx)

	assert.Equal(t, 1, p.Seeks)
	assert.Zero(t, p.Reloads)
}

func TestPieCountdownReloads(t *testing.T) {
	st := adState()
	st.AdShowing = false
	st.PieCountdown = true
	p := &FakePlayer{State: st}
	s, _ := newSkipper(p)

	s.Tick(context.Background())

	assert.Zero(t, p.Seeks)
	assert.Equal(t, 1, p.Reloads)
}

func TestThrottle(t *testing.T) {
	ctx := context.Background()
	st := adState()
	st.AdVideoReady = false
	p := &FakePlayer{State: st, ReloadErr: errors.New("no reload method")}
	s, c := newSkipper(p)

	s.Tick(ctx)
	c.advance(time.Second)
	s.Tick(ctx)
	assert.Equal(t, 1, p.Reloads)

	c.advance(time.Second)
	s.Tick(ctx)
	assert.Equal(t, 2, p.Reloads)
}

func TestCooldownAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	st := adState()
	st.AdVideoReady = false
	p := &FakePlayer{State: st, ReloadErr: errors.New("no reload method")}
	s, c := newSkipper(p)

	for range 5 {
		s.Tick(ctx)
		c.advance(2 * time.Second)
	}
	require.Equal(t, 5, p.Reloads)

	s.Tick(ctx)
	assert.Equal(t, 5, p.Reloads, "sixth attempt waits for the cooldown")

	c.advance(8 * time.Second)
	s.Tick(ctx)
	assert.Equal(t, 6, p.Reloads)
}

func TestSpeedUpAndRestore(t *testing.T) {
	ctx := context.Background()
	st := adState()
	st.AdVideoReady = false
	st.PlaybackRate = 1.25
	p := &FakePlayer{State: st, ReloadErr: errors.New("player API missing")}
	s, c := newSkipper(p)

	s.Tick(ctx)
	require.Equal(t, []float64{16}, p.Rates)

	c.advance(2 * time.Second)
	s.Tick(ctx)
	assert.Equal(t, []float64{16}, p.Rates, "already sped up")

	p.State.AdShowing = false
	c.advance(500 * time.Millisecond)
	s.Tick(ctx)
	assert.Equal(t, []float64{16, 1.25}, p.Rates)
	assert.Zero(t, s.attempts)
}

func TestPlayerMissing(t *testing.T) {
	st := adState()
	st.PlayerFound = false
	p := &FakePlayer{State: st}
	s, _ := newSkipper(p)

	s.Tick(context.Background())

	assert.Zero(t, p.Seeks)
	assert.Zero(t, p.Reloads)
	assert.Equal(t, 1, s.attempts)
}

func TestStateErrorIsIgnored(t *testing.T) {
	p := &FakePlayer{StateErr: errors.New("detached")}
	s, _ := newSkipper(p)

	assert.NotPanics(t, func() { s.Tick(context.Background()) })
	s.Stop(context.Background())
	assert.Empty(t, p.Rates)
}
