package cdp

import (
	"context"
	"errors"
	"fmt"

	"github.com/xander1421/yt-fs/internal/adskip"
)

const adStateJS = `(() => {
  const player = document.querySelector('#movie_player') || document.querySelector('#ytd-player');
  const video = document.querySelector('video.html5-main-video');
  const any = video || document.querySelector('video');
  return {
    host: location.hostname,
    path: location.pathname,
    adShowing: document.querySelector('.ad-showing') !== null,
    pieCountdown: document.querySelector('.ytp-ad-timed-pie-countdown-container') !== null,
    survey: document.querySelector('.ytp-ad-survey-questions') !== null,
    playerFound: player !== null,
    adVideoReady: !!(video && video.src && !video.paused && !isNaN(video.duration)),
    hasVideo: any !== null,
    playbackRate: any ? any.playbackRate : 0,
  };
})()`

const seekJS = `(() => {
  const video = document.querySelector('video.html5-main-video');
  if (!video || isNaN(video.duration)) return false;
  video.currentTime = video.duration;
  return true;
})()`

const reloadJS = `(() => {
  const el = document.querySelector('#movie_player') || document.querySelector('#ytd-player');
  if (!el) return 'player not found';
  const player = typeof el.getPlayer === 'function' ? el.getPlayer() : el;
  if (!player || typeof player.getVideoData !== 'function') return 'getVideoData not available';
  const data = player.getVideoData();
  if (!data || !data.video_id) return 'no video data';
  const videoId = data.video_id;
  const start = Math.floor(typeof player.getCurrentTime === 'function' ? player.getCurrentTime() : 0);
  try {
    if (typeof el.loadVideoWithPlayerVars === 'function') {
      el.loadVideoWithPlayerVars({videoId, start});
    } else if (typeof el.loadVideoByPlayerVars === 'function') {
      el.loadVideoByPlayerVars({videoId, start});
    } else if (typeof player.loadVideoById === 'function') {
      player.loadVideoById(videoId, start);
    } else {
      return 'no reload method';
    }
  } catch (e) {
    return String(e);
  }
  return '';
})()`

var errNoVideo = errors.New("no ad video")

// Player exposes the watch page's player to the ad skipper.
type Player struct {
	d *Driver
}

var _ adskip.Player = Player{}

func (d *Driver) Player() Player { return Player{d: d} }

func (p Player) AdState(ctx context.Context) (adskip.State, error) {
	var st adskip.State
	err := p.d.eval(ctx, adStateJS, &st)
	return st, err
}

func (p Player) SeekAdToEnd(ctx context.Context) error {
	var ok bool
	if err := p.d.eval(ctx, seekJS, &ok); err != nil {
		return err
	}
	if !ok {
		return errNoVideo
	}
	return nil
}

func (p Player) ReloadAtCurrentTime(ctx context.Context) error {
	var msg string
	if err := p.d.eval(ctx, reloadJS, &msg); err != nil {
		return err
	}
	if msg != "" {
		return fmt.Errorf("reload video: %s", msg)
	}
	return nil
}

func (p Player) SetPlaybackRate(ctx context.Context, rate float64) error {
	var ok bool
	expr := fmt.Sprintf(`(() => {
  const video = document.querySelector('video.html5-main-video') || document.querySelector('video');
  if (!video) return false;
  video.playbackRate = %g;
  return true;
})()`, rate)
	if err := p.d.eval(ctx, expr, &ok); err != nil {
		return err
	}
	if !ok {
		return errNoVideo
	}
	return nil
}
