package cdp

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stylesheet is the overlay CSS, read from a user file when one is
// configured. The file is re-read only when its mtime changes.
type Stylesheet struct {
	path string

	mu      sync.RWMutex
	content string
	mtime   time.Time
}

// NewStylesheet returns a stylesheet backed by path. An empty path always
// yields the built-in CSS.
func NewStylesheet(path string) *Stylesheet {
	return &Stylesheet{path: path}
}

func (s *Stylesheet) Path() string { return s.path }

// Load returns the current CSS and whether it differs from what the last
// call returned.
func (s *Stylesheet) Load() (string, bool, error) {
	if s.path == "" {
		return defaultCSS, false, nil
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return "", false, err
	}
	mtime := info.ModTime()

	s.mu.RLock()
	content, cached := s.content, s.mtime
	s.mu.RUnlock()
	if !cached.IsZero() && cached.Equal(mtime) {
		return content, false, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", false, err
	}

	s.mu.Lock()
	changed := s.content != string(data)
	s.content = string(data)
	s.mtime = mtime
	s.mu.Unlock()
	return string(data), changed, nil
}

// Watch polls the file and calls apply with the new CSS whenever it
// changes. It returns when ctx is done.
func (s *Stylesheet) Watch(ctx context.Context, interval time.Duration, apply func(context.Context, string) error, log *zap.Logger) {
	if s.path == "" {
		return
	}
	if log == nil {
		log = zap.NewNop()
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		css, changed, err := s.Load()
		if err != nil {
			log.Debug("read stylesheet", zap.String("path", s.path), zap.Error(err))
			continue
		}
		if !changed {
			continue
		}
		if err := apply(ctx, css); err != nil {
			log.Warn("apply stylesheet", zap.String("path", s.path), zap.Error(err))
			continue
		}
		log.Info("stylesheet reloaded", zap.String("path", s.path))
	}
}
