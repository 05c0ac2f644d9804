package tabfs

import (
	"context"

	"go.uber.org/zap"

	"github.com/xander1421/yt-fs/internal/hostpage"
	"github.com/xander1421/yt-fs/internal/page"
)

// SessionState is the persisted enabled flag. It lives in the tab's session
// storage so it survives reloads of the same tab and nothing else.
type SessionState struct {
	page page.Page
	log  *zap.Logger
}

func NewSessionState(p page.Page, log *zap.Logger) *SessionState {
	return &SessionState{page: p, log: log}
}

// Get returns the flag. Storage failures read as disabled.
func (s *SessionState) Get(ctx context.Context) bool {
	v, ok, err := s.page.StorageGet(ctx, hostpage.StorageKey)
	if err != nil {
		s.log.Debug("session storage read failed", zap.Error(err))
		return false
	}
	return ok && v == hostpage.StorageValue
}

// Set writes the flag. Storage failures are dropped.
func (s *SessionState) Set(ctx context.Context, enabled bool) {
	var err error
	if enabled {
		err = s.page.StorageSet(ctx, hostpage.StorageKey, hostpage.StorageValue)
	} else {
		err = s.page.StorageRemove(ctx, hostpage.StorageKey)
	}
	if err != nil {
		s.log.Debug("session storage write failed", zap.Bool("enabled", enabled), zap.Error(err))
	}
}
