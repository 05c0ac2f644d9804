package htmlpage

import (
	"maps"
	"sync"
)

// Storage is an in-memory stand-in for a tab's sessionStorage. It survives
// Reload and is dropped with the Page, which matches the browser's per-tab
// lifetime.
type Storage struct {
	mu   sync.RWMutex
	data map[string]string
	err  error
}

func NewStorage() *Storage {
	return &Storage{data: make(map[string]string)}
}

func (s *Storage) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.err != nil {
		return "", false, s.err
	}
	val, ok := s.data[key]
	return val, ok, nil
}

func (s *Storage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.data[key] = value
	return nil
}

func (s *Storage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	delete(s.data, key)
	return nil
}

// Fail makes every subsequent call return err, the way a browser does when
// storage is disabled or the quota is exhausted. Fail(nil) restores it.
func (s *Storage) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Snapshot returns a copy of the stored values, ignoring any injected
// failure.
func (s *Storage) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data)
}
