package hostpage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsWatchPath(t *testing.T) {
	s := DefaultSelectors()

	tests := []struct {
		path string
		want bool
	}{
		{"/watch", true},
		{"/watch/", false},
		{"/watchlater", false},
		{"/results", false},
		{"/shorts/abc", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, s.IsWatchPath(tt.path))
		})
	}
}

func TestIsHost(t *testing.T) {
	s := DefaultSelectors()

	assert.True(t, s.IsHost("youtube.com"))
	assert.True(t, s.IsHost("www.youtube.com"))
	assert.True(t, s.IsHost("music.youtube.com"))
	assert.True(t, s.IsHost("WWW.YouTube.com:443"))
	assert.False(t, s.IsHost("notyoutube.com"))
	assert.False(t, s.IsHost("youtube.com.evil.test"))
	assert.False(t, s.IsHost(""))
}
