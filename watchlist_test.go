package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWatchlist(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "channels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadWatchlist(t *testing.T) {
	path := writeWatchlist(t, `
watchlist:
  - channel: Alpha
  - channel: beta
  - channel: "  ALPHA  "
  - channel: ""
  - channel: gamma
`)

	channels, err := LoadWatchlist(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, channels)
}

func TestLoadWatchlistEmpty(t *testing.T) {
	path := writeWatchlist(t, "watchlist: []\n")

	_, err := LoadWatchlist(path)
	assert.Error(t, err)
}

func TestLoadWatchlistMissingFile(t *testing.T) {
	_, err := LoadWatchlist(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadWatchlistBadYAML(t *testing.T) {
	path := writeWatchlist(t, "watchlist: [unclosed\n")

	_, err := LoadWatchlist(path)
	assert.Error(t, err)
}
