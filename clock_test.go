package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloorMinute(t *testing.T) {
	in := time.Date(2025, 3, 14, 15, 9, 26, 535_000_000, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 14, 15, 9, 0, 0, time.UTC), FloorMinute(in))
}

func TestMinuteKey(t *testing.T) {
	ts := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC).UnixMilli()
	day, minute := MinuteKey(ts)
	assert.Equal(t, "2025-03-14", day)
	assert.Equal(t, "15:09", minute)
}

func TestParseWindow(t *testing.T) {
	d, err := ParseWindow("30m")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, d)

	d, err = ParseWindow("2h")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, d)

	// bare integers are minutes
	d, err = ParseWindow("45")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, d)

	for _, bad := range []string{"", "0m", "25h", "soon"} {
		_, err := ParseWindow(bad)
		assert.Error(t, err, "input %q", bad)
	}
}
