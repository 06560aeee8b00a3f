package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMonitor(channels ...string) *Monitor {
	if len(channels) == 0 {
		channels = []string{"alpha", "beta"}
	}
	m := NewMetrics(time.Now(), "test", "none", "unknown")
	return NewMonitor(channels, testClassifier(), NewTimelineBuffer(20), nil, m, NewLogger("error"))
}

func TestMonitorFirstSnapshotNoEvents(t *testing.T) {
	mon := testMonitor()

	flags := mon.HandleSnapshot(snap("alpha", 50_000, 300, "Just Chatting"))
	assert.False(t, flags.Any())
	assert.Equal(t, 0, mon.Timeline().Len())
}

func TestMonitorSpikeAppendsOneEntryPerFlag(t *testing.T) {
	mon := testMonitor()

	mon.HandleSnapshot(snap("alpha", 100, 2, "IRL"))
	flags := mon.HandleSnapshot(snap("alpha", 1000, 20, "Music"))

	assert.True(t, flags.ViewerSpike)
	assert.True(t, flags.ChatSpike)
	assert.True(t, flags.CategoryChange)

	entries := mon.Timeline().Recent(0)
	require.Len(t, entries, 3)
	kinds := map[string]bool{}
	for _, e := range entries {
		assert.Equal(t, "alpha", e.Channel)
		kinds[e.Kind] = true
	}
	assert.Len(t, kinds, 3)
}

func TestMonitorIgnoresUnwatchedChannel(t *testing.T) {
	mon := testMonitor("alpha")

	flags := mon.HandleSnapshot(snap("stranger", 100, 2, "IRL"))
	assert.False(t, flags.Any())

	views := mon.SnapshotChannels()
	require.Len(t, views, 1)
	assert.Nil(t, views[0].Last)
}

func TestMonitorPerChannelIsolation(t *testing.T) {
	mon := testMonitor("alpha", "beta")

	// alpha establishes a baseline; beta's first snapshot arrives later
	mon.HandleSnapshot(snap("alpha", 100, 2, "IRL"))
	flags := mon.HandleSnapshot(snap("beta", 90_000, 400, "Music"))
	assert.False(t, flags.Any(), "beta's first observation must not see alpha's baseline")

	// alpha spikes; beta stays flat
	aflags := mon.HandleSnapshot(snap("alpha", 1000, 2, "IRL"))
	bflags := mon.HandleSnapshot(snap("beta", 90_000, 400, "Music"))
	assert.True(t, aflags.ViewerSpike)
	assert.False(t, bflags.Any())

	for _, e := range mon.Timeline().Recent(0) {
		assert.Equal(t, "alpha", e.Channel)
	}
}

func TestMonitorSnapshotChannelsCopies(t *testing.T) {
	mon := testMonitor("alpha")
	mon.HandleSnapshot(snap("alpha", 100, 2, "IRL"))

	views := mon.SnapshotChannels()
	require.Len(t, views, 1)
	require.NotNil(t, views[0].Last)
	assert.Equal(t, int64(100), views[0].Last.Viewers)
	assert.Equal(t, int64(1), views[0].Ticks)

	// mutating the copy must not leak into the monitor
	views[0].Last.Viewers = 999
	again := mon.SnapshotChannels()
	assert.Equal(t, int64(100), again[0].Last.Viewers)
}

func TestMonitorEventCountsInMem(t *testing.T) {
	mon := testMonitor("alpha", "beta")

	mon.HandleSnapshot(snap("alpha", 100, 2, "IRL"))
	mon.HandleSnapshot(snap("beta", 100, 2, "IRL"))
	mon.HandleSnapshot(snap("alpha", 1000, 20, "Music")) // 3 events
	mon.HandleSnapshot(snap("beta", 1000, 2, "IRL"))     // 1 event

	rows := mon.EventCountsInMem(10)
	require.Len(t, rows, 2)
	assert.Equal(t, "alpha", rows[0].Channel)
	assert.Equal(t, int64(3), rows[0].Total)
	assert.Equal(t, "beta", rows[1].Channel)
	assert.Equal(t, int64(1), rows[1].ViewerSpikes)

	rows = mon.EventCountsInMem(1)
	require.Len(t, rows, 1)
	assert.Equal(t, "alpha", rows[0].Channel)
}
