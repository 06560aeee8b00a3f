package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshotShape(t *testing.T) {
	m := NewMetrics(time.Now().Add(-time.Minute), "1.2.3", "abc", "today")

	m.IncTick()
	m.IncSnapshot()
	m.IncSnapshot()
	m.IncFetchError()
	m.IncEvent(EventViewerSpike)
	m.IncEvent(EventChatSpike)
	m.IncEvent(EventChatSpike)
	m.IncEvent(EventCategoryChange)
	m.IncEvent("unknown_kind") // ignored
	m.CHDropped(3)

	snap := m.Snapshot()
	assert.Equal(t, true, snap["ok"])

	poll, ok := snap["poll"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(1), poll["ticks_total"])
	assert.Equal(t, int64(2), poll["snapshots_total"])
	assert.Equal(t, int64(1), poll["fetch_errors"])

	events, ok := snap["events"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(1), events["viewer_spikes"])
	assert.Equal(t, int64(2), events["chat_spikes"])
	assert.Equal(t, int64(1), events["category_changes"])

	ch, ok := snap["clickhouse"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(3), ch["dropped_rows_total"])

	build, ok := snap["build"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.2.3", build["version"])
}

func TestMetricsWSGauge(t *testing.T) {
	m := NewMetrics(time.Now(), "test", "none", "unknown")

	m.WSConnected()
	m.WSConnected()
	m.WSDisconnected()
	m.WSDroppedFrame()

	snap := m.Snapshot()
	ws, ok := snap["ws"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(1), ws["clients"])
	assert.Equal(t, int64(1), ws["dropped_frames"])
}
