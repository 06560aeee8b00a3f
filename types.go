package main

// Record is one flat row from the backend query service: field name to
// number, string, or nil. Ranking tables do not know their columns ahead
// of time, so the sort engine works on this shape directly.
type Record map[string]any

// ChannelSnapshot is one per-channel sample from the realtime feed,
// captured once per poll tick.
type ChannelSnapshot struct {
	Channel     string  `json:"channel"`
	Viewers     int64   `json:"viewers"`
	ChatRate1m  float64 `json:"chat_rate_1m"`
	ChatRate15m float64 `json:"chat_rate_15m"`
	Category    string  `json:"category"`
	TsCaptureMs int64   `json:"ts_capture_ms"`
}

const (
	EventViewerSpike    = "viewer_spike"
	EventChatSpike      = "chat_spike"
	EventCategoryChange = "category_change"
)

// EventFlags is the classification result for one channel at one tick.
// Derived from the (previous, current) snapshot pair only.
type EventFlags struct {
	ViewerSpike    bool `json:"viewer_spike"`
	ChatSpike      bool `json:"chat_spike"`
	CategoryChange bool `json:"category_change"`
}

func (f EventFlags) Any() bool {
	return f.ViewerSpike || f.ChatSpike || f.CategoryChange
}

// Kinds returns the event kind for each raised flag, in a fixed order so
// one tick always yields its timeline entries deterministically.
func (f EventFlags) Kinds() []string {
	out := make([]string, 0, 3)
	if f.ViewerSpike {
		out = append(out, EventViewerSpike)
	}
	if f.ChatSpike {
		out = append(out, EventChatSpike)
	}
	if f.CategoryChange {
		out = append(out, EventCategoryChange)
	}
	return out
}

// TimelineEntry is one classified event in the bounded timeline.
// Immutable once appended; Seq is the monotonic insertion order.
type TimelineEntry struct {
	Channel   string `json:"channel"`
	Kind      string `json:"kind"`
	Seq       uint64 `json:"seq"`
	TsEventMs int64  `json:"ts_event_ms"`
}

// EventRecord is the persisted form of one timeline event, enqueued to the
// ClickHouse writer alongside the snapshot that produced it.
type EventRecord struct {
	TsEventMs  int64   `json:"ts_event_ms"`
	Channel    string  `json:"channel"`
	Kind       string  `json:"kind"`
	Viewers    int64   `json:"viewers"`
	ChatRate1m float64 `json:"chat_rate_1m"`
	Category   string  `json:"category"`
}

// EventCountRow is one row of the ClickHouse event-count ranking.
type EventCountRow struct {
	Channel         string `json:"channel"`
	ViewerSpikes    int64  `json:"viewer_spikes"`
	ChatSpikes      int64  `json:"chat_spikes"`
	CategoryChanges int64  `json:"category_changes"`
	Total           int64  `json:"total"`
}

// ChannelView is the read-side copy of one monitored channel's state,
// handed to the HTTP API and websocket hub.
type ChannelView struct {
	Channel   string           `json:"channel"`
	Last      *ChannelSnapshot `json:"last,omitempty"`
	LastFlags EventFlags       `json:"last_flags"`
	Ticks     int64            `json:"ticks"`
}

// TickFrame is one websocket broadcast: the state of every watched channel
// plus the most recent timeline entries, sent after each completed tick.
type TickFrame struct {
	Type     string          `json:"type"`
	AtMs     int64           `json:"at_ms"`
	Channels []ChannelView   `json:"channels"`
	Timeline []TimelineEntry `json:"timeline"`
}
