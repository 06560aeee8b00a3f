package main

import "sync"

// channelState is the keyed per-channel store: the last snapshot seen plus
// the flags it produced. Owned by the Monitor, keyed by channel name.
type channelState struct {
	channel   string
	last      *ChannelSnapshot
	lastFlags EventFlags
	ticks     int64
}

// Monitor owns the per-channel last-snapshot store and runs every delivered
// snapshot through the classifier: true flags become timeline entries and
// ClickHouse rows. Classification for a channel only ever reads that
// channel's own previous snapshot.
type Monitor struct {
	log *Logger

	mu       sync.RWMutex
	channels []string
	state    map[string]*channelState

	classifier *Classifier
	timeline   *TimelineBuffer
	chw        *ClickHouseWriter // optional
	metrics    *Metrics
}

func NewMonitor(channels []string, cl *Classifier, tl *TimelineBuffer, chw *ClickHouseWriter, m *Metrics, log *Logger) *Monitor {
	st := make(map[string]*channelState, len(channels))
	for _, c := range channels {
		st[c] = &channelState{channel: c}
	}
	return &Monitor{
		log:        log,
		channels:   append([]string(nil), channels...),
		state:      st,
		classifier: cl,
		timeline:   tl,
		chw:        chw,
		metrics:    m,
	}
}

func (mon *Monitor) Channels() []string {
	return append([]string(nil), mon.channels...)
}

func (mon *Monitor) Timeline() *TimelineBuffer { return mon.timeline }

// HandleSnapshot classifies one tick's snapshot against the channel's
// previous one, stores the new snapshot, and appends one timeline entry per
// raised flag. Snapshots for channels outside the watchlist are ignored.
func (mon *Monitor) HandleSnapshot(snap ChannelSnapshot) EventFlags {
	mon.metrics.IncSnapshot()

	mon.mu.Lock()
	st, ok := mon.state[snap.Channel]
	if !ok {
		mon.mu.Unlock()
		return EventFlags{}
	}
	prev := st.last
	flags := mon.classifier.Classify(prev, snap)

	cp := snap
	st.last = &cp
	st.lastFlags = flags
	st.ticks++
	mon.mu.Unlock()

	for _, kind := range flags.Kinds() {
		mon.timeline.Append(snap.Channel, kind, snap.TsCaptureMs)
		mon.metrics.IncEvent(kind)

		if mon.chw != nil {
			rec := EventRecord{
				TsEventMs:  snap.TsCaptureMs,
				Channel:    snap.Channel,
				Kind:       kind,
				Viewers:    snap.Viewers,
				ChatRate1m: snap.ChatRate1m,
				Category:   snap.Category,
			}
			if ok := mon.chw.TryEnqueueEvent(rec); !ok {
				mon.metrics.CHDropped(1)
			}
		}
	}

	// Persist every snapshot, flagged or not. Never block the poll loop on DB.
	if mon.chw != nil {
		if ok := mon.chw.TryEnqueueSnapshot(snap); !ok {
			mon.metrics.CHDropped(1)
		}
	}

	return flags
}

// SnapshotChannels returns copies of every watched channel's state, in
// watchlist order.
func (mon *Monitor) SnapshotChannels() []ChannelView {
	mon.mu.RLock()
	defer mon.mu.RUnlock()

	out := make([]ChannelView, 0, len(mon.channels))
	for _, c := range mon.channels {
		st, ok := mon.state[c]
		if !ok {
			continue
		}
		v := ChannelView{
			Channel:   st.channel,
			LastFlags: st.lastFlags,
			Ticks:     st.ticks,
		}
		if st.last != nil {
			cp := *st.last
			v.Last = &cp
		}
		out = append(out, v)
	}
	return out
}

// EventCountsInMem tallies event kinds per channel from whatever is still
// in the timeline buffer. Fallback ranking source when ClickHouse is off.
func (mon *Monitor) EventCountsInMem(limit int) []EventCountRow {
	entries := mon.timeline.Recent(0)

	byChannel := make(map[string]*EventCountRow, 16)
	for _, e := range entries {
		row, ok := byChannel[e.Channel]
		if !ok {
			row = &EventCountRow{Channel: e.Channel}
			byChannel[e.Channel] = row
		}
		switch e.Kind {
		case EventViewerSpike:
			row.ViewerSpikes++
		case EventChatSpike:
			row.ChatSpikes++
		case EventCategoryChange:
			row.CategoryChanges++
		}
		row.Total++
	}

	out := make([]EventCountRow, 0, len(byChannel))
	for _, row := range byChannel {
		out = append(out, *row)
	}
	sortEventCounts(out)

	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}
