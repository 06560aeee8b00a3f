package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type Metrics struct {
	start time.Time

	version   string
	commit    string
	buildDate string

	ticksTotal     atomic.Int64
	snapshotsTotal atomic.Int64
	fetchErrors    atomic.Int64

	viewerSpikes    atomic.Int64
	chatSpikes      atomic.Int64
	categoryChanges atomic.Int64

	wsClients       atomic.Int64
	wsDroppedFrames atomic.Int64

	// ClickHouse writer metrics
	chInsertedRows        atomic.Int64
	chInsertErrors        atomic.Int64
	chDroppedRows         atomic.Int64
	chLastInsertLatencyMs atomic.Int64
	chLastInsertAtMs      atomic.Int64

	mu      sync.Mutex
	samples []rateSample // appended each second, trimmed to ~30s
}

type rateSample struct {
	at        time.Time
	snapshots int64
}

func NewMetrics(start time.Time, version, commit, buildDate string) *Metrics {
	return &Metrics{
		start:     start,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		samples:   make([]rateSample, 0, 16),
	}
}

func (m *Metrics) IncTick()       { m.ticksTotal.Add(1) }
func (m *Metrics) IncSnapshot()   { m.snapshotsTotal.Add(1) }
func (m *Metrics) IncFetchError() { m.fetchErrors.Add(1) }

func (m *Metrics) IncEvent(kind string) {
	switch kind {
	case EventViewerSpike:
		m.viewerSpikes.Add(1)
	case EventChatSpike:
		m.chatSpikes.Add(1)
	case EventCategoryChange:
		m.categoryChanges.Add(1)
	}
}

func (m *Metrics) WSConnected()    { m.wsClients.Add(1) }
func (m *Metrics) WSDisconnected() { m.wsClients.Add(-1) }
func (m *Metrics) WSDroppedFrame() { m.wsDroppedFrames.Add(1) }

func (m *Metrics) CHInserted(n int64, latency time.Duration) {
	m.chInsertedRows.Add(n)
	m.chLastInsertLatencyMs.Store(latency.Milliseconds())
	m.chLastInsertAtMs.Store(time.Now().UnixMilli())
}
func (m *Metrics) CHInsertError()    { m.chInsertErrors.Add(1) }
func (m *Metrics) CHDropped(n int64) { m.chDroppedRows.Add(n) }

func (m *Metrics) Run(ctx context.Context) {
	t := time.NewTicker(1 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			sn := m.snapshotsTotal.Load()

			m.mu.Lock()
			m.samples = append(m.samples, rateSample{at: now, snapshots: sn})
			// keep last ~30s
			if len(m.samples) > 40 {
				m.samples = m.samples[len(m.samples)-40:]
			}
			m.mu.Unlock()
		}
	}
}

func (m *Metrics) Snapshot() map[string]any {
	uptime := time.Since(m.start)

	r1, r5 := m.snapshotRates()

	return map[string]any{
		"ok": true,

		"uptime_ms": uptime.Milliseconds(),
		"uptime":    uptime.String(),

		"build": map[string]any{
			"version":    m.version,
			"commit":     m.commit,
			"build_date": m.buildDate,
		},

		"poll": map[string]any{
			"ticks_total":     m.ticksTotal.Load(),
			"snapshots_total": m.snapshotsTotal.Load(),
			"fetch_errors":    m.fetchErrors.Load(),
			"snapshots_per_s": map[string]any{
				"1s": r1,
				"5s": r5,
			},
		},

		"events": map[string]any{
			"viewer_spikes":    m.viewerSpikes.Load(),
			"chat_spikes":      m.chatSpikes.Load(),
			"category_changes": m.categoryChanges.Load(),
		},

		"ws": map[string]any{
			"clients":        m.wsClients.Load(),
			"dropped_frames": m.wsDroppedFrames.Load(),
		},

		"clickhouse": map[string]any{
			"inserted_rows_total":    m.chInsertedRows.Load(),
			"insert_errors_total":    m.chInsertErrors.Load(),
			"dropped_rows_total":     m.chDroppedRows.Load(),
			"last_insert_latency_ms": m.chLastInsertLatencyMs.Load(),
			"last_insert_at_unix_ms": m.chLastInsertAtMs.Load(),
		},
	}
}

func (m *Metrics) snapshotRates() (rate1 float64, rate5 float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.samples) < 2 {
		return 0, 0
	}
	latest := m.samples[len(m.samples)-1]

	// 1s rate: compare with prior sample
	prev := m.samples[len(m.samples)-2]
	dt := latest.at.Sub(prev.at).Seconds()
	if dt > 0 {
		rate1 = float64(latest.snapshots-prev.snapshots) / dt
	}

	// 5s rate: find sample >= 5s ago
	var older *rateSample
	for i := len(m.samples) - 1; i >= 0; i-- {
		if latest.at.Sub(m.samples[i].at) >= 5*time.Second {
			older = &m.samples[i]
			break
		}
	}
	if older != nil {
		dt5 := latest.at.Sub(older.at).Seconds()
		if dt5 > 0 {
			rate5 = float64(latest.snapshots-older.snapshots) / dt5
		}
	}
	return
}
