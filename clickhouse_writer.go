package main

import (
	"context"
	"fmt"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
)

type ClickHouseWriterConfig struct {
	BatchSize  int
	FlushEvery time.Duration
	BufferSize int
}

// ClickHouseWriter batches snapshots and classified events into their
// tables. Ingestion never blocks on it: full buffers drop (counted).
type ClickHouseWriter struct {
	cfg  ClickHouseWriterConfig
	conn clickhouse.Conn
	run  RunContext
	log  *Logger
	m    *Metrics

	inSnap  chan ChannelSnapshot
	inEvent chan EventRecord
}

func NewClickHouseWriter(cfg ClickHouseWriterConfig, conn clickhouse.Conn, run RunContext, m *Metrics, log *Logger) *ClickHouseWriter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 500 * time.Millisecond
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10_000
	}
	return &ClickHouseWriter{
		cfg:     cfg,
		conn:    conn,
		run:     run,
		log:     log,
		m:       m,
		inSnap:  make(chan ChannelSnapshot, cfg.BufferSize),
		inEvent: make(chan EventRecord, cfg.BufferSize),
	}
}

func (w *ClickHouseWriter) TryEnqueueSnapshot(s ChannelSnapshot) bool {
	select {
	case w.inSnap <- s:
		return true
	default:
		return false
	}
}

func (w *ClickHouseWriter) TryEnqueueEvent(e EventRecord) bool {
	select {
	case w.inEvent <- e:
		return true
	default:
		return false
	}
}

func (w *ClickHouseWriter) Run(ctx context.Context) {
	t := time.NewTicker(w.cfg.FlushEvery)
	defer t.Stop()

	snaps := make([]ChannelSnapshot, 0, w.cfg.BatchSize)
	events := make([]EventRecord, 0, w.cfg.BatchSize)

	flushSnaps := func(buf []ChannelSnapshot) {
		w.flush(ctx, len(buf), func(ctxIns context.Context) error {
			return w.insertSnapshots(ctxIns, buf)
		})
	}
	flushEvents := func(buf []EventRecord) {
		w.flush(ctx, len(buf), func(ctxIns context.Context) error {
			return w.insertEvents(ctxIns, buf)
		})
	}

	for {
		select {
		case <-ctx.Done():
			// drain best-effort then final flush
		Drain:
			for {
				select {
				case s := <-w.inSnap:
					snaps = append(snaps, s)
				case e := <-w.inEvent:
					events = append(events, e)
				default:
					break Drain
				}
			}
			flushSnaps(snaps)
			flushEvents(events)
			return

		case s := <-w.inSnap:
			snaps = append(snaps, s)
			if len(snaps) >= w.cfg.BatchSize {
				tmp := snaps
				snaps = make([]ChannelSnapshot, 0, w.cfg.BatchSize)
				flushSnaps(tmp)
			}

		case e := <-w.inEvent:
			events = append(events, e)
			if len(events) >= w.cfg.BatchSize {
				tmp := events
				events = make([]EventRecord, 0, w.cfg.BatchSize)
				flushEvents(tmp)
			}

		case <-t.C:
			if len(snaps) > 0 {
				tmp := snaps
				snaps = make([]ChannelSnapshot, 0, w.cfg.BatchSize)
				flushSnaps(tmp)
			}
			if len(events) > 0 {
				tmp := events
				events = make([]EventRecord, 0, w.cfg.BatchSize)
				flushEvents(tmp)
			}
		}
	}
}

// flush runs one insert with bounded retry/backoff. Runs on the writer
// goroutine only, so backing off never stalls ingestion.
func (w *ClickHouseWriter) flush(ctx context.Context, n int, insert func(context.Context) error) {
	if n == 0 {
		return
	}
	const maxAttempts = 3

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		// insert timeout is independent of ctx so the final drain flush
		// still gets one attempt after cancellation
		ctxIns, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		start := time.Now()
		err := insert(ctxIns)
		cancel()
		lat := time.Since(start)

		if err == nil {
			w.m.CHInserted(int64(n), lat)
			return
		}

		lastErr = err
		w.m.CHInsertError()

		backoff := time.Duration(100*(1<<attempt)) * time.Millisecond
		if backoff > 1500*time.Millisecond {
			backoff = 1500 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}

	w.m.CHDropped(int64(n))
	w.log.Errorf("clickhouse insert failed; dropped %d rows: %v", n, lastErr)
}

func (w *ClickHouseWriter) insertSnapshots(ctx context.Context, buf []ChannelSnapshot) error {
	if w.conn == nil {
		return fmt.Errorf("no clickhouse conn")
	}

	const insertSQL = `
INSERT INTO stream_snapshots
(run_id, run_start, ts_capture, channel, viewers, chat_rate_1m, chat_rate_15m, category)
`

	b, err := w.conn.PrepareBatch(ctx, insertSQL)
	if err != nil {
		return err
	}

	for _, s := range buf {
		tsCapture := time.UnixMilli(s.TsCaptureMs).UTC()

		if err := b.Append(
			w.run.ID,
			w.run.Start,
			tsCapture,
			s.Channel,
			s.Viewers,
			s.ChatRate1m,
			s.ChatRate15m,
			s.Category,
		); err != nil {
			return err
		}
	}

	return b.Send()
}

func (w *ClickHouseWriter) insertEvents(ctx context.Context, buf []EventRecord) error {
	if w.conn == nil {
		return fmt.Errorf("no clickhouse conn")
	}

	const insertSQL = `
INSERT INTO stream_events
(run_id, run_start, ts_event, channel, kind, viewers, chat_rate_1m, category)
`

	b, err := w.conn.PrepareBatch(ctx, insertSQL)
	if err != nil {
		return err
	}

	for _, e := range buf {
		tsEvent := time.UnixMilli(e.TsEventMs).UTC()

		if err := b.Append(
			w.run.ID,
			w.run.Start,
			tsEvent,
			e.Channel,
			e.Kind,
			e.Viewers,
			e.ChatRate1m,
			e.Category,
		); err != nil {
			return err
		}
	}

	return b.Send()
}
