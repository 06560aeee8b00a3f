package main

import (
	"context"
	"sync"
	"time"
)

type PollerConfig struct {
	Interval    time.Duration
	Concurrency int
	Log         *Logger
}

// Poller drives the tick loop: every interval it fans out one snapshot
// fetch per watched channel, feeds each result to the monitor as it lands,
// and broadcasts a frame once the tick completes. Channels are independent:
// a slow or failing fetch never holds up another channel's classification.
type Poller struct {
	cfg     PollerConfig
	feed    *FeedClient
	mon     *Monitor
	hub     *Hub // optional
	metrics *Metrics
}

func NewPoller(cfg PollerConfig, feed *FeedClient, mon *Monitor, hub *Hub, m *Metrics) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Poller{cfg: cfg, feed: feed, mon: mon, hub: hub, metrics: m}
}

func (p *Poller) Run(ctx context.Context) {
	t := time.NewTicker(p.cfg.Interval)
	defer t.Stop()

	// first tick immediately, then on cadence
	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	p.metrics.IncTick()

	channels := p.mon.Channels()
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, name := range channels {
		wg.Add(1)
		go func(channel string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			ctxFetch, cancel := context.WithTimeout(ctx, p.cfg.Interval)
			snap, err := p.feed.FetchSnapshot(ctxFetch, channel)
			cancel()

			if err != nil {
				if ctx.Err() != nil {
					// shutdown mid-tick: discard, nothing was written
					return
				}
				p.metrics.IncFetchError()
				p.cfg.Log.Debugf("snapshot fetch failed channel=%s: %v", channel, err)
				return
			}

			p.mon.HandleSnapshot(snap)
		}(name)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return
	}

	if p.hub != nil {
		p.hub.Broadcast(TickFrame{
			Type:     "tick",
			AtMs:     time.Now().UnixMilli(),
			Channels: p.mon.SnapshotChannels(),
			Timeline: p.mon.Timeline().Recent(p.mon.Timeline().Capacity()),
		})
	}
}
