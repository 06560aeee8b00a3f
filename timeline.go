package main

import "sync"

const defaultTimelineCap = 20

// TimelineBuffer is the bounded recency log of classified events. Newest
// entry sits at index 0; once capacity is reached the oldest entry falls
// off the tail. One writer (the poll loop), any number of readers.
type TimelineBuffer struct {
	mu      sync.RWMutex
	cap     int
	seq     uint64
	entries []TimelineEntry
}

func NewTimelineBuffer(capacity int) *TimelineBuffer {
	if capacity <= 0 {
		capacity = defaultTimelineCap
	}
	return &TimelineBuffer{
		cap:     capacity,
		entries: make([]TimelineEntry, 0, capacity),
	}
}

// Append inserts one event at the head, evicting the oldest entry when the
// buffer is full, and returns the stored entry with its sequence number.
// The entry appears atomically: readers see it fully or not at all.
func (t *TimelineBuffer) Append(channel, kind string, tsEventMs int64) TimelineEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	e := TimelineEntry{
		Channel:   channel,
		Kind:      kind,
		Seq:       t.seq,
		TsEventMs: tsEventMs,
	}

	if len(t.entries) < t.cap {
		t.entries = append(t.entries, TimelineEntry{})
	}
	copy(t.entries[1:], t.entries)
	t.entries[0] = e
	return e
}

// Recent returns up to n entries, most recent first. The result is a copy;
// the buffer is never mutated by reads.
func (t *TimelineBuffer) Recent(n int) []TimelineEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n <= 0 || n > len(t.entries) {
		n = len(t.entries)
	}
	out := make([]TimelineEntry, n)
	copy(out, t.entries[:n])
	return out
}

func (t *TimelineBuffer) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *TimelineBuffer) Capacity() int { return t.cap }
