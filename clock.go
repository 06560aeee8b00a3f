package main

import (
	"fmt"
	"strings"
	"time"
)

// FloorMinute truncates t to its minute in UTC; ClickHouse aggregation
// windows are queried on minute boundaries.
func FloorMinute(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

// MinuteKey formats a capture timestamp as its UTC day and minute, the
// bucket key shape used by the event rollup table.
func MinuteKey(tsMs int64) (day string, minute string) {
	t := time.UnixMilli(tsMs).UTC()
	return t.Format("2006-01-02"), t.Format("15:04")
}

// ParseWindow reads a lookback like "30m" or "2h" for the event-rank
// endpoints. Bare integers are taken as minutes. Bounded to [1m, 24h].
func ParseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty window")
	}
	if !strings.ContainsAny(s, "smh") {
		s += "m"
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < time.Minute || d > 24*time.Hour {
		return 0, fmt.Errorf("window %s out of range (1m..24h)", d)
	}
	return d, nil
}
