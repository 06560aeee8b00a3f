package main

import "time"

// RunContext is computed once at program start and stamped into every
// ClickHouse row, so rows from separate monitor runs never mix.
type RunContext struct {
	ID    string
	Start time.Time
}
