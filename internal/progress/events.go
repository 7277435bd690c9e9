// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package progress defines the events a batch run emits while it works
// through its query files, and a terminal renderer for them. The runner
// produces events; the CLI decides whether and how to show them.
package progress

import "time"

// EventType enumerates known progress event kinds.
type EventType string

const (
	// EventQueryStarted is emitted before a query file is read.
	EventQueryStarted EventType = "query_started"
	// EventQueryDone is emitted after the CSV has been moved into place.
	EventQueryDone EventType = "query_done"
	// EventQueryFailed carries the error that stopped one query file.
	EventQueryFailed EventType = "query_failed"
)

// Event is a generic container for progress updates.
// Only a subset of fields is set depending on Type.
type Event struct {
	Type EventType `json:"type"`

	Source string `json:"source"`
	Output string `json:"output,omitempty"`

	// Position in the run
	Index int `json:"index"` // 1-based
	Total int `json:"total"`

	// Done
	Rows     int64         `json:"rows,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`

	// Failed
	Err error `json:"-"`
}

// Sink receives events. A nil Sink drops them.
type Sink func(Event)

// Emit delivers ev to s if s is set.
func (s Sink) Emit(ev Event) {
	if s != nil {
		s(ev)
	}
}
