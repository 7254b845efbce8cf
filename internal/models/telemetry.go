package models

import "time"

// minWindowPadding is the smallest slack applied on each side of a
// reconciliation window. Provider log timestamps are not synchronized with
// the benchmark host clock, so the window always extends beyond the observed
// invocation interval.
const minWindowPadding = time.Second

// Window is the half-open time interval used when querying provider
// telemetry backends.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow builds a reconciliation window around the observed first and
// last invocation times, padded outward by the given slack on both sides.
// Slack below one second is raised to one second.
func NewWindow(first, last time.Time, slack time.Duration) Window {
	if slack < minWindowPadding {
		slack = minWindowPadding
	}
	return Window{
		Start: first.Add(-slack),
		End:   last.Add(slack),
	}
}

// RawLogEntry is one candidate telemetry entry returned by a provider's log
// backend, before provider-specific matching. Message carries the raw
// textual payload when the backend produces one; Fields carries structured
// values keyed by backend-specific names.
type RawLogEntry struct {
	Timestamp time.Time
	Message   string
	Fields    map[string]string
}
