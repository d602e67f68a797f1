package model

import (
	"fmt"
	"time"
)

// Mode selects how much of each source event is carried to the destination.
type Mode string

const (
	// ModeFull mirrors events subject to the configured privacy level.
	ModeFull Mode = "full"
	// ModeBusyFree mirrors availability only, regardless of privacy level.
	ModeBusyFree Mode = "busy_free"
)

func (m Mode) Valid() bool {
	return m == ModeFull || m == ModeBusyFree
}

// Privacy controls redaction of event details before they are written out.
type Privacy string

const (
	PrivacyBusyOnly    Privacy = "busy_only"
	PrivacyFullDetails Privacy = "full_details"
)

func (p Privacy) Valid() bool {
	return p == PrivacyBusyOnly || p == PrivacyFullDetails
}

// Instance is one concrete occurrence of a source event after recurrence
// expansion. Occurrences of a recurring event share the UID and differ in
// Start. Start/End carry the timezone they were produced in: the source
// zone out of the expander, the destination zone after normalization.
type Instance struct {
	UID string // iCalendar UID

	Summary     string
	Description string
	Location    string

	AllDay bool
	Busy   bool // false for free/transparent events

	Start time.Time
	End   time.Time
}

// Record is an event read back from the destination calendar.
type Record struct {
	ID string // destination-assigned event ID

	Summary     string
	Description string

	AllDay bool

	Start time.Time
	End   time.Time

	// Key is the fingerprint recovered from the description marker. Empty
	// means the record was not written by this engine and must be left
	// alone.
	Key string
}

// Window bounds a sync run. From is inclusive, To exclusive.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Overlaps reports whether [start, end) intersects the window.
func (w Window) Overlaps(start, end time.Time) bool {
	return start.Before(w.To) && end.After(w.From)
}

// EventError records one failed destination operation. The run carries on
// past these; they are collected rather than returned.
type EventError struct {
	Key     string // fingerprint of the affected instance, when known
	Op      string // list, create, update, delete
	Kind    string
	Message string
	Time    time.Time
}

// SyncResult summarizes a single run of one sync configuration.
type SyncResult struct {
	ConfigID string

	Created     int
	Updated     int
	Deleted     int
	Skipped     int
	ParseErrors int

	Errors []EventError

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Ok reports whether the run completed without per-event errors.
func (r *SyncResult) Ok() bool {
	return len(r.Errors) == 0
}

// Summary returns a one-line digest suitable for logs and CLI output.
func (r *SyncResult) Summary() string {
	return fmt.Sprintf("created=%d updated=%d deleted=%d skipped=%d parse_errors=%d errors=%d",
		r.Created, r.Updated, r.Deleted, r.Skipped, r.ParseErrors, len(r.Errors))
}
