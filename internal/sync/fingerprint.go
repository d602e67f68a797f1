package sync

import (
	"strings"
	"time"

	"github.com/TeeRawk/calendar-sync-app-sub002/internal/model"
)

// markerPrefix introduces the fingerprint line embedded in destination
// descriptions. The prefix doubles as the encoding version: a future format
// would add a new prefix and DecodeMarker would try newest first.
const markerPrefix = "Original UID: "

// InstanceKey builds the stable fingerprint for one occurrence:
// uid + ":" + normalized start. The start is truncated to whole seconds and
// rendered in UTC, so destination-side rounding and offset spelling
// differences cannot produce two keys for the same instant. Callers pass
// the already-normalized start.
func InstanceKey(uid string, start time.Time) string {
	return uid + ":" + start.Truncate(time.Second).UTC().Format(time.RFC3339)
}

// EncodeMarker appends the marker line to a destination description. The
// description may be empty (busy_only runs clear it first).
func EncodeMarker(description, uid string) string {
	line := markerPrefix + uid
	if description == "" {
		return line
	}
	return description + "\n\n" + line
}

// DecodeMarker recovers the source UID from a destination description.
// ok is false when no marker line is present, which marks the record as
// unmanaged: never updated, never deleted.
func DecodeMarker(description string) (uid string, ok bool) {
	for _, line := range strings.Split(description, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, markerPrefix) {
			continue
		}
		if uid := strings.TrimSpace(strings.TrimPrefix(line, markerPrefix)); uid != "" {
			return uid, true
		}
	}
	return "", false
}

// StripMarker removes the marker line and its separating blank line so a
// destination description can be compared against the source text.
func StripMarker(description string) string {
	if description == "" {
		return ""
	}
	lines := strings.Split(description, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), markerPrefix) {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\r\n")
}

// RecordKey reassembles a destination record's fingerprint from its marker
// and its own stored start time. The start goes through the same truncation
// and UTC rendering as the source side, so a round-tripped event always
// lands on the identical key.
func RecordKey(rec model.Record) (string, bool) {
	uid, ok := DecodeMarker(rec.Description)
	if !ok {
		return "", false
	}
	return InstanceKey(uid, rec.Start), true
}
