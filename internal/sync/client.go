package sync

import (
	"context"

	appLog "github.com/TeeRawk/calendar-sync-app-sub002/internal/log"
	"github.com/TeeRawk/calendar-sync-app-sub002/internal/model"
)

// Client is the destination calendar surface the engine drives. Every
// method must return errors already classified as *Error, so the gatekeeper
// and executor can branch on the kind without knowing the provider.
type Client interface {
	// List returns the events whose start falls inside the window,
	// expanded to single instances.
	List(ctx context.Context, calendarID string, w model.Window) ([]model.Record, error)
	// Insert writes a new event and returns its destination id. The
	// description already carries the embedded marker.
	Insert(ctx context.Context, calendarID string, inst model.Instance, description string) (string, error)
	// Update rewrites an existing event in place.
	Update(ctx context.Context, calendarID, eventID string, inst model.Instance, description string) error
	// Delete removes an event. Deleting an already-gone event is not an
	// error.
	Delete(ctx context.Context, calendarID, eventID string) error
}

// ClientFactory builds a Client for one run. Kept as a factory so
// credential problems surface per run instead of at startup.
type ClientFactory func(ctx context.Context) (Client, error)

// indexRecords maps managed records by fingerprint. Records without a
// decodable marker are unmanaged and ignored entirely. When two records
// carry the same fingerprint the first listed wins and the rest are
// returned as duplicates, which the engine schedules for deletion so
// earlier double-writes heal themselves.
func indexRecords(recs []model.Record) (map[string]model.Record, []model.Record) {
	byKey := make(map[string]model.Record, len(recs))
	var dupes []model.Record
	unmanaged := 0

	for _, rec := range recs {
		key, ok := RecordKey(rec)
		if !ok {
			unmanaged++
			continue
		}
		rec.Key = key
		if _, exists := byKey[key]; exists {
			dupes = append(dupes, rec)
			continue
		}
		byKey[key] = rec
	}

	if unmanaged > 0 {
		appLog.Debug("ignoring unmanaged destination events", "count", unmanaged)
	}
	return byKey, dupes
}
