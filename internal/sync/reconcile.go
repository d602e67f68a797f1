package sync

import (
	"sort"
	"time"

	"github.com/TeeRawk/calendar-sync-app-sub002/internal/model"
)

// Plan is the computed difference between desired instances and existing
// managed records. Applying an already-applied plan's inputs again yields
// an empty plan.
type Plan struct {
	Creates []model.Instance
	Updates []UpdateOp
	Deletes []model.Record
	Skipped int
}

// UpdateOp pairs an existing record with the instance that should replace
// its contents.
type UpdateOp struct {
	Record  model.Record
	Desired model.Instance
}

// Empty reports whether the plan has no destination writes.
func (p Plan) Empty() bool {
	return len(p.Creates) == 0 && len(p.Updates) == 0 && len(p.Deletes) == 0
}

// BuildPlan diffs the desired instances against the indexed destination
// records:
//
//   - desired key absent from existing: create
//   - present with any observable field changed: update
//   - present and identical: skipped
//   - existing managed key no longer desired: delete
//
// Both inputs are bounded to the same window, so deletions are too: a
// record outside the listed window never reaches this function and is
// never touched. Unmanaged records were dropped during indexing.
func BuildPlan(desired []model.Instance, existing map[string]model.Record) Plan {
	var plan Plan
	seen := make(map[string]bool, len(desired))

	for _, inst := range desired {
		key := InstanceKey(inst.UID, inst.Start)
		if seen[key] {
			// Two desired instances collapsing onto one fingerprint sync once.
			continue
		}
		seen[key] = true

		rec, ok := existing[key]
		if !ok {
			plan.Creates = append(plan.Creates, inst)
			continue
		}
		if recordNeedsUpdate(rec, inst) {
			plan.Updates = append(plan.Updates, UpdateOp{Record: rec, Desired: inst})
		} else {
			plan.Skipped++
		}
	}

	for key, rec := range existing {
		if !seen[key] {
			plan.Deletes = append(plan.Deletes, rec)
		}
	}

	// Map iteration order is random; keep deletes stable for logs and tests.
	sort.Slice(plan.Deletes, func(i, j int) bool {
		a, b := plan.Deletes[i], plan.Deletes[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.ID < b.ID
	})

	return plan
}

// recordNeedsUpdate compares the observable fields: start, end, the all-day
// flag, summary, and description with the marker line set aside.
func recordNeedsUpdate(rec model.Record, inst model.Instance) bool {
	if !sameInstant(rec.Start, inst.Start) || !sameInstant(rec.End, inst.End) {
		return true
	}
	if rec.AllDay != inst.AllDay {
		return true
	}
	if rec.Summary != inst.Summary {
		return true
	}
	if StripMarker(rec.Description) != inst.Description {
		return true
	}
	return false
}

// sameInstant compares instants at second precision, the finest the
// destination stores.
func sameInstant(a, b time.Time) bool {
	return a.Truncate(time.Second).Equal(b.Truncate(time.Second))
}
