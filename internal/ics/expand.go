package ics

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "github.com/TeeRawk/calendar-sync-app-sub002/internal/log"
	"github.com/TeeRawk/calendar-sync-app-sub002/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// ExpandConfig controls recurrence expansion. The window is half-open:
// occurrences with RangeStart <= start < RangeEnd are produced, never an
// occurrence starting outside it.
type ExpandConfig struct {
	RangeStart time.Time // inclusive
	RangeEnd   time.Time // exclusive

	// MaxOccurrencesPerEvent caps pathological rules. Zero means the
	// package default (5000).
	MaxOccurrencesPerEvent int
}

// ExpandResult carries the concrete instances plus any constructs that had
// to be skipped or truncated along the way.
type ExpandResult struct {
	Instances []model.Instance
	Issues    []ParseIssue
}

// ExpandOccurrences turns parsed events into concrete instances within the
// window. It handles:
//
//   - single non-recurring events (kept when they start inside the window)
//   - RRULE recurrence bounded to the window, preserving event duration
//   - EXDATE removal
//   - RECURRENCE-ID overrides, including cancelled occurrences
//   - all-day semantics
//
// Instances keep their source timezone; conversion to the destination zone
// happens exactly once, later, in the sync engine.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if !cfg.RangeEnd.After(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is not after RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Group base events and overrides by UID.
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)

	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	instances := make([]model.Instance, 0)

	for uid, baseEvents := range baseByUID {
		ov := overridesByUID[uid]

		for _, ev := range baseEvents {
			if ev.Cancelled {
				continue
			}
			out, issues := expandEvent(ev, ov, cfg)
			instances = append(instances, out...)
			result.Issues = append(result.Issues, issues...)
		}
	}

	// Overrides whose base event is absent from the feed (e.g. the base
	// fell outside the published range) still represent real occurrences.
	for uid, ovs := range overridesByUID {
		if _, ok := baseByUID[uid]; ok {
			continue
		}
		for _, ov := range ovs {
			if ov.Cancelled {
				continue
			}
			if startsInWindow(ov.Start, cfg) {
				instances = append(instances, makeInstance(ov, ov.Start, ov.End))
			}
		}
	}

	result.Instances = instances
	return result, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Instance, []ParseIssue) {
	if ev.RawRRule == "" {
		return expandSingleEvent(ev, overrides, cfg), nil
	}
	return expandRecurringEvent(ev, overrides, cfg)
}

func expandSingleEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.Instance {
	start, end := ev.Start, ev.End

	// An override targeting the event's own start replaces it outright.
	if o, ok := findOverrideForStart(overrides, start); ok {
		if o.Cancelled {
			return nil
		}
		ev, start, end = o, o.Start, o.End
	}

	if !startsInWindow(start, cfg) {
		return nil
	}
	return []model.Instance{makeInstance(ev, start, end)}
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Instance, []ParseIssue) {
	out := make([]model.Instance, 0)

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Warn("skipping event with unparseable RRULE", "uid", ev.UID, "rrule", ev.RawRRule, "err", err)
		return out, []ParseIssue{{UID: ev.UID, Reason: fmt.Sprintf("bad RRULE %q, event skipped", ev.RawRRule)}}
	}

	// Anchor the rule at the event's DTSTART.
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)

	for _, ex := range ev.ExDates {
		// Align EXDATE with the event's zone before exclusion matching.
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Between works in the rule's zone; translate the window into it.
	rangeStart := cfg.RangeStart.In(ev.Start.Location())
	rangeEnd := cfg.RangeEnd.In(ev.Start.Location())

	occTimes := set.Between(rangeStart, rangeEnd, true)

	var issues []ParseIssue
	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		issues = append(issues, ParseIssue{UID: ev.UID, Reason: "occurrence cap reached, truncated"})
		appLog.Warn("recurrence truncated at cap", "uid", ev.UID, "cap", cfg.MaxOccurrencesPerEvent)
	}

	dur := ev.End.Sub(ev.Start)

	for _, occStart := range occTimes {
		// Between is inclusive at both ends; enforce [from, to).
		if !startsInWindow(occStart, cfg) {
			continue
		}

		var occEnd time.Time
		if ev.AllDay {
			date := time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occStart = date
			occEnd = date.AddDate(0, 0, 1)
		} else {
			occEnd = occStart.Add(dur)
		}

		inst := ev
		start, end := occStart, occEnd

		if o, ok := findOverrideForStart(overrides, occStart); ok {
			if o.Cancelled {
				continue
			}
			inst, start, end = o, o.Start, o.End
			// The override may have moved this occurrence out of the window.
			if !startsInWindow(start, cfg) {
				continue
			}
		}

		out = append(out, makeInstance(inst, start, end))
	}

	return out, issues
}

// findOverrideForStart finds an override whose RECURRENCE-ID names the given
// occurrence start, comparing instants.
func findOverrideForStart(overrides []ParsedEvent, occStart time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence == nil {
			continue
		}
		if ov.Recurrence.Equal(occStart) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

func makeInstance(ev ParsedEvent, start, end time.Time) model.Instance {
	return model.Instance{
		UID:         ev.UID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		AllDay:      ev.AllDay,
		Busy:        ev.Busy,
		Start:       start,
		End:         end,
	}
}

// startsInWindow reports whether an occurrence start falls inside the
// half-open expansion window. Every emitted instance passes this bound,
// single events and overrides included; it is the same membership test the
// sync engine applies to destination records.
func startsInWindow(start time.Time, cfg ExpandConfig) bool {
	return !start.Before(cfg.RangeStart) && start.Before(cfg.RangeEnd)
}
