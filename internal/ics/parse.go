package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "github.com/TeeRawk/calendar-sync-app-sub002/internal/log"
)

// ParsedEvent is the representation of a VEVENT as produced by the parser.
// Times carry the resolved source location; recurrence expansion operates
// on this type without re-reading the raw calendar.
type ParsedEvent struct {
	Source Source

	UID string
	Seq int

	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	// Busy is false for TRANSP:TRANSPARENT events and events a source
	// marks free (X-MICROSOFT-CDO-BUSYSTATUS:FREE).
	Busy bool
	// Cancelled events are dropped during expansion; cancelled overrides
	// remove their generated occurrence.
	Cancelled bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID target, in the event's own zone
	IsOverride bool
}

// ParseIssue records one skipped or degraded construct. Issues are counted
// against the run but never abort the parse.
type ParseIssue struct {
	UID    string
	Reason string
}

// ParseICS decodes a single ICS payload.
//
// A body that is not a calendar at all returns an error. Individual
// malformed VEVENTs are skipped and reported as issues; degraded constructs
// (unknown TZID, unsupported RDATE, extra RRULEs) are reported as issues on
// events that are otherwise kept.
func ParseICS(src Source, body []byte) ([]ParsedEvent, []ParseIssue, error) {
	if len(body) == 0 {
		return nil, nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("calendar parse failed", err, "sync", src.ID, "url", redactURL(src.URL))
		return nil, nil, err
	}

	// Calendar-level default zone for floating times.
	calZone := time.UTC
	for _, p := range cal.CalendarProperties {
		if p.IANAToken == "X-WR-TIMEZONE" && p.Value != "" {
			if loc, lerr := time.LoadLocation(p.Value); lerr == nil {
				calZone = loc
			}
			break
		}
	}

	events := make([]ParsedEvent, 0)
	issues := make([]ParseIssue, 0)

	for _, comp := range cal.Events() {
		ev, evIssues, perr := parseVEvent(src, comp, calZone)
		issues = append(issues, evIssues...)
		if perr != nil {
			issues = append(issues, ParseIssue{UID: ev.UID, Reason: perr.Error()})
			appLog.Warn("skipping malformed vevent", "sync", src.ID, "uid", ev.UID, "reason", perr)
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("calendar parsed", "sync", src.ID, "events", len(events), "issues", len(issues))
	return events, issues, nil
}

func parseVEvent(src Source, ve *ical.VEvent, calZone *time.Location) (ParsedEvent, []ParseIssue, error) {
	out := ParsedEvent{Source: src, Busy: true}
	var issues []ParseIssue

	// UID and DTSTART are the two properties we refuse to live without:
	// without a UID there is no stable fingerprint, without a start there
	// is no occurrence.
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil && p.Value != "" {
		out.UID = p.Value
	} else {
		return out, issues, errors.New("missing UID")
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	dtStartProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStartProp == nil || dtStartProp.Value == "" {
		return out, issues, errors.New("missing DTSTART")
	}

	allDay := propIsDate(dtStartProp)
	startZone, zoneIssue := resolveZone(dtStartProp, calZone)
	if zoneIssue != "" {
		issues = append(issues, ParseIssue{UID: out.UID, Reason: zoneIssue})
	}

	start, err := parseICSTime(dtStartProp.Value, startZone, allDay)
	if err != nil {
		return out, issues, fmt.Errorf("bad DTSTART %q: %w", dtStartProp.Value, err)
	}
	out.Start = start
	out.AllDay = allDay

	// SEQUENCE (optional, used for overrides/versioning).
	if seqProp := ve.GetProperty(ical.ComponentPropertySequence); seqProp != nil {
		if n, serr := strconv.Atoi(strings.TrimSpace(seqProp.Value)); serr == nil {
			out.Seq = n
		}
	}

	// DTEND, or DURATION, or the defaults (1h timed, next day all-day).
	out.End = defaultEnd(out.Start, allDay)
	if dtEndProp := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEndProp != nil && dtEndProp.Value != "" {
		endZone, _ := resolveZone(dtEndProp, startZone)
		if end, eerr := parseICSTime(dtEndProp.Value, endZone, propIsDate(dtEndProp)); eerr == nil {
			out.End = end
		} else {
			issues = append(issues, ParseIssue{UID: out.UID, Reason: fmt.Sprintf("bad DTEND %q, using default", dtEndProp.Value)})
		}
	} else if durProp := ve.GetProperty(ical.ComponentProperty("DURATION")); durProp != nil && durProp.Value != "" {
		if d, derr := parseISODuration(durProp.Value); derr == nil {
			out.End = out.Start.Add(d)
		} else {
			issues = append(issues, ParseIssue{UID: out.UID, Reason: fmt.Sprintf("bad DURATION %q, using default", durProp.Value)})
		}
	}
	if !out.End.After(out.Start) {
		out.End = defaultEnd(out.Start, allDay)
	}

	// STATUS / TRANSP / Microsoft busy status drive the busy flag.
	if p := ve.GetProperty(ical.ComponentProperty("STATUS")); p != nil {
		if strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED") {
			out.Cancelled = true
		}
	}
	if p := ve.GetProperty(ical.ComponentProperty("TRANSP")); p != nil {
		if strings.EqualFold(strings.TrimSpace(p.Value), "TRANSPARENT") {
			out.Busy = false
		}
	}
	if p := ve.GetProperty(ical.ComponentProperty("X-MICROSOFT-CDO-BUSYSTATUS")); p != nil {
		if strings.EqualFold(strings.TrimSpace(p.Value), "FREE") {
			out.Busy = false
		}
	}

	// RRULE: a single rule is supported; extras are dropped with an issue.
	rruleProps := ve.GetProperties(ical.ComponentPropertyRrule)
	if len(rruleProps) > 0 {
		out.RawRRule = rruleProps[0].Value
	}
	if len(rruleProps) > 1 {
		issues = append(issues, ParseIssue{UID: out.UID, Reason: "multiple RRULEs, keeping first"})
	}
	if p := ve.GetProperty(ical.ComponentProperty("RDATE")); p != nil {
		issues = append(issues, ParseIssue{UID: out.UID, Reason: "RDATE not supported, ignored"})
	}

	// EXDATE (may appear multiple times, each with a comma list). Values
	// are parsed in the event's own zone.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		exZone, _ := resolveZone(p, startZone)
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, terr := parseICSTime(part, exZone, propIsDate(p)); terr == nil {
				out.ExDates = append(out.ExDates, t)
			} else {
				issues = append(issues, ParseIssue{UID: out.UID, Reason: fmt.Sprintf("bad EXDATE %q, ignored", part)})
			}
		}
	}

	// RECURRENCE-ID marks this VEVENT as an override of one occurrence.
	if ridProp := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); ridProp != nil && ridProp.Value != "" {
		ridZone, _ := resolveZone(ridProp, startZone)
		if t, terr := parseICSTime(ridProp.Value, ridZone, propIsDate(ridProp)); terr == nil {
			out.Recurrence = &t
			out.IsOverride = true
		} else {
			issues = append(issues, ParseIssue{UID: out.UID, Reason: fmt.Sprintf("bad RECURRENCE-ID %q, treating as standalone", ridProp.Value)})
		}
	}

	return out, issues, nil
}

// propIsDate reports whether the property carries VALUE=DATE or a bare
// date value (all-day semantics).
func propIsDate(p *ical.IANAProperty) bool {
	if p.ICalParameters != nil {
		if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(p.Value, "T")
}

// resolveZone picks the zone a property's local time is expressed in:
// its TZID parameter when present and loadable, otherwise the fallback.
// An unknown TZID degrades to UTC and is reported.
func resolveZone(p *ical.IANAProperty, fallback *time.Location) (*time.Location, string) {
	if p.ICalParameters == nil {
		return fallback, ""
	}
	tzs, ok := p.ICalParameters["TZID"]
	if !ok || len(tzs) == 0 || tzs[0] == "" {
		return fallback, ""
	}
	loc, err := time.LoadLocation(tzs[0])
	if err != nil {
		return time.UTC, fmt.Sprintf("unknown TZID %q, assuming UTC", tzs[0])
	}
	return loc, ""
}

// parseICSTime parses the three basic ICS forms: UTC ("20250101T090000Z"),
// local ("20250101T090000") in the given zone, and date-only ("20250101").
// Date-only values are anchored at midnight UTC; all-day handling never
// reads the clock portion.
func parseICSTime(v string, loc *time.Location, allDay bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if loc == nil {
		loc = time.UTC
	}

	if allDay || !strings.Contains(v, "T") {
		return time.ParseInLocation("20060102", v, time.UTC)
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	return time.ParseInLocation("20060102T150405", v, loc)
}

// parseISODuration handles the common subset of RFC 5545 durations:
// [+-]P[nD][T[nH][nM][nS]] and PnW.
func parseISODuration(v string) (time.Duration, error) {
	s := strings.TrimSpace(strings.ToUpper(v))
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("not a duration: %q", v)
	}
	s = s[1:]

	var total time.Duration
	datePart := s
	timePart := ""
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		datePart, timePart = s[:i], s[i+1:]
	}

	var err error
	if total, err = accumDuration(datePart, total, map[byte]time.Duration{
		'W': 7 * 24 * time.Hour,
		'D': 24 * time.Hour,
	}); err != nil {
		return 0, fmt.Errorf("bad duration %q: %w", v, err)
	}
	if total, err = accumDuration(timePart, total, map[byte]time.Duration{
		'H': time.Hour,
		'M': time.Minute,
		'S': time.Second,
	}); err != nil {
		return 0, fmt.Errorf("bad duration %q: %w", v, err)
	}

	if neg {
		total = -total
	}
	return total, nil
}

func accumDuration(part string, total time.Duration, units map[byte]time.Duration) (time.Duration, error) {
	num := 0
	haveNum := false
	for i := 0; i < len(part); i++ {
		c := part[i]
		if c >= '0' && c <= '9' {
			num = num*10 + int(c-'0')
			haveNum = true
			continue
		}
		unit, ok := units[c]
		if !ok || !haveNum {
			return 0, fmt.Errorf("unexpected %q", string(c))
		}
		total += time.Duration(num) * unit
		num, haveNum = 0, false
	}
	if haveNum {
		return 0, errors.New("trailing number without unit")
	}
	return total, nil
}

func defaultEnd(start time.Time, allDay bool) time.Time {
	if allDay {
		return start.AddDate(0, 0, 1)
	}
	return start.Add(time.Hour)
}
