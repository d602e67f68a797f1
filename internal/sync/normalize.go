package sync

import (
	"fmt"
	"time"

	"github.com/TeeRawk/calendar-sync-app-sub002/internal/model"
)

// ResolveZone picks the destination zone for a run. A caller-supplied hint
// wins over the configured zone; both empty falls back to UTC. An invalid
// name is a configuration error, not a silent default.
func ResolveZone(configured, hint string) (*time.Location, error) {
	name := configured
	if hint != "" {
		name = hint
	}
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, ConfigError("resolve timezone", fmt.Errorf("invalid timezone %q: %w", name, err))
	}
	return loc, nil
}

// NormalizeInstance converts an instance's times into the destination zone.
// The engine calls this exactly once per instance, and every consumer
// downstream (fingerprints, payloads, comparisons) reads the result without
// converting again. All-day instances are date-valued and keep their UTC
// midnight anchor.
func NormalizeInstance(inst model.Instance, loc *time.Location) model.Instance {
	if loc == nil {
		loc = time.UTC
	}
	if inst.AllDay {
		return inst
	}
	inst.Start = inst.Start.In(loc)
	inst.End = inst.End.In(loc)
	return inst
}
