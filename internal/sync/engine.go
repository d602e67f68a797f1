package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/TeeRawk/calendar-sync-app-sub002/internal/config"
	"github.com/TeeRawk/calendar-sync-app-sub002/internal/ics"
	appLog "github.com/TeeRawk/calendar-sync-app-sub002/internal/log"
	"github.com/TeeRawk/calendar-sync-app-sub002/internal/model"
)

// FeedSource delivers raw ICS bodies. *ics.Fetcher implements it; tests
// substitute an in-memory feed.
type FeedSource interface {
	Fetch(ctx context.Context, src ics.Source) (ics.FetchResult, error)
}

// Engine runs one-way syncs from an ICS feed into a destination calendar.
type Engine struct {
	store   config.Store
	feeds   FeedSource
	clients ClientFactory
	gate    *Gatekeeper
	exec    *Executor
	now     func() time.Time
}

// Option tweaks engine construction.
type Option func(*Engine)

// WithNow substitutes the clock, fixing the sync window in tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithGatekeeper substitutes the retry/abort policy.
func WithGatekeeper(g *Gatekeeper) Option {
	return func(e *Engine) {
		e.gate = g
		e.exec = NewExecutor(g)
	}
}

// WithExecutor substitutes the apply stage.
func WithExecutor(x *Executor) Option {
	return func(e *Engine) { e.exec = x }
}

// NewEngine wires the engine from its collaborators: the config store, a
// feed source and a destination client factory.
func NewEngine(store config.Store, feeds FeedSource, clients ClientFactory, opts ...Option) *Engine {
	gate := NewGatekeeper(DefaultRetry())
	e := &Engine{
		store:   store,
		feeds:   feeds,
		clients: clients,
		gate:    gate,
		exec:    NewExecutor(gate),
		now:     time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RunOption adjusts a single run.
type RunOption func(*runOptions)

type runOptions struct {
	tzHint string
}

// WithTimezoneHint overrides the configured destination timezone for this
// run only.
func WithTimezoneHint(tz string) RunOption {
	return func(o *runOptions) { o.tzHint = tz }
}

// RunSync executes one run of the named sync configuration.
//
// The returned result always carries whatever was counted before a
// failure. The error is non-nil only for run-fatal conditions: unknown or
// invalid config, unreachable feed, undecodable calendar, destination
// listing failure, or required reauthorization. Per-event write failures
// are collected in the result with a nil error.
func (e *Engine) RunSync(ctx context.Context, configID string, opts ...RunOption) (*model.SyncResult, error) {
	var ro runOptions
	for _, o := range opts {
		o(&ro)
	}

	res := &model.SyncResult{ConfigID: configID, StartTime: e.now()}
	defer func() {
		res.EndTime = e.now()
		res.Duration = res.EndTime.Sub(res.StartTime)
	}()

	cfg, err := e.store.GetSync(configID)
	if err != nil {
		return res, ConfigError("load sync config", err)
	}
	if !cfg.Enabled {
		return res, ConfigError("load sync config", fmt.Errorf("sync %q is disabled", configID))
	}
	if err := cfg.Validate(); err != nil {
		return res, ConfigError("validate sync config", err)
	}

	loc, err := ResolveZone(cfg.Timezone, ro.tzHint)
	if err != nil {
		return res, err
	}

	w := e.window(cfg, loc)
	appLog.Info("sync run started",
		"sync", configID,
		"mode", cfg.Mode,
		"privacy", EffectivePrivacy(cfg.Mode, cfg.Privacy),
		"zone", loc.String(),
		"from", w.From.Format(time.RFC3339),
		"to", w.To.Format(time.RFC3339),
	)

	fr, err := e.feeds.Fetch(ctx, ics.Source{ID: cfg.ID, URL: cfg.FeedURL})
	if err != nil {
		return res, FeedUnreachableError("fetch feed", err)
	}

	parsed, issues, err := ics.ParseICS(fr.Source, fr.Body)
	if err != nil {
		return res, ParseError("parse feed", err)
	}
	res.ParseErrors = len(issues)

	exp, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
		RangeStart: w.From,
		RangeEnd:   w.To,
	})
	if err != nil {
		return res, ParseError("expand recurrences", err)
	}
	res.ParseErrors += len(exp.Issues)

	desired := buildDesired(exp.Instances, cfg, loc)

	client, err := e.clients(ctx)
	if err != nil {
		return res, err
	}

	var records []model.Record
	if err := e.gate.Guard(ctx, "list", "", func(c context.Context) error {
		var lerr error
		records, lerr = client.List(c, cfg.CalendarID, w)
		return lerr
	}); err != nil {
		return res, err
	}

	// Destinations may hand back events that merely overlap the window.
	// Reconciliation only sees records starting inside it, the same bound
	// the expander applies, so a record straddling From is never deleted.
	inWindow := make([]model.Record, 0, len(records))
	for _, rec := range records {
		if w.Contains(rec.Start) {
			inWindow = append(inWindow, rec)
		}
	}

	existing, dupes := indexRecords(inWindow)
	plan := BuildPlan(desired, existing)
	// Extra copies of a fingerprint are leftovers from interrupted runs;
	// removing them restores the one-record-per-instance invariant.
	plan.Deletes = append(plan.Deletes, dupes...)

	res.Skipped = plan.Skipped
	appLog.Info("plan computed",
		"sync", configID,
		"desired", len(desired),
		"existing", len(existing),
		"creates", len(plan.Creates),
		"updates", len(plan.Updates),
		"deletes", len(plan.Deletes),
		"skipped", plan.Skipped,
	)

	if err := e.exec.Apply(ctx, client, cfg.CalendarID, plan, res); err != nil {
		return res, err
	}

	appLog.Info("sync run finished", "sync", configID, "result", res.Summary())
	return res, nil
}

// window derives the run window from the config: midnight at the start of
// today in the destination zone, minus the lookback, spanning to the
// horizon. Half-open.
func (e *Engine) window(cfg *config.SyncConfig, loc *time.Location) model.Window {
	now := e.now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	from := today.AddDate(0, 0, -cfg.LookbackDays)
	to := today.AddDate(0, 0, cfg.HorizonDays)
	return model.Window{From: from, To: to}
}

// buildDesired runs the per-instance pipeline in its fixed order: privacy
// first, then the single timezone normalization, then presentation
// defaults. Fingerprints computed later read these instances and nothing
// converts a time again.
func buildDesired(instances []model.Instance, cfg *config.SyncConfig, loc *time.Location) []model.Instance {
	privacy := EffectivePrivacy(cfg.Mode, cfg.Privacy)
	out := make([]model.Instance, 0, len(instances))

	for _, inst := range instances {
		inst, keep := ApplyPrivacy(inst, privacy)
		if !keep {
			continue
		}
		inst = NormalizeInstance(inst, loc)
		if inst.Summary == "" {
			inst.Summary = "(no title)"
		}
		// Feeds may end a description with a newline. StripMarker cannot
		// tell that newline from the marker's own separator, so the
		// canonical desired form carries none.
		inst.Description = strings.TrimRight(inst.Description, "\r\n")
		out = append(out, inst)
	}
	return out
}
