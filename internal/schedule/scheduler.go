// Package schedule drives periodic runs of the sync engine.
package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/TeeRawk/calendar-sync-app-sub002/internal/config"
	appLog "github.com/TeeRawk/calendar-sync-app-sub002/internal/log"
	"github.com/TeeRawk/calendar-sync-app-sub002/internal/sync"
)

// cronLogger adapts the app logger to cron's logging interface.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}

// Scheduler runs every enabled sync on its cron schedule. Each sync gets
// its own entry wrapped in SkipIfStillRunning: a tick arriving while the
// previous run of the same sync is still going is dropped, so a sync never
// overlaps itself. Different syncs run independently.
type Scheduler struct {
	engine *sync.Engine
	runner *cron.Cron
	ctx    context.Context
}

// New registers all enabled syncs. A sync without its own cron expression
// inherits defaultCron.
func New(engine *sync.Engine, syncs []config.SyncConfig, defaultCron string) (*Scheduler, error) {
	s := &Scheduler{
		engine: engine,
		runner: cron.New(cron.WithLogger(cronLogger{})),
	}

	registered := 0
	for _, sc := range syncs {
		if !sc.Enabled {
			continue
		}
		id := sc.ID
		spec := sc.Cron
		if spec == "" {
			spec = defaultCron
		}

		job := cron.NewChain(cron.SkipIfStillRunning(cronLogger{})).Then(cron.FuncJob(func() {
			s.runOne(id)
		}))
		if _, err := s.runner.AddJob(spec, job); err != nil {
			return nil, fmt.Errorf("schedule sync %q (%q): %w", id, spec, err)
		}
		appLog.Info("sync scheduled", "sync", id, "cron", spec)
		registered++
	}

	if registered == 0 {
		return nil, errors.New("no enabled syncs to schedule")
	}
	return s, nil
}

// Jobs returns the number of scheduled entries.
func (s *Scheduler) Jobs() int {
	return len(s.runner.Entries())
}

// Start fires the schedule and blocks until ctx is cancelled, then waits
// for in-flight runs to finish.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.runner.Start()
	appLog.Info("scheduler started", "jobs", s.Jobs())

	<-ctx.Done()

	appLog.Info("scheduler stopping")
	<-s.runner.Stop().Done()
	appLog.Info("scheduler stopped")
}

func (s *Scheduler) runOne(id string) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := s.engine.RunSync(ctx, id)
	if err != nil {
		if sync.IsKind(err, sync.KindReauthRequired) {
			appLog.Error("sync needs reauthorization; runs will keep failing until the token is renewed", err, "sync", id)
		} else {
			appLog.Error("scheduled sync failed", err, "sync", id)
		}
		return
	}
	appLog.Info("scheduled sync completed", "sync", id, "result", res.Summary())
}
