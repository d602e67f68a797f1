package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	appLog "github.com/TeeRawk/calendar-sync-app-sub002/internal/log"
	"github.com/TeeRawk/calendar-sync-app-sub002/internal/model"
)

const (
	defaultParallelism = 4
	defaultWriteRate   = 5 // destination writes per second
)

// Executor applies a plan against the destination with bounded concurrency
// and a token-bucket write rate. Per-event failures are recorded on the
// result and the remaining operations continue; a reauth failure cancels
// everything still queued.
type Executor struct {
	gate     *Gatekeeper
	limiter  *rate.Limiter
	parallel int
}

// NewExecutor builds an executor with the default limits. A nil gatekeeper
// selects the default retry policy.
func NewExecutor(gate *Gatekeeper) *Executor {
	if gate == nil {
		gate = NewGatekeeper(DefaultRetry())
	}
	return &Executor{
		gate:     gate,
		limiter:  rate.NewLimiter(rate.Limit(defaultWriteRate), defaultWriteRate),
		parallel: defaultParallelism,
	}
}

// Tune adjusts worker count and write rate. Zero values keep the current
// setting.
func (e *Executor) Tune(parallel int, writesPerSec float64) {
	if parallel > 0 {
		e.parallel = parallel
	}
	if writesPerSec > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(writesPerSec), int(writesPerSec)+1)
	}
}

// op is one queued destination write.
type op struct {
	name string // create, update, delete
	key  string
	call func(context.Context) error
	done func(res *model.SyncResult)
}

// Apply executes the plan. Creates and updates land before deletes, so a
// rescheduled occurrence is never absent from the destination mid-run.
func (e *Executor) Apply(ctx context.Context, client Client, calendarID string, plan Plan, res *model.SyncResult) error {
	upserts := make([]op, 0, len(plan.Creates)+len(plan.Updates))

	for _, inst := range plan.Creates {
		inst := inst
		key := InstanceKey(inst.UID, inst.Start)
		upserts = append(upserts, op{
			name: "create",
			key:  key,
			call: func(c context.Context) error {
				desc := EncodeMarker(inst.Description, inst.UID)
				id, err := client.Insert(c, calendarID, inst, desc)
				if err == nil {
					appLog.Debug("created destination event", "key", key, "id", id)
				}
				return err
			},
			done: func(r *model.SyncResult) { r.Created++ },
		})
	}

	for _, u := range plan.Updates {
		u := u
		upserts = append(upserts, op{
			name: "update",
			key:  u.Record.Key,
			call: func(c context.Context) error {
				desc := EncodeMarker(u.Desired.Description, u.Desired.UID)
				return client.Update(c, calendarID, u.Record.ID, u.Desired, desc)
			},
			done: func(r *model.SyncResult) { r.Updated++ },
		})
	}

	if err := e.run(ctx, client, upserts, res); err != nil {
		return err
	}

	deletes := make([]op, 0, len(plan.Deletes))
	for _, rec := range plan.Deletes {
		rec := rec
		deletes = append(deletes, op{
			name: "delete",
			key:  rec.Key,
			call: func(c context.Context) error {
				return client.Delete(c, calendarID, rec.ID)
			},
			done: func(r *model.SyncResult) { r.Deleted++ },
		})
	}

	return e.run(ctx, client, deletes, res)
}

func (e *Executor) run(ctx context.Context, client Client, ops []op, res *model.SyncResult) error {
	if len(ops) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallel)

	var mu gosync.Mutex

	for _, o := range ops {
		o := o
		g.Go(func() error {
			if err := e.limiter.Wait(gctx); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return err
			}

			err := e.gate.Guard(gctx, o.name, o.key, o.call)
			if err == nil {
				mu.Lock()
				o.done(res)
				mu.Unlock()
				return nil
			}

			if IsKind(err, KindReauthRequired) {
				// Cancels the group: queued ops never start, in-flight
				// ops wind down with the context.
				return err
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}

			kind := KindOf(err)
			if kind == "" {
				kind = KindWriteFailed
			}
			mu.Lock()
			res.Errors = append(res.Errors, model.EventError{
				Key:     o.key,
				Op:      o.name,
				Kind:    string(kind),
				Message: err.Error(),
				Time:    time.Now(),
			})
			mu.Unlock()
			appLog.Error("destination write failed, continuing", err, "op", o.name, "key", o.key)
			return nil
		})
	}

	return g.Wait()
}
