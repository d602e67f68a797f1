package sync

import (
	"context"
	"math/rand"
	"time"

	appLog "github.com/TeeRawk/calendar-sync-app-sub002/internal/log"
)

// Retry bounds the backoff loop applied to transient destination errors.
type Retry struct {
	// MaxAttempts includes the initial attempt.
	MaxAttempts int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps exponential growth.
	MaxDelay time.Duration
	// Factor multiplies the delay after each attempt (2.0 doubles it).
	Factor float64
	// Jitter randomizes each delay by up to the given fraction (0.2 = 20%).
	Jitter float64
}

// DefaultRetry returns the policy used against the destination API.
func DefaultRetry() Retry {
	return Retry{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Factor:       2.0,
		Jitter:       0.2,
	}
}

// Gatekeeper wraps every destination-calendar call and decides what a
// failure means for the run:
//
//   - reauth required: returned immediately, never retried; the engine
//     aborts the run and performs no further destination calls
//   - transient: retried with exponential backoff up to the attempt
//     bound, honoring context cancellation
//   - anything else: passed through once for per-event handling
type Gatekeeper struct {
	retry Retry
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGatekeeper builds a gatekeeper; a zero MaxAttempts selects the
// default policy.
func NewGatekeeper(retry Retry) *Gatekeeper {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetry()
	}
	return &Gatekeeper{retry: retry, sleep: sleepCtx}
}

// Guard runs fn under the retry policy. op and key only feed logging and
// the returned error's context.
func (g *Gatekeeper) Guard(ctx context.Context, op, key string, fn func(context.Context) error) error {
	delay := g.retry.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= g.retry.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		switch KindOf(err) {
		case KindReauthRequired:
			appLog.Error("destination requires reauthorization", err, "op", op)
			return err
		case KindTransient:
			if attempt == g.retry.MaxAttempts {
				appLog.Warn("transient error exhausted retries", "op", op, "key", key, "attempts", attempt, "err", err)
				return err
			}
			wait := jittered(delay, g.retry.Jitter)
			appLog.Debug("transient destination error, backing off", "op", op, "key", key, "attempt", attempt, "delay", wait)
			if serr := g.sleep(ctx, wait); serr != nil {
				return serr
			}
			delay = time.Duration(float64(delay) * g.retry.Factor)
			if delay > g.retry.MaxDelay {
				delay = g.retry.MaxDelay
			}
		default:
			return err
		}
	}
	return lastErr
}

func jittered(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || d <= 0 {
		return d
	}
	delta := time.Duration(rand.Float64() * jitter * float64(d))
	return d + delta
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
