// Package tracking gates work on the spatial tracking subsystem reaching a
// stable state.
package tracking

import (
	"context"
	"time"

	"github.com/roach88/anchorage/internal/ar"
)

// DefaultPollInterval is the cadence at which AwaitStable re-checks readiness.
const DefaultPollInterval = 500 * time.Millisecond

// Result is the outcome of AwaitStable.
type Result int

const (
	// Resolved means tracking became stable.
	Resolved Result = iota
	// TimedOut means the timeout elapsed first.
	TimedOut
)

func (r Result) String() string {
	if r == TimedOut {
		return "timed_out"
	}
	return "resolved"
}

// Gate answers "is tracking stable" against a TrackingSource.
type Gate struct {
	source ar.TrackingSource
	clock  Clock

	// onPoll, when set, is called after every readiness check.
	onPoll func(stable bool)
}

// NewGate returns a Gate over source. A nil clock means SystemClock.
func NewGate(source ar.TrackingSource, clock Clock) *Gate {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Gate{source: source, clock: clock}
}

// OnPoll registers fn to observe every readiness check.
func (g *Gate) OnPoll(fn func(stable bool)) {
	g.onPoll = fn
}

// IsStable reports whether the session is active and nothing degrades
// tracking.
func (g *Gate) IsStable() bool {
	if g.source.SessionState() != ar.SessionTracking {
		return false
	}
	return g.source.NotTrackingReason() == ar.NotTrackingNone
}

// AwaitStable blocks until IsStable, re-checking every pollInterval.
//
// A zero timeout waits indefinitely; the caller bounds it through ctx.
// Cancellation returns ctx.Err(). A non-positive pollInterval uses
// DefaultPollInterval.
func (g *Gate) AwaitStable(ctx context.Context, pollInterval, timeout time.Duration) (Result, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = g.clock.Now().Add(timeout)
	}

	for {
		if err := ctx.Err(); err != nil {
			return Resolved, err
		}

		stable := g.IsStable()
		if g.onPoll != nil {
			g.onPoll(stable)
		}
		if stable {
			return Resolved, nil
		}

		if !deadline.IsZero() && !g.clock.Now().Before(deadline) {
			return TimedOut, nil
		}

		select {
		case <-ctx.Done():
			return Resolved, ctx.Err()
		case <-g.clock.After(pollInterval):
		}
	}
}
