package engine

import (
	"context"
	"fmt"

	"github.com/roach88/anchorage/internal/anchorid"
	"github.com/roach88/anchorage/internal/ar"
	"github.com/roach88/anchorage/internal/tracking"
)

// LoadReport summarizes one load pass.
type LoadReport struct {
	// Attempted is the record count snapshot taken when iteration began.
	Attempted uint64

	// Outcomes has one entry per attempted index, in index order.
	Outcomes []Outcome

	Resolved  int
	Fallbacks int
	Skipped   int
}

func (r *LoadReport) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Kind {
	case OutcomeResolved:
		r.Resolved++
	case OutcomeFallback:
		r.Fallbacks++
	case OutcomeSkipped:
		r.Skipped++
	}
}

// Load runs one load pass: wait the grace period, wait for stable tracking,
// then resolve every committed record once, in index order.
//
// Per-record failures never end the pass. Load returns an error only when
// ctx ends (the partial report is returned alongside ctx.Err()), tracking
// times out, or the record count cannot be read.
func (e *Engine) Load(ctx context.Context) (LoadReport, error) {
	if !e.loading.CompareAndSwap(false, true) {
		return LoadReport{}, ErrLoadInProgress
	}
	defer e.loading.Store(false)

	var report LoadReport

	if e.cfg.LoadDelay > 0 {
		e.setState(LoadWaitingDelay)
		select {
		case <-ctx.Done():
			return report, e.cancelled(ctx)
		case <-e.clock.After(e.cfg.LoadDelay):
		}
	}

	e.setState(LoadWaitingTracking)
	res, err := e.gate.AwaitStable(ctx, e.cfg.PollInterval, e.cfg.TrackingTimeout)
	if err != nil {
		return report, e.cancelled(ctx)
	}
	if res == tracking.TimedOut {
		e.setState(LoadTimedOut)
		return report, &Error{
			Code:    ErrCodeTrackingTimeout,
			Message: fmt.Sprintf("tracking not stable after %s", e.cfg.TrackingTimeout),
		}
	}

	count, err := e.store.Count(ctx)
	if err != nil {
		e.setState(LoadDone)
		return report, &Error{
			Code:    ErrCodeStorageUnavailable,
			Message: "read anchor count",
			Err:     err,
		}
	}
	report.Attempted = count

	for index := uint64(0); index < count; index++ {
		if ctx.Err() != nil {
			return report, e.cancelled(ctx)
		}
		e.setStateAt(LoadIterating, index)

		outcome, err := e.loadOne(ctx, index)
		if err != nil {
			return report, e.cancelled(ctx)
		}
		report.add(outcome)
		e.emit(Event{Kind: EventOutcome, Index: index, HasIndex: true, ID: outcome.ID, Outcome: &outcome})
	}

	e.setState(LoadDone)
	return report, nil
}

// loadOne resolves a single record. It only returns an error when ctx ended
// during the resolve.
func (e *Engine) loadOne(ctx context.Context, index uint64) (Outcome, error) {
	rec, err := e.store.Get(ctx, index)
	if err != nil {
		rerr := recordError(index, err)
		return Outcome{
			Index:  index,
			Kind:   OutcomeSkipped,
			Reason: string(rerr.Code),
			Err:    rerr,
		}, nil
	}

	e.setStateAt(LoadResolvingAnchor, index)
	e.emit(Event{Kind: EventResolveRequest, Index: index, HasIndex: true, ID: rec.ID})

	status, err := e.sub.LoadAnchor(ctx, rec.ID)
	if err != nil && ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}

	if err == nil && status.OK && status.Anchor != nil {
		out := Outcome{
			Index:    index,
			Kind:     OutcomeResolved,
			ID:       rec.ID,
			Position: status.Anchor.Pose.Position,
			Rotation: e.facing(status.Anchor.Pose.Rotation),
		}
		e.setStateAt(LoadPlaced, index)
		e.place(out.Position, out.Rotation, index, true)
		return out, nil
	}

	// Place it anyway: approximate content beats missing content.
	position := ar.Origin
	if rec.Fallback != nil {
		position = *rec.Fallback
	}
	ferr := resolveFailure(index, rec.ID, status, err)
	out := Outcome{
		Index:    index,
		Kind:     OutcomeFallback,
		ID:       rec.ID,
		Position: position,
		Rotation: e.facing(ar.Identity),
		Reason:   status.Code,
		Err:      ferr,
	}
	if out.Reason == "" {
		out.Reason = string(ErrCodeSubsystemFailure)
	}
	e.setStateAt(LoadFallbackPlaced, index)
	e.place(out.Position, out.Rotation, index, true)
	return out, nil
}

func resolveFailure(index uint64, id anchorid.ID, status ar.LoadStatus, err error) *Error {
	msg := fmt.Sprintf("resolve failed with status %q", status.Code)
	if err != nil {
		msg = "resolve request failed"
	} else if status.OK {
		msg = "resolve reported success without an anchor"
	}
	return &Error{
		Code:       ErrCodeSubsystemFailure,
		Message:    msg,
		Index:      index,
		HasIndex:   true,
		Identifier: id.String(),
		Err:        err,
	}
}

func (e *Engine) cancelled(ctx context.Context) error {
	e.setState(LoadCancelled)
	return fmt.Errorf("load pass: %w", ctx.Err())
}
