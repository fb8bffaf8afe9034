package engine

import (
	"context"
	"fmt"

	"github.com/roach88/anchorage/internal/anchorid"
	"github.com/roach88/anchorage/internal/ar"
)

// SaveRequest asks for a new anchor at Pose on Trackable.
type SaveRequest struct {
	Trackable ar.Trackable
	Pose      ar.Pose

	// Fallback overrides the stored fallback coordinate. When nil the
	// anchor's own position at save time is stored.
	Fallback *ar.Vec3
}

// SaveResult describes a save that got past attachment.
type SaveResult struct {
	// Anchor is the session anchor. Set whenever attachment succeeded.
	Anchor *ar.Anchor

	// ID is the identifier the subsystem issued. Zero if the save failed.
	ID anchorid.ID

	// Committed is true when a record was appended at Index.
	Committed bool
	Index     uint64

	// Placed is true when content was placed for this anchor.
	Placed   bool
	Position ar.Vec3
	Rotation ar.Quat

	// Warning is a non-fatal *Error: the subsystem refused to persist the
	// anchor, or the record store could not be written. In both cases the
	// anchor will not come back after a restart.
	Warning error
}

// Save attaches, persists and records one anchor.
//
// The returned error is only non-nil when attachment failed (an
// ATTACHMENT_FAILED *Error) or ctx ended while the subsystem was saving.
// Persistence failures are reported through SaveResult.Warning.
func (e *Engine) Save(ctx context.Context, req SaveRequest) (SaveResult, error) {
	anchor := e.sub.Attach(req.Trackable, req.Pose)
	if anchor == nil {
		err := &Error{
			Code:    ErrCodeAttachmentFailed,
			Message: fmt.Sprintf("subsystem returned no anchor for trackable %q", req.Trackable.ID),
		}
		e.emit(Event{Kind: EventSaveFailed, Err: err, Detail: req.Trackable.ID})
		return SaveResult{}, err
	}
	e.emit(Event{Kind: EventSaveAttached, Position: anchor.Pose.Position, Detail: anchor.Handle})

	res := SaveResult{Anchor: anchor}

	status, err := e.sub.SaveAnchor(ctx, anchor)
	if err != nil && ctx.Err() != nil {
		return res, fmt.Errorf("save anchor %s: %w", anchor.Handle, ctx.Err())
	}
	if err != nil || !status.OK {
		res.Warning = saveFailure(anchor, status, err)
		e.emit(Event{Kind: EventSaveWarning, Err: res.Warning, Detail: anchor.Handle})
		return res, nil
	}
	res.ID = status.ID

	fallback := anchor.Pose.Position
	if req.Fallback != nil {
		fallback = *req.Fallback
	}

	index, err := e.store.Append(ctx, status.ID, &fallback)
	if err != nil {
		res.Warning = &Error{
			Code:       ErrCodeStorageUnavailable,
			Message:    "anchor saved by subsystem but record not written; it will not survive a restart",
			Identifier: status.ID.String(),
			Err:        err,
		}
		e.emit(Event{Kind: EventSaveWarning, ID: status.ID, Err: res.Warning, Detail: anchor.Handle})
	} else {
		res.Committed = true
		res.Index = index
		e.advanceNextIndex(index + 1)
		e.emit(Event{Kind: EventSaveCommitted, ID: status.ID, Index: index, HasIndex: true})
	}

	// The anchor exists for this session either way, so show it.
	res.Position = anchor.Pose.Position
	res.Rotation = e.facing(anchor.Pose.Rotation)
	res.Placed = true
	e.place(res.Position, res.Rotation, res.Index, res.Committed)

	return res, nil
}

func saveFailure(anchor *ar.Anchor, status ar.SaveStatus, err error) *Error {
	if err != nil {
		return &Error{
			Code:    ErrCodeSubsystemFailure,
			Message: fmt.Sprintf("anchor %s save request failed", anchor.Handle),
			Err:     err,
		}
	}
	return &Error{
		Code:    ErrCodeSubsystemFailure,
		Message: fmt.Sprintf("anchor %s save failed with status %q", anchor.Handle, status.Code),
	}
}

// SaveTask is a save running in its own goroutine.
type SaveTask struct {
	done chan struct{}
	res  SaveResult
	err  error
}

// SubmitSave starts Save in a new goroutine and returns a handle to its
// result. Nothing is lost if the caller never waits: every outcome is also
// delivered to observers.
func (e *Engine) SubmitSave(ctx context.Context, req SaveRequest) *SaveTask {
	t := &SaveTask{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.res, t.err = e.Save(ctx, req)
	}()
	return t
}

// Done is closed when the save has finished.
func (t *SaveTask) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the save finishes and returns its result.
func (t *SaveTask) Wait() (SaveResult, error) {
	<-t.done
	return t.res, t.err
}

// HandlePress turns one press-began event into a save. Other phases return
// ErrIgnoredInput. A press that misses every plane returns ErrNoSurfaceHit
// or ErrNotAPlane without touching the subsystem.
func (e *Engine) HandlePress(ctx context.Context, ev ar.PressEvent) (SaveResult, error) {
	if ev.Phase != ar.PressBegan {
		return SaveResult{}, ErrIgnoredInput
	}
	if e.raycaster == nil {
		return SaveResult{}, ErrNoRaycaster
	}

	hit, ok := e.raycaster.Raycast(ev.Position)
	if !ok {
		return SaveResult{}, ErrNoSurfaceHit
	}
	if hit.Trackable.Kind != ar.TrackablePlane {
		return SaveResult{}, fmt.Errorf("%w: %s %q", ErrNotAPlane, hit.Trackable.Kind, hit.Trackable.ID)
	}

	return e.Save(ctx, SaveRequest{Trackable: hit.Trackable, Pose: hit.Pose})
}
