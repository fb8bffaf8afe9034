// Package engine reconciles saved anchors with the spatial tracking
// subsystem.
//
// ARCHITECTURE:
//
// Save path (one task per attachment request):
//  1. Attach a new anchor to the trackable at the requested pose
//  2. Ask the subsystem to persist it and wait for a verdict
//  3. On success append the returned identifier to the record store
//  4. Place content at the anchor, facing the viewer's horizontal heading
//
// Load path (once per session):
//
//	Idle -> WaitingDelay -> WaitingTracking -> Iterating(i)
//	     -> ResolvingAnchor -> Placed | FallbackPlaced -> Iterating(i+1) ... -> Done
//
// The record count is read once after tracking is stable; that snapshot is
// the whole pass. Records are resolved one at a time in ascending index
// order, so placement order is reproducible for the same stored records and
// the subsystem never sees a burst of concurrent resolves.
//
// ERROR POLICY:
//
// Nothing here is fatal to the host. A bad record is skipped, a failed
// resolve is placed at its fallback coordinate, a failed save is a warning.
// Every outcome reaches registered observers; the engine holds no global
// logging state.
package engine
