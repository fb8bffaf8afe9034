package ar

import (
	"context"

	"github.com/roach88/anchorage/internal/anchorid"
)

// TrackableKind classifies what a raycast hit.
type TrackableKind int

const (
	TrackableUnknown TrackableKind = iota
	TrackablePlane
	TrackablePoint
)

func (k TrackableKind) String() string {
	switch k {
	case TrackablePlane:
		return "plane"
	case TrackablePoint:
		return "point"
	default:
		return "unknown"
	}
}

// Trackable references a recognized physical feature an anchor can attach to.
type Trackable struct {
	ID   string
	Kind TrackableKind
}

// Anchor is a session-local anchor handle owned by the subsystem.
type Anchor struct {
	// Handle identifies the anchor within the current session only.
	Handle string
	Pose   Pose
}

// SaveStatus is the subsystem's answer to a durable save request.
// ID is only meaningful when OK is true.
type SaveStatus struct {
	OK   bool
	Code string
	ID   anchorid.ID
}

// LoadStatus is the subsystem's answer to a resolve request.
// Anchor is only meaningful when OK is true.
type LoadStatus struct {
	OK     bool
	Code   string
	Anchor *Anchor
}

// SessionState mirrors the lifecycle of the platform AR session.
type SessionState int

const (
	SessionNone SessionState = iota
	SessionUnsupported
	SessionCheckingAvailability
	SessionReady
	SessionInitializing
	SessionTracking
)

func (s SessionState) String() string {
	switch s {
	case SessionUnsupported:
		return "unsupported"
	case SessionCheckingAvailability:
		return "checking_availability"
	case SessionReady:
		return "ready"
	case SessionInitializing:
		return "initializing"
	case SessionTracking:
		return "tracking"
	default:
		return "none"
	}
}

// NotTrackingReason explains why pose estimation is degraded.
// NotTrackingNone means tracking is healthy.
type NotTrackingReason int

const (
	NotTrackingNone NotTrackingReason = iota
	NotTrackingInitializing
	NotTrackingRelocalizing
	NotTrackingInsufficientLight
	NotTrackingInsufficientFeatures
	NotTrackingExcessiveMotion
	NotTrackingUnsupported
)

func (r NotTrackingReason) String() string {
	switch r {
	case NotTrackingNone:
		return "none"
	case NotTrackingInitializing:
		return "initializing"
	case NotTrackingRelocalizing:
		return "relocalizing"
	case NotTrackingInsufficientLight:
		return "insufficient_light"
	case NotTrackingInsufficientFeatures:
		return "insufficient_features"
	case NotTrackingExcessiveMotion:
		return "excessive_motion"
	default:
		return "unsupported"
	}
}

// TrackingSource reports tracking readiness.
type TrackingSource interface {
	SessionState() SessionState
	NotTrackingReason() NotTrackingReason
}

// Subsystem is the platform spatial tracking subsystem.
//
// SaveAnchor and LoadAnchor block until the platform answers. A non-nil error
// means the request never reached a verdict (transport failure, cancelled
// context); a verdict of failure is reported through the status instead.
type Subsystem interface {
	TrackingSource

	// Attach pins a new anchor to trackable at pose. Returns nil when the
	// trackable is no longer valid.
	Attach(trackable Trackable, pose Pose) *Anchor

	SaveAnchor(ctx context.Context, anchor *Anchor) (SaveStatus, error)
	LoadAnchor(ctx context.Context, id anchorid.ID) (LoadStatus, error)
}
