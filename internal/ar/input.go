package ar

// PressPhase is the phase of a pointer/touch contact.
type PressPhase int

const (
	PressBegan PressPhase = iota
	PressMoved
	PressStationary
	PressEnded
	PressCanceled
)

func (p PressPhase) String() string {
	switch p {
	case PressBegan:
		return "began"
	case PressMoved:
		return "moved"
	case PressStationary:
		return "stationary"
	case PressEnded:
		return "ended"
	default:
		return "canceled"
	}
}

// PressEvent is a discrete pointer/touch event in screen space.
type PressEvent struct {
	Position Vec2
	Phase    PressPhase
}

// Hit is the nearest raycast intersection with a trackable.
type Hit struct {
	Pose      Pose
	Trackable Trackable
}

// Raycaster casts screen points against detected trackables.
type Raycaster interface {
	Raycast(screen Vec2) (Hit, bool)
}

// PlacementSink instantiates a visual representation. Fire and forget.
type PlacementSink interface {
	Place(position Vec3, rotation Quat)
}

// PlacementFunc adapts a function to PlacementSink.
type PlacementFunc func(position Vec3, rotation Quat)

// Place calls f.
func (f PlacementFunc) Place(position Vec3, rotation Quat) {
	f(position, rotation)
}

// Viewer exposes the current camera forward direction.
type Viewer interface {
	Forward() Vec3
}

// FixedViewer is a Viewer with a constant forward direction.
type FixedViewer Vec3

// Forward returns v.
func (v FixedViewer) Forward() Vec3 {
	return Vec3(v)
}
