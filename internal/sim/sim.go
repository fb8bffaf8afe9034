// Package sim is a scripted, in-process spatial tracking subsystem.
//
// It stands in for the platform runtime in the CLI, the scenario harness and
// tests. A World holds what survives an app restart (the platform's own
// persisted anchors); each Session is one run of the app against that world,
// with its own trackables, session anchors and tracking readiness.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/anchorage/internal/anchorid"
	"github.com/roach88/anchorage/internal/ar"
)

// Status codes reported by the simulator.
const (
	StatusSuccess            = "Success"
	StatusNotFound           = "NotFound"
	StatusServiceUnavailable = "ServiceUnavailable"
)

// World is the platform-side anchor persistence shared across sessions.
type World struct {
	mu     sync.Mutex
	scope  string
	saved  map[anchorid.ID]ar.Pose
	serial int
}

// NewWorld returns an empty world. A non-empty scope makes issued
// identifiers deterministic (derived from scope and a counter); an empty
// scope issues random identifiers.
func NewWorld(scope string) *World {
	return &World{scope: scope, saved: map[anchorid.ID]ar.Pose{}}
}

func (w *World) issue(pose ar.Pose) anchorid.ID {
	w.mu.Lock()
	defer w.mu.Unlock()

	var id anchorid.ID
	if w.scope != "" {
		id = anchorid.Derive(w.scope, fmt.Sprint(w.serial))
	} else {
		id = anchorid.New()
	}
	w.serial++
	w.saved[id] = pose
	return id
}

func (w *World) lookup(id anchorid.ID) (ar.Pose, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	pose, ok := w.saved[id]
	return pose, ok
}

// Put records id as persisted at pose, as if a previous run saved it.
func (w *World) Put(id anchorid.ID, pose ar.Pose) {
	w.mu.Lock()
	w.saved[id] = pose
	w.mu.Unlock()
}

// Forget drops id, as if the platform lost the anchor's map data.
func (w *World) Forget(id anchorid.ID) {
	w.mu.Lock()
	delete(w.saved, id)
	w.mu.Unlock()
}

// Saved returns how many anchors the platform holds.
func (w *World) Saved() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.saved)
}

// Session is one app run. It implements ar.Subsystem and ar.Raycaster.
type Session struct {
	world *World

	mu          sync.Mutex
	trackables  map[string]ar.Trackable
	screen      map[ar.Vec2]ar.Hit
	anchors     map[string]*ar.Anchor
	nextHandle  int
	stableAfter int
	checks      int
	saveFails   []string
	loadFails   map[anchorid.ID]string
	drift       ar.Vec3
	loads       []anchorid.ID
	onLoad      func(anchorid.ID)
}

// NewSession starts a session against w. Tracking reports stable after
// stableAfter readiness checks; negative never stabilizes.
func (w *World) NewSession(stableAfter int) *Session {
	return &Session{
		world:       w,
		trackables:  map[string]ar.Trackable{},
		screen:      map[ar.Vec2]ar.Hit{},
		anchors:     map[string]*ar.Anchor{},
		stableAfter: stableAfter,
		loadFails:   map[anchorid.ID]string{},
	}
}

// AddTrackable makes t valid for attachment.
func (s *Session) AddTrackable(t ar.Trackable) {
	s.mu.Lock()
	s.trackables[t.ID] = t
	s.mu.Unlock()
}

// RemoveTrackable invalidates a trackable; later attachments to it fail.
func (s *Session) RemoveTrackable(id string) {
	s.mu.Lock()
	delete(s.trackables, id)
	s.mu.Unlock()
}

// MapScreen makes a raycast at screen hit trackable at pose.
func (s *Session) MapScreen(screen ar.Vec2, trackable ar.Trackable, pose ar.Pose) {
	s.mu.Lock()
	s.screen[screen] = ar.Hit{Pose: pose, Trackable: trackable}
	s.mu.Unlock()
}

// FailNextSave queues a failure status for the next SaveAnchor call.
func (s *Session) FailNextSave(code string) {
	s.mu.Lock()
	s.saveFails = append(s.saveFails, code)
	s.mu.Unlock()
}

// FailLoad makes resolving id fail with code for this session.
func (s *Session) FailLoad(id anchorid.ID, code string) {
	s.mu.Lock()
	s.loadFails[id] = code
	s.mu.Unlock()
}

// SetDrift offsets every resolved position, modelling relocalization error.
func (s *Session) SetDrift(d ar.Vec3) {
	s.mu.Lock()
	s.drift = d
	s.mu.Unlock()
}

// OnLoad registers fn to run at the start of every LoadAnchor call.
func (s *Session) OnLoad(fn func(anchorid.ID)) {
	s.mu.Lock()
	s.onLoad = fn
	s.mu.Unlock()
}

// LoadRequests returns every identifier passed to LoadAnchor, in order.
func (s *Session) LoadRequests() []anchorid.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]anchorid.ID, len(s.loads))
	copy(out, s.loads)
	return out
}

// Checks returns how many readiness checks were made.
func (s *Session) Checks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checks
}

// SessionState implements ar.TrackingSource.
func (s *Session) SessionState() ar.SessionState {
	return ar.SessionTracking
}

// NotTrackingReason implements ar.TrackingSource. Every call is one check.
func (s *Session) NotTrackingReason() ar.NotTrackingReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks++
	if s.stableAfter >= 0 && s.checks > s.stableAfter {
		return ar.NotTrackingNone
	}
	return ar.NotTrackingInitializing
}

// Raycast implements ar.Raycaster.
func (s *Session) Raycast(screen ar.Vec2) (ar.Hit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hit, ok := s.screen[screen]
	return hit, ok
}

// Attach implements ar.Subsystem.
func (s *Session) Attach(t ar.Trackable, pose ar.Pose) *ar.Anchor {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trackables[t.ID]; !ok {
		return nil
	}
	a := &ar.Anchor{Handle: fmt.Sprintf("anchor-%d", s.nextHandle), Pose: pose}
	s.nextHandle++
	s.anchors[a.Handle] = a
	return a
}

// SaveAnchor implements ar.Subsystem.
func (s *Session) SaveAnchor(ctx context.Context, a *ar.Anchor) (ar.SaveStatus, error) {
	if err := ctx.Err(); err != nil {
		return ar.SaveStatus{}, err
	}

	s.mu.Lock()
	if len(s.saveFails) > 0 {
		code := s.saveFails[0]
		s.saveFails = s.saveFails[1:]
		s.mu.Unlock()
		return ar.SaveStatus{Code: code}, nil
	}
	_, live := s.anchors[a.Handle]
	s.mu.Unlock()

	if !live {
		return ar.SaveStatus{Code: StatusNotFound}, nil
	}
	id := s.world.issue(a.Pose)
	return ar.SaveStatus{OK: true, Code: StatusSuccess, ID: id}, nil
}

// LoadAnchor implements ar.Subsystem.
func (s *Session) LoadAnchor(ctx context.Context, id anchorid.ID) (ar.LoadStatus, error) {
	s.mu.Lock()
	s.loads = append(s.loads, id)
	fn := s.onLoad
	code, failing := s.loadFails[id]
	drift := s.drift
	s.mu.Unlock()

	if fn != nil {
		fn(id)
	}
	if err := ctx.Err(); err != nil {
		return ar.LoadStatus{}, err
	}
	if failing {
		return ar.LoadStatus{Code: code}, nil
	}

	pose, ok := s.world.lookup(id)
	if !ok {
		return ar.LoadStatus{Code: StatusNotFound}, nil
	}

	s.mu.Lock()
	a := &ar.Anchor{Handle: fmt.Sprintf("anchor-%d", s.nextHandle), Pose: pose}
	a.Pose.Position = a.Pose.Position.Add(drift)
	s.nextHandle++
	s.anchors[a.Handle] = a
	s.mu.Unlock()

	return ar.LoadStatus{OK: true, Code: StatusSuccess, Anchor: a}, nil
}
