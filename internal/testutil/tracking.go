package testutil

import (
	"sync"

	"github.com/roach88/anchorage/internal/ar"
)

// ScriptedTracking is an ar.TrackingSource that becomes stable after a fixed
// number of readiness checks.
//
// Each call to NotTrackingReason counts as one check. Before StableAfter
// checks it reports NotTrackingInitializing; from then on it reports none.
// A negative StableAfter never stabilizes.
type ScriptedTracking struct {
	mu          sync.Mutex
	stableAfter int
	checks      int
	onCheck     func(n int)
}

// NewScriptedTracking returns a source that is stable from check n+1 on.
func NewScriptedTracking(stableAfter int) *ScriptedTracking {
	return &ScriptedTracking{stableAfter: stableAfter}
}

// OnCheck registers fn to be called with the 1-based check number.
func (s *ScriptedTracking) OnCheck(fn func(n int)) {
	s.mu.Lock()
	s.onCheck = fn
	s.mu.Unlock()
}

// SessionState always reports an active tracking session.
func (s *ScriptedTracking) SessionState() ar.SessionState {
	return ar.SessionTracking
}

// NotTrackingReason counts a check and reports readiness.
func (s *ScriptedTracking) NotTrackingReason() ar.NotTrackingReason {
	s.mu.Lock()
	s.checks++
	n := s.checks
	fn := s.onCheck
	stable := s.stableAfter >= 0 && n > s.stableAfter
	s.mu.Unlock()

	if fn != nil {
		fn(n)
	}
	if stable {
		return ar.NotTrackingNone
	}
	return ar.NotTrackingInitializing
}

// Checks returns how many readiness checks were made.
func (s *ScriptedTracking) Checks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checks
}
