package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/anchorage/internal/anchorid"
	"github.com/roach88/anchorage/internal/ar"
)

// LoadState is the state of the current (or last) load pass.
type LoadState int

const (
	LoadIdle LoadState = iota
	LoadWaitingDelay
	LoadWaitingTracking
	LoadIterating
	LoadResolvingAnchor
	LoadPlaced
	LoadFallbackPlaced
	LoadDone
	LoadTimedOut
	LoadCancelled
)

func (s LoadState) String() string {
	switch s {
	case LoadIdle:
		return "idle"
	case LoadWaitingDelay:
		return "waiting_delay"
	case LoadWaitingTracking:
		return "waiting_tracking"
	case LoadIterating:
		return "iterating"
	case LoadResolvingAnchor:
		return "resolving_anchor"
	case LoadPlaced:
		return "placed"
	case LoadFallbackPlaced:
		return "fallback_placed"
	case LoadDone:
		return "done"
	case LoadTimedOut:
		return "timed_out"
	case LoadCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("LoadState(%d)", int(s))
	}
}

// OutcomeKind classifies one load attempt.
type OutcomeKind string

const (
	OutcomeResolved OutcomeKind = "resolved"
	OutcomeFallback OutcomeKind = "fallback"
	OutcomeSkipped  OutcomeKind = "skipped"
)

// Outcome is the placement result for one record in a load pass.
type Outcome struct {
	Index uint64
	Kind  OutcomeKind

	// ID is the zero identifier for skipped records.
	ID anchorid.ID

	// Position and Rotation are where content was placed. Unset when skipped.
	Position ar.Vec3
	Rotation ar.Quat

	// Reason explains a skip or fallback.
	Reason string
	Err    error
}

// EventKind names an engine event.
type EventKind string

const (
	EventSaveAttached   EventKind = "save_attached"
	EventSaveCommitted  EventKind = "save_committed"
	EventSaveWarning    EventKind = "save_warning"
	EventSaveFailed     EventKind = "save_failed"
	EventLoadState      EventKind = "load_state"
	EventTrackingPoll   EventKind = "tracking_poll"
	EventResolveRequest EventKind = "resolve_requested"
	EventOutcome        EventKind = "outcome"
	EventPlaced         EventKind = "placed"
)

// Event is delivered to observers. Only the fields relevant to Kind are set.
type Event struct {
	Seq  int64
	Kind EventKind

	State    LoadState
	Index    uint64
	HasIndex bool
	ID       anchorid.ID
	Stable   bool
	Outcome  *Outcome
	Position ar.Vec3
	Rotation ar.Quat
	Err      error
	Detail   string
}

// Observer receives engine events synchronously, on the goroutine that
// produced them. Implementations must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent calls f.
func (f ObserverFunc) OnEvent(ev Event) {
	f(ev)
}

// observers is a registration-ordered observer set.
type observers struct {
	mu     sync.RWMutex
	nextID int
	byID   map[int]Observer
}

func (o *observers) add(obs Observer) (remove func()) {
	o.mu.Lock()
	if o.byID == nil {
		o.byID = map[int]Observer{}
	}
	id := o.nextID
	o.nextID++
	o.byID[id] = obs
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.byID, id)
			o.mu.Unlock()
		})
	}
}

// snapshot returns observers in registration order.
func (o *observers) snapshot() []Observer {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ids := make([]int, 0, len(o.byID))
	for id := range o.byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]Observer, len(ids))
	for i, id := range ids {
		out[i] = o.byID[id]
	}
	return out
}
