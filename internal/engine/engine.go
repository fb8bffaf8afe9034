package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/roach88/anchorage/internal/ar"
	"github.com/roach88/anchorage/internal/store"
	"github.com/roach88/anchorage/internal/tracking"
)

// DefaultLoadDelay is the grace period before a load pass starts polling
// tracking readiness. It covers platform session bring-up.
const DefaultLoadDelay = 3 * time.Second

// Config holds load pass timing.
type Config struct {
	// LoadDelay is waited once before polling tracking. Zero skips it.
	LoadDelay time.Duration

	// PollInterval is the tracking readiness cadence.
	PollInterval time.Duration

	// TrackingTimeout bounds the tracking wait. Zero waits until the
	// context is cancelled.
	TrackingTimeout time.Duration
}

// DefaultConfig returns the observed production timings.
func DefaultConfig() Config {
	return Config{
		LoadDelay:    DefaultLoadDelay,
		PollInterval: tracking.DefaultPollInterval,
	}
}

// Engine is the anchor reconciliation engine.
//
// Thread-safety model:
//   - Save, SubmitSave, HandlePress: safe from any goroutine
//   - Load: one pass at a time; a concurrent call returns ErrLoadInProgress
//   - Register: safe from any goroutine
type Engine struct {
	sub   ar.Subsystem
	store *store.Store
	gate  *tracking.Gate
	clock tracking.Clock
	cfg   Config

	sink      ar.PlacementSink
	viewer    ar.Viewer
	raycaster ar.Raycaster

	seq       sequence
	observers observers

	// nextIndex mirrors the store's count: read at construction and
	// refreshed after every committed save.
	nextIndex atomic.Uint64

	state   atomic.Int32
	loading atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets load pass timing.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithClock sets the wall clock used for the load delay and tracking polls.
func WithClock(c tracking.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithPlacementSink sets where content is placed.
func WithPlacementSink(s ar.PlacementSink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithViewer sets the viewer whose heading orients placed content.
func WithViewer(v ar.Viewer) Option {
	return func(e *Engine) {
		e.viewer = v
	}
}

// WithRaycaster enables HandlePress.
func WithRaycaster(r ar.Raycaster) Option {
	return func(e *Engine) {
		e.raycaster = r
	}
}

// WithObserver registers obs for the engine's whole lifetime.
func WithObserver(obs Observer) Option {
	return func(e *Engine) {
		e.observers.add(obs)
	}
}

// New creates an Engine and mirrors the store's record count.
func New(ctx context.Context, sub ar.Subsystem, st *store.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		sub:   sub,
		store: st,
		clock: tracking.SystemClock{},
		cfg:   DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.gate = tracking.NewGate(sub, e.clock)
	e.gate.OnPoll(func(stable bool) {
		e.emit(Event{Kind: EventTrackingPoll, Stable: stable})
	})

	count, err := st.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: read anchor count: %w", err)
	}
	e.nextIndex.Store(count)

	return e, nil
}

// Register adds obs and returns a function that removes it. The returned
// function is idempotent.
func (e *Engine) Register(obs Observer) (unregister func()) {
	return e.observers.add(obs)
}

// NextIndex returns the index the next committed save will occupy, as far as
// this engine knows.
func (e *Engine) NextIndex() uint64 {
	return e.nextIndex.Load()
}

// advanceNextIndex raises nextIndex to n; concurrent saves may commit out
// of order.
func (e *Engine) advanceNextIndex(n uint64) {
	for {
		cur := e.nextIndex.Load()
		if n <= cur || e.nextIndex.CompareAndSwap(cur, n) {
			return
		}
	}
}

// LoadState returns the state of the current or most recent load pass.
func (e *Engine) LoadState() LoadState {
	return LoadState(e.state.Load())
}

func (e *Engine) emit(ev Event) {
	ev.Seq = e.seq.next()
	for _, obs := range e.observers.snapshot() {
		obs.OnEvent(ev)
	}
}

func (e *Engine) setState(s LoadState) {
	e.state.Store(int32(s))
	e.emit(Event{Kind: EventLoadState, State: s})
}

func (e *Engine) setStateAt(s LoadState, index uint64) {
	e.state.Store(int32(s))
	e.emit(Event{Kind: EventLoadState, State: s, Index: index, HasIndex: true})
}

// facing returns the rotation for content placed now: towards the viewer's
// horizontal heading, or keep when there is no viewer or no heading.
func (e *Engine) facing(keep ar.Quat) ar.Quat {
	if e.viewer == nil {
		return keep
	}
	return ar.YawTowards(e.viewer.Forward(), keep)
}

func (e *Engine) place(position ar.Vec3, rotation ar.Quat, index uint64, hasIndex bool) {
	if e.sink != nil {
		e.sink.Place(position, rotation)
	}
	e.emit(Event{
		Kind:     EventPlaced,
		Position: position,
		Rotation: rotation,
		Index:    index,
		HasIndex: hasIndex,
	})
}
