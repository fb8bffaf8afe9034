package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/anchorage/internal/ar"
	"github.com/roach88/anchorage/internal/kv"
	"github.com/roach88/anchorage/internal/sim"
	"github.com/roach88/anchorage/internal/store"
	"github.com/roach88/anchorage/internal/testutil"
)

var floor = ar.Trackable{ID: "plane-floor", Kind: ar.TrackablePlane}

// recorder is an Observer that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) kinds() []EventKind {
	var out []EventKind
	for _, ev := range r.all() {
		if ev.Kind == EventTrackingPoll || ev.Kind == EventLoadState {
			continue
		}
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) states() []LoadState {
	var out []LoadState
	for _, ev := range r.all() {
		if ev.Kind == EventLoadState {
			out = append(out, ev.State)
		}
	}
	return out
}

// placement collects everything placed through a sink.
type placement struct {
	mu     sync.Mutex
	placed []ar.Pose
}

func (p *placement) Place(position ar.Vec3, rotation ar.Quat) {
	p.mu.Lock()
	p.placed = append(p.placed, ar.Pose{Position: position, Rotation: rotation})
	p.mu.Unlock()
}

func (p *placement) poses() []ar.Pose {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ar.Pose, len(p.placed))
	copy(out, p.placed)
	return out
}

type fixture struct {
	world   *sim.World
	session *sim.Session
	backend kv.Store
	store   *store.Store
	clock   *testutil.FakeClock
	rec     *recorder
	sink    *placement
	engine  *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureOn(t, sim.NewWorld(t.Name()), kv.NewMemory(), opts...)
}

// newFixtureOn starts a fresh session and engine over an existing world and
// backend, as an app restart would.
func newFixtureOn(t *testing.T, world *sim.World, backend kv.Store, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		world:   world,
		session: world.NewSession(0),
		backend: backend,
		store:   store.New(backend),
		clock:   testutil.NewFakeClock(),
		rec:     &recorder{},
		sink:    &placement{},
	}
	f.session.AddTrackable(floor)

	all := append([]Option{
		WithClock(f.clock),
		WithObserver(f.rec),
		WithPlacementSink(f.sink),
	}, opts...)

	e, err := New(context.Background(), f.session, f.store, all...)
	require.NoError(t, err)
	f.engine = e
	return f
}

func newStore() *store.Store {
	return store.New(kv.NewMemory())
}

func (f *fixture) save(t *testing.T, at ar.Vec3) SaveResult {
	t.Helper()
	res, err := f.engine.Save(context.Background(), SaveRequest{
		Trackable: floor,
		Pose:      ar.Pose{Position: at, Rotation: ar.Identity},
	})
	require.NoError(t, err)
	require.NoError(t, res.Warning)
	return res
}

func TestNew_MirrorsStoreCount(t *testing.T) {
	backend := kv.NewMemory()
	st := store.New(backend)
	for i := 0; i < 3; i++ {
		_, err := st.Append(context.Background(), testutil.AnchorID(i), nil)
		require.NoError(t, err)
	}

	f := newFixtureOn(t, sim.NewWorld(t.Name()), backend)

	assert.Equal(t, uint64(3), f.engine.NextIndex())
	assert.Equal(t, LoadIdle, f.engine.LoadState())
}

func TestNew_UnreadableCount(t *testing.T) {
	backend := kv.NewMemory()
	require.NoError(t, backend.Set(context.Background(), "anchor_count", "many"))

	_, err := New(context.Background(), sim.NewWorld("x").NewSession(0), store.New(backend))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read anchor count")
}

func TestRegister_UnregisterIsIdempotent(t *testing.T) {
	f := newFixture(t)

	extra := &recorder{}
	unregister := f.engine.Register(extra)

	f.save(t, ar.Vec3{X: 1})
	seen := len(extra.all())
	require.NotZero(t, seen)

	unregister()
	unregister()

	f.save(t, ar.Vec3{X: 2})
	assert.Len(t, extra.all(), seen, "no events after unregister")
	assert.Greater(t, len(f.rec.all()), seen, "other observers keep receiving")
}

func TestObservers_CalledInRegistrationOrder(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		f.engine.Register(ObserverFunc(func(ev Event) {
			if ev.Kind != EventSaveAttached {
				return
			}
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}))
	}

	f.save(t, ar.Vec3{})

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestEvents_SeqStrictlyIncreasing(t *testing.T) {
	f := newFixture(t, WithConfig(Config{LoadDelay: time.Second}))
	f.save(t, ar.Vec3{X: 1})
	f.save(t, ar.Vec3{X: 2})
	_, err := f.engine.Load(context.Background())
	require.NoError(t, err)

	events := f.rec.all()
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq)
	}
}

func TestError_Format(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "plain",
			err:  &Error{Code: ErrCodeTrackingTimeout, Message: "tracking not stable"},
			want: "TRACKING_TIMEOUT: tracking not stable",
		},
		{
			name: "index",
			err:  &Error{Code: ErrCodeNotFound, Message: "record unreadable", Index: 4, HasIndex: true},
			want: "NOT_FOUND: record unreadable (index=4)",
		},
		{
			name: "identifier",
			err:  &Error{Code: ErrCodeStorageUnavailable, Message: "not written", Identifier: "abc"},
			want: "STORAGE_UNAVAILABLE: not written (id=abc)",
		},
		{
			name: "both",
			err: &Error{
				Code: ErrCodeSubsystemFailure, Message: "resolve failed",
				Index: 0, HasIndex: true, Identifier: "abc",
			},
			want: "SUBSYSTEM_FAILURE: resolve failed (index=0, id=abc)",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestRecordError_Classification(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	st := store.New(backend)
	_, err := st.Append(ctx, testutil.AnchorID(0), nil)
	require.NoError(t, err)
	require.NoError(t, backend.Set(ctx, "anchor_guid_0", "not-a-guid"))

	_, err = st.Get(ctx, 0)
	assert.True(t, IsMalformedIdentifier(recordError(0, err)))

	_, err = st.Get(ctx, 7)
	assert.True(t, IsNotFound(recordError(7, err)))

	assert.True(t, IsStorageUnavailable(recordError(0, testutil.ErrInjected)))
	assert.ErrorIs(t, recordError(0, testutil.ErrInjected), testutil.ErrInjected)
}
