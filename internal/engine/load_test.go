package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/anchorage/internal/anchorid"
	"github.com/roach88/anchorage/internal/ar"
	"github.com/roach88/anchorage/internal/kv"
	"github.com/roach88/anchorage/internal/sim"
	"github.com/roach88/anchorage/internal/testutil"
)

func TestLoad_TwoSavesThenRestart(t *testing.T) {
	world := sim.NewWorld(t.Name())
	backend := kv.NewMemory()

	first := newFixtureOn(t, world, backend)
	a := first.save(t, ar.Vec3{X: 1})
	b := first.save(t, ar.Vec3{X: 2, Z: -1})

	second := newFixtureOn(t, world, backend)
	report, err := second.engine.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(2), report.Attempted)
	assert.Equal(t, 2, report.Resolved)
	assert.Zero(t, report.Fallbacks)
	assert.Zero(t, report.Skipped)
	assert.Equal(t, []anchorid.ID{a.ID, b.ID}, second.session.LoadRequests())
	assert.Equal(t, []ar.Pose{
		{Position: ar.Vec3{X: 1}, Rotation: ar.Identity},
		{Position: ar.Vec3{X: 2, Z: -1}, Rotation: ar.Identity},
	}, second.sink.poses())
	assert.Equal(t, LoadDone, second.engine.LoadState())
}

func TestLoad_WaitsDelayThenPolls(t *testing.T) {
	world := sim.NewWorld(t.Name())
	f := newFixtureOn(t, world, kv.NewMemory())
	f.session = world.NewSession(3)
	e, err := New(context.Background(), f.session, f.store, WithClock(f.clock), WithObserver(f.rec))
	require.NoError(t, err)

	_, err = e.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{
		DefaultLoadDelay,
		500 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}, f.clock.Waits())
	assert.Equal(t, 4, f.session.Checks())
	assert.Equal(t, []LoadState{LoadWaitingDelay, LoadWaitingTracking, LoadDone}, f.rec.states())
}

func TestLoad_ZeroDelaySkipsWait(t *testing.T) {
	f := newFixture(t, WithConfig(Config{PollInterval: time.Second}))

	_, err := f.engine.Load(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.clock.Waits())
	assert.Equal(t, []LoadState{LoadWaitingTracking, LoadDone}, f.rec.states())
}

func TestLoad_StateSequencePerRecord(t *testing.T) {
	world := sim.NewWorld(t.Name())
	backend := kv.NewMemory()
	seed := newFixtureOn(t, world, backend)
	seed.save(t, ar.Vec3{X: 1})
	_, err := seed.store.Append(context.Background(), testutil.AnchorID(99), nil)
	require.NoError(t, err)

	f := newFixtureOn(t, world, backend, WithConfig(Config{}))
	_, err = f.engine.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []LoadState{
		LoadWaitingTracking,
		LoadIterating, LoadResolvingAnchor, LoadPlaced,
		LoadIterating, LoadResolvingAnchor, LoadFallbackPlaced,
		LoadDone,
	}, f.rec.states())
}

func TestLoad_FallbackToStoredCoordinate(t *testing.T) {
	world := sim.NewWorld(t.Name())
	backend := kv.NewMemory()
	seed := newFixtureOn(t, world, backend)
	res := seed.save(t, ar.Vec3{X: 4, Y: 0.5, Z: 4})
	world.Forget(res.ID)

	f := newFixtureOn(t, world, backend)
	report, err := f.engine.Load(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	out := report.Outcomes[0]
	assert.Equal(t, OutcomeFallback, out.Kind)
	assert.Equal(t, ar.Vec3{X: 4, Y: 0.5, Z: 4}, out.Position)
	assert.Equal(t, sim.StatusNotFound, out.Reason)
	assert.True(t, IsSubsystemFailure(out.Err))
	assert.Equal(t, 1, report.Fallbacks)
}

func TestLoad_FallbackToOriginWithoutCoordinate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	known := f.save(t, ar.Vec3{X: 1})
	_, err := f.store.Append(ctx, testutil.AnchorID(1), nil)
	require.NoError(t, err)

	report, err := f.engine.Load(ctx)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, OutcomeResolved, report.Outcomes[0].Kind)
	assert.Equal(t, known.ID, report.Outcomes[0].ID)
	assert.Equal(t, OutcomeFallback, report.Outcomes[1].Kind)
	assert.Equal(t, ar.Origin, report.Outcomes[1].Position)
	assert.Equal(t, ar.Identity, report.Outcomes[1].Rotation)
}

func TestLoad_FailedResolveStatus(t *testing.T) {
	f := newFixture(t)
	res := f.save(t, ar.Vec3{Z: 2})
	f.session.FailLoad(res.ID, sim.StatusServiceUnavailable)

	report, err := f.engine.Load(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, OutcomeFallback, report.Outcomes[0].Kind)
	assert.Equal(t, sim.StatusServiceUnavailable, report.Outcomes[0].Reason)
	assert.Equal(t, ar.Vec3{Z: 2}, report.Outcomes[0].Position)
}

func TestLoad_CorruptRecordSkippedOthersAttempted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.save(t, ar.Vec3{X: float64(i)})
	}
	require.NoError(t, f.backend.Set(ctx, "anchor_guid_2", "zzzzzzzz-zzzz-zzzz-zzzz-zzzzzzzzzzzz"))

	report, err := f.engine.Load(ctx)
	require.NoError(t, err)

	assert.Len(t, f.session.LoadRequests(), 4)
	assert.Equal(t, 4, report.Resolved)
	assert.Equal(t, 1, report.Skipped)

	skipped := report.Outcomes[2]
	assert.Equal(t, OutcomeSkipped, skipped.Kind)
	assert.Equal(t, string(ErrCodeMalformedIdentifier), skipped.Reason)
	assert.True(t, IsMalformedIdentifier(skipped.Err))
	assert.ErrorIs(t, skipped.Err, anchorid.ErrMalformed)
	assert.Len(t, f.sink.poses(), 5+4, "five saves plus four resolves")
}

func TestLoad_MissingRecordFieldsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.save(t, ar.Vec3{})
	f.save(t, ar.Vec3{})
	require.NoError(t, f.backend.Delete(ctx, "anchor_guid_0"))

	report, err := f.engine.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkipped, report.Outcomes[0].Kind)
	assert.True(t, IsNotFound(report.Outcomes[0].Err))
	assert.Equal(t, OutcomeResolved, report.Outcomes[1].Kind)
}

func TestLoad_AscendingOrder(t *testing.T) {
	f := newFixture(t)
	var want []anchorid.ID
	for i := 0; i < 6; i++ {
		want = append(want, f.save(t, ar.Vec3{X: float64(i)}).ID)
	}

	report, err := f.engine.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, want, f.session.LoadRequests())
	for i, out := range report.Outcomes {
		assert.Equal(t, uint64(i), out.Index)
	}
}

func TestLoad_CountSnapshotIgnoresLaterAppends(t *testing.T) {
	f := newFixture(t)
	f.save(t, ar.Vec3{X: 1})
	f.save(t, ar.Vec3{X: 2})

	var once sync.Once
	f.session.OnLoad(func(anchorid.ID) {
		once.Do(func() {
			_, err := f.store.Append(context.Background(), testutil.AnchorID(7), nil)
			require.NoError(t, err)
		})
	})

	report, err := f.engine.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(2), report.Attempted)
	assert.Len(t, f.session.LoadRequests(), 2)
	n, err := f.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
}

func TestLoad_EmptyStore(t *testing.T) {
	f := newFixture(t)

	report, err := f.engine.Load(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.Attempted)
	assert.Empty(t, report.Outcomes)
	assert.Empty(t, f.session.LoadRequests())
	assert.Equal(t, LoadDone, f.engine.LoadState())
}

func TestLoad_TrackingTimeout(t *testing.T) {
	world := sim.NewWorld(t.Name())
	f := newFixtureOn(t, world, kv.NewMemory())
	f.save(t, ar.Vec3{X: 1})
	session := world.NewSession(-1)
	e, err := New(context.Background(), session, f.store,
		WithClock(f.clock),
		WithObserver(f.rec),
		WithConfig(Config{PollInterval: 500 * time.Millisecond, TrackingTimeout: 2 * time.Second}),
	)
	require.NoError(t, err)

	report, err := e.Load(context.Background())

	require.Error(t, err)
	assert.True(t, IsTrackingTimeout(err))
	assert.Empty(t, report.Outcomes)
	assert.Empty(t, session.LoadRequests())
	assert.Equal(t, LoadTimedOut, e.LoadState())
	assert.Equal(t, 5, session.Checks())
}

// stuckClock never fires.
type stuckClock struct {
	testutil.FakeClock
}

func (c *stuckClock) After(time.Duration) <-chan time.Time {
	return nil
}

func TestLoad_CancelledDuringDelay(t *testing.T) {
	f := newFixture(t)
	f.save(t, ar.Vec3{})
	e, err := New(context.Background(), f.session, f.store, WithClock(&stuckClock{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Load(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, LoadCancelled, e.LoadState())
	assert.Zero(t, f.session.Checks())
}

func TestLoad_CancelledWhileWaitingForTracking(t *testing.T) {
	world := sim.NewWorld(t.Name())
	f := newFixtureOn(t, world, kv.NewMemory())
	f.save(t, ar.Vec3{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	polls := 0
	e, err := New(context.Background(), world.NewSession(-1), f.store,
		WithClock(testutil.NewFakeClock()),
		WithObserver(ObserverFunc(func(ev Event) {
			if ev.Kind == EventTrackingPoll {
				polls++
				if polls == 3 {
					cancel()
				}
			}
		})),
	)
	require.NoError(t, err)

	report, err := e.Load(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Outcomes)
	assert.Equal(t, LoadCancelled, e.LoadState())
	assert.LessOrEqual(t, polls, 4)
}

func TestLoad_CancelledMidIteration(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		f.save(t, ar.Vec3{X: float64(i)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	f.session.OnLoad(func(anchorid.ID) {
		calls++
		if calls == 2 {
			cancel()
		}
	})

	report, err := f.engine.Load(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, report.Outcomes, 1, "only the first record finished")
	assert.Len(t, f.session.LoadRequests(), 2)
	assert.Equal(t, LoadCancelled, f.engine.LoadState())
}

func TestLoad_ConcurrentPassRejected(t *testing.T) {
	f := newFixture(t)
	f.save(t, ar.Vec3{})

	var nestedErr error
	f.session.OnLoad(func(anchorid.ID) {
		_, nestedErr = f.engine.Load(context.Background())
	})

	_, err := f.engine.Load(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, nestedErr, ErrLoadInProgress)

	f.session.OnLoad(nil)
	_, err = f.engine.Load(context.Background())
	assert.NoError(t, err, "a finished pass releases the engine")
}

func TestLoad_OutcomeEventsCarryIndex(t *testing.T) {
	f := newFixture(t)
	f.save(t, ar.Vec3{})
	f.save(t, ar.Vec3{})

	_, err := f.engine.Load(context.Background())
	require.NoError(t, err)

	var indices []uint64
	for _, ev := range f.rec.all() {
		if ev.Kind == EventOutcome {
			require.True(t, ev.HasIndex)
			require.NotNil(t, ev.Outcome)
			indices = append(indices, ev.Index)
		}
	}
	assert.Equal(t, []uint64{0, 1}, indices)
}

func TestLoad_DriftMovesResolvedContent(t *testing.T) {
	f := newFixture(t)
	f.save(t, ar.Vec3{X: 1})
	f.session.SetDrift(ar.Vec3{Y: 0.25})

	report, err := f.engine.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ar.Vec3{X: 1, Y: 0.25}, report.Outcomes[0].Position)
}
