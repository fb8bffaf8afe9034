package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/anchorage/internal/anchorid"
	"github.com/roach88/anchorage/internal/ar"
	"github.com/roach88/anchorage/internal/engine"
	"github.com/roach88/anchorage/internal/kv"
	"github.com/roach88/anchorage/internal/sim"
	"github.com/roach88/anchorage/internal/store"
	"github.com/roach88/anchorage/internal/testutil"
)

// Option configures a run.
type Option func(*runner)

// WithBackend runs against backend instead of a fresh in-memory store. The
// caller keeps ownership of backend.
func WithBackend(backend kv.Store) Option {
	return func(r *runner) {
		r.backend = backend
	}
}

// WithObserver registers obs on every session's engine.
func WithObserver(obs engine.Observer) Option {
	return func(r *runner) {
		r.observers = append(r.observers, obs)
	}
}

// WithLogger logs every engine event to logger.
func WithLogger(logger *slog.Logger) Option {
	return WithObserver(engine.NewLogObserver(logger))
}

type runner struct {
	scenario  *Scenario
	backend   kv.Store
	observers []engine.Observer

	store  *store.Store
	world  *sim.World
	result *Result

	mu sync.Mutex
}

// Run executes a scenario and evaluates its assertions.
//
// Each session gets a fresh simulated session and engine over the same
// record store and world, and a fake clock so waits never sleep. Assertion
// failures are reported in Result.Errors; the error return is reserved for
// scenarios that could not be executed at all.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	r := &runner{
		scenario: scenario,
		world:    sim.NewWorld(scenario.Name),
		result:   NewResult(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.backend == nil {
		r.backend = kv.NewMemory()
	}
	r.store = store.New(r.backend, store.WithNamespace(scenario.Namespace))

	if err := r.seed(ctx); err != nil {
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}

	for i, spec := range scenario.Sessions {
		sr, err := r.runSession(ctx, i, spec)
		if err != nil {
			return nil, fmt.Errorf("session %d: %w", i, err)
		}
		r.result.Sessions = append(r.result.Sessions, sr)
	}

	count, err := r.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read final count: %w", err)
	}
	r.result.Count = count

	for _, msg := range EvaluateAssertions(r.result, scenario.Assertions) {
		r.result.AddError(msg)
	}
	return r.result, nil
}

func (r *runner) seed(ctx context.Context) error {
	for i, rec := range r.scenario.Seed {
		id := anchorid.Derive(r.scenario.Name, fmt.Sprintf("seed-%d", i))
		if rec.ID != "" {
			var err error
			if id, err = anchorid.Decode(rec.ID); err != nil {
				return fmt.Errorf("seed[%d]: %w", i, err)
			}
		}

		var fallback *ar.Vec3
		if rec.Fallback != nil {
			v := rec.Fallback.vec3()
			fallback = &v
		}

		if rec.Known {
			pose := ar.Pose{Rotation: ar.Identity}
			switch {
			case rec.At != nil:
				pose.Position = rec.At.vec3()
			case fallback != nil:
				pose.Position = *fallback
			}
			r.world.Put(id, pose)
		}

		var err error
		if rec.Legacy {
			_, err = r.store.AppendLegacy(ctx, id, fallback)
		} else {
			_, err = r.store.Append(ctx, id, fallback)
		}
		if err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
	}

	if len(r.scenario.Raw) == 0 {
		return nil
	}

	keys := make([]string, 0, len(r.scenario.Raw))
	for k := range r.scenario.Raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		var err error
		if v := r.scenario.Raw[k]; v == "" {
			err = r.backend.Delete(ctx, k)
		} else {
			err = r.backend.Set(ctx, k, v)
		}
		if err != nil {
			return fmt.Errorf("raw %s: %w", k, err)
		}
	}
	return r.backend.Flush(ctx)
}

func (r *runner) config() engine.Config {
	cfg := engine.DefaultConfig()
	l := r.scenario.Loader
	if l.Delay != nil {
		cfg.LoadDelay = *l.Delay
	}
	if l.PollInterval != nil {
		cfg.PollInterval = *l.PollInterval
	}
	if l.TrackingTimeout != nil {
		cfg.TrackingTimeout = *l.TrackingTimeout
	}
	return cfg
}

// record appends an engine event to the trace.
func (r *runner) record(session int, ev engine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Trace = append(r.result.Trace, TraceEvent{
		Seq:     len(r.result.Trace) + 1,
		Session: session,
		Kind:    string(ev.Kind),
		Detail:  describe(ev),
	})
}

func (r *runner) runSession(ctx context.Context, index int, spec SessionSpec) (SessionResult, error) {
	var out SessionResult

	session := r.world.NewSession(spec.StableAfter)
	for _, name := range spec.Planes {
		session.AddTrackable(ar.Trackable{ID: name, Kind: ar.TrackablePlane})
	}
	if spec.Drift != nil {
		session.SetDrift(spec.Drift.vec3())
	}
	if err := r.applyPlatformState(ctx, session, spec); err != nil {
		return out, err
	}

	var requested []uint64
	opts := []engine.Option{
		engine.WithClock(testutil.NewFakeClock()),
		engine.WithConfig(r.config()),
		engine.WithObserver(engine.ObserverFunc(func(ev engine.Event) {
			r.record(index, ev)
			if ev.Kind == engine.EventResolveRequest {
				requested = append(requested, ev.Index)
			}
		})),
	}
	if spec.Viewer != nil {
		opts = append(opts, engine.WithViewer(ar.FixedViewer(spec.Viewer.vec3())))
	}
	for _, obs := range r.observers {
		opts = append(opts, engine.WithObserver(obs))
	}

	eng, err := engine.New(ctx, session, r.store, opts...)
	if err != nil {
		return out, err
	}

	for _, step := range spec.Saves {
		out.Saves = append(out.Saves, r.save(ctx, eng, session, step))
	}

	if !spec.Load {
		return out, nil
	}

	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if spec.CancelAfter > 0 {
		calls := 0
		session.OnLoad(func(anchorid.ID) {
			calls++
			if calls == spec.CancelAfter {
				cancel()
			}
		})
	}

	report, err := eng.Load(loadCtx)
	summary := &LoadSummary{
		Attempted: report.Attempted,
		Outcomes:  make([]OutcomeSummary, 0, len(report.Outcomes)),
		Requested: requested,
	}
	switch {
	case err == nil:
		summary.Result = "done"
	case engine.IsTrackingTimeout(err):
		summary.Result = "timed_out"
	case errors.Is(err, context.Canceled) && ctx.Err() == nil:
		summary.Result = "cancelled"
	default:
		return out, fmt.Errorf("load pass: %w", err)
	}
	if summary.Requested == nil {
		summary.Requested = []uint64{}
	}

	for _, o := range report.Outcomes {
		sum := OutcomeSummary{
			Index:  o.Index,
			Kind:   string(o.Kind),
			At:     vecOf(o.Position),
			Reason: o.Reason,
		}
		if !o.ID.IsZero() {
			sum.ID = o.ID.String()
		}
		summary.Outcomes = append(summary.Outcomes, sum)
	}
	out.Load = summary
	return out, nil
}

// applyPlatformState applies per-session forget and fail_loads entries, which
// are keyed by record index.
func (r *runner) applyPlatformState(ctx context.Context, session *sim.Session, spec SessionSpec) error {
	lookup := func(index uint64) (anchorid.ID, error) {
		rec, err := r.store.Get(ctx, index)
		if err != nil {
			return anchorid.Zero, fmt.Errorf("record %d: %w", index, err)
		}
		return rec.ID, nil
	}

	for _, index := range spec.Forget {
		id, err := lookup(index)
		if err != nil {
			return fmt.Errorf("forget: %w", err)
		}
		r.world.Forget(id)
	}

	indices := make([]uint64, 0, len(spec.FailLoads))
	for index := range spec.FailLoads {
		indices = append(indices, index)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	for _, index := range indices {
		id, err := lookup(index)
		if err != nil {
			return fmt.Errorf("fail_loads: %w", err)
		}
		session.FailLoad(id, spec.FailLoads[index])
	}
	return nil
}

func (r *runner) save(ctx context.Context, eng *engine.Engine, session *sim.Session, step SaveStep) SaveSummary {
	if step.Fail != "" {
		session.FailNextSave(step.Fail)
	}

	req := engine.SaveRequest{
		Trackable: ar.Trackable{ID: step.Plane, Kind: ar.TrackablePlane},
		Pose:      ar.Pose{Position: step.At.vec3(), Rotation: ar.Identity},
	}
	if step.Fallback != nil {
		fb := step.Fallback.vec3()
		req.Fallback = &fb
	}

	res, err := eng.Save(ctx, req)
	switch {
	case engine.IsAttachmentFailed(err):
		return SaveSummary{Result: "attach_failed", Warning: err.Error()}
	case err != nil:
		return SaveSummary{Result: "cancelled", Warning: err.Error()}
	case res.Warning != nil:
		s := SaveSummary{Result: "warning", Warning: res.Warning.Error()}
		if !res.ID.IsZero() {
			s.ID = res.ID.String()
		}
		return s
	default:
		return SaveSummary{Result: "committed", Index: res.Index, ID: res.ID.String()}
	}
}
