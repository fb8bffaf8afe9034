// Package metrics exports engine events as Prometheus metrics.
package metrics

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/anchorage/internal/engine"
)

const namespace = "anchorage"

// Observer is an engine.Observer that counts saves, load outcomes and
// tracking polls.
//
// Metrics are registered on the registry passed to New, never on the global
// default registry, so several engines (or tests) can coexist in a process.
type Observer struct {
	registry *prometheus.Registry

	saves      *prometheus.CounterVec
	outcomes   *prometheus.CounterVec
	polls      *prometheus.CounterVec
	passes     *prometheus.CounterVec
	nextIndex  prometheus.Gauge
	pollsToRdy prometheus.Histogram

	mu      sync.Mutex
	waiting bool
	pending int
}

// New registers the anchorage metrics on reg. A nil reg creates a fresh
// registry.
func New(reg *prometheus.Registry) *Observer {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Observer{
		registry: reg,

		// Labels: result (committed, warning, attach_failed)
		saves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "save",
			Name:      "requests_total",
			Help:      "Save requests by result",
		}, []string{"result"}),

		// Labels: kind (resolved, fallback, skipped)
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "outcomes_total",
			Help:      "Load pass outcomes by kind",
		}, []string{"kind"}),

		// Labels: stable (true, false)
		polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracking",
			Name:      "polls_total",
			Help:      "Tracking readiness checks by result",
		}, []string{"stable"}),

		// Labels: result (done, timed_out, cancelled)
		passes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "passes_total",
			Help:      "Finished load passes by terminal state",
		}, []string{"result"}),

		nextIndex: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "committed_records",
			Help:      "Highest committed record index plus one",
		}),

		pollsToRdy: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tracking",
			Name:      "polls_per_wait",
			Help:      "Readiness checks performed per tracking wait",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 60, 120},
		}),
	}
}

// OnEvent implements engine.Observer.
func (o *Observer) OnEvent(ev engine.Event) {
	switch ev.Kind {
	case engine.EventSaveCommitted:
		o.saves.WithLabelValues("committed").Inc()
		o.nextIndex.Set(float64(ev.Index + 1))
	case engine.EventSaveWarning:
		o.saves.WithLabelValues("warning").Inc()
	case engine.EventSaveFailed:
		o.saves.WithLabelValues("attach_failed").Inc()
	case engine.EventTrackingPoll:
		o.polls.WithLabelValues(strconv.FormatBool(ev.Stable)).Inc()
		o.mu.Lock()
		o.pending++
		o.mu.Unlock()
	case engine.EventOutcome:
		if ev.Outcome != nil {
			o.outcomes.WithLabelValues(string(ev.Outcome.Kind)).Inc()
		}
	case engine.EventLoadState:
		o.onState(ev.State)
	}
}

func (o *Observer) onState(s engine.LoadState) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if s == engine.LoadWaitingTracking {
		o.waiting = true
		o.pending = 0
		return
	}
	if o.waiting {
		o.pollsToRdy.Observe(float64(o.pending))
		o.waiting = false
	}

	switch s {
	case engine.LoadDone, engine.LoadTimedOut, engine.LoadCancelled:
		o.passes.WithLabelValues(s.String()).Inc()
	}
}

// WriteTextfile writes every metric on the registry to path in the
// node_exporter textfile format.
func (o *Observer) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, o.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
