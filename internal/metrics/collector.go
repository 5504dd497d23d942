// Package metrics exposes engine activity as Prometheus metrics.
package metrics

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/roach88/sequencer/internal/engine"
)

const namespace = "sequencer"

// Collector implements engine.Observer using Prometheus.
//
// Each collector owns its registry, so several distributors (or tests) in
// one process never collide on metric names.
type Collector struct {
	registry *prometheus.Registry

	runsStarted     *prometheus.CounterVec
	runsFinished    *prometheus.CounterVec
	verticesVisited *prometheus.CounterVec
	marks           prometheus.Counter
	activeRuns      prometheus.Gauge
	runDuration     *prometheus.HistogramVec

	mu      sync.Mutex
	started map[string]time.Time
	now     func() time.Time
}

var _ engine.Observer = (*Collector)(nil)

// NewCollector creates a collector with a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		runsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of runs started",
			},
			[]string{"schedule", "local"},
		),
		runsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_finished_total",
				Help:      "Total number of runs finished by terminal state",
			},
			[]string{"schedule", "state"},
		),
		verticesVisited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "vertices_processed_total",
				Help:      "Total number of vertices processed by kind and verdict",
			},
			[]string{"kind", "state"},
		),
		marks: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "history_marks_total",
				Help:      "Total number of history checkpoints issued",
			},
		),
		activeRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Number of runs currently executing",
			},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Run duration in seconds",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"schedule"},
		),
		started: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) RunStarted(r engine.RunInfo) {
	c.runsStarted.WithLabelValues(scheduleLabel(r), fmt.Sprint(r.Local)).Inc()
	c.activeRuns.Inc()

	c.mu.Lock()
	c.started[r.RunID] = c.now()
	c.mu.Unlock()
}

func (c *Collector) VertexProcessed(v engine.Visit) {
	c.verticesVisited.WithLabelValues(v.Kind.String(), v.State.String()).Inc()
}

func (c *Collector) Marked(engine.Mark) {
	c.marks.Inc()
}

func (c *Collector) RunFinished(r engine.RunInfo) {
	c.runsFinished.WithLabelValues(scheduleLabel(r), r.State.String()).Inc()
	c.activeRuns.Dec()

	c.mu.Lock()
	start, ok := c.started[r.RunID]
	delete(c.started, r.RunID)
	c.mu.Unlock()
	if ok {
		c.runDuration.WithLabelValues(scheduleLabel(r)).Observe(c.now().Sub(start).Seconds())
	}
}

// WriteText writes every metric in the Prometheus text exposition format.
func (c *Collector) WriteText(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func scheduleLabel(r engine.RunInfo) string {
	if r.ScheduleName != "" {
		return r.ScheduleName
	}
	return string(r.Schedule)
}
