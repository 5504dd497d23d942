package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sequencer/internal/engine"
	"github.com/roach88/sequencer/internal/execution"
	"github.com/roach88/sequencer/internal/schedule"
)

func TestCollector_CountsRunLifecycle(t *testing.T) {
	c := NewCollector()
	clock := time.Unix(0, 0)
	c.now = func() time.Time { return clock }

	run := engine.RunInfo{RunID: "r1", Schedule: "schedule-1", ScheduleName: "nightly", Local: true}
	c.RunStarted(run)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.activeRuns))

	c.VertexProcessed(engine.Visit{Kind: schedule.KindStart, State: execution.StateExecuting})
	c.VertexProcessed(engine.Visit{Kind: schedule.KindAction, State: execution.StateExecuting})
	c.VertexProcessed(engine.Visit{Kind: schedule.KindAction, State: execution.StateFailed, Err: errors.New("x")})
	c.Marked(engine.Mark{})

	clock = clock.Add(2 * time.Second)
	run.State = execution.StateFailed
	c.RunFinished(run)

	assert.Equal(t, 0.0, testutil.ToFloat64(c.activeRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsStarted.WithLabelValues("nightly", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsFinished.WithLabelValues("nightly", "failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.verticesVisited.WithLabelValues("action", "executing"))+
		testutil.ToFloat64(c.verticesVisited.WithLabelValues("start", "executing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.verticesVisited.WithLabelValues("action", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.marks))
	assert.Empty(t, c.started)
}

func TestCollector_WriteText(t *testing.T) {
	c := NewCollector()
	c.RunStarted(engine.RunInfo{RunID: "r", Schedule: "schedule-9"})
	c.RunFinished(engine.RunInfo{RunID: "r", Schedule: "schedule-9", State: execution.StateCompleted})

	var sb strings.Builder
	require.NoError(t, c.WriteText(&sb))
	out := sb.String()

	assert.Contains(t, out, `sequencer_runs_finished_total{schedule="schedule-9",state="completed"} 1`)
	assert.Contains(t, out, "# TYPE sequencer_run_duration_seconds histogram")
	assert.Contains(t, out, "sequencer_active_runs 0")
}

func TestCollector_SeparateRegistries(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	a.Marked(engine.Mark{})

	assert.Equal(t, 1.0, testutil.ToFloat64(a.marks))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.marks))
}

func TestCollector_RecordsRunDuration(t *testing.T) {
	c := NewCollector()
	clock := time.Unix(0, 0)
	c.now = func() time.Time { return clock }

	run := engine.RunInfo{RunID: "r", ScheduleName: "nightly"}
	c.RunStarted(run)
	clock = clock.Add(750 * time.Millisecond)
	run.State = execution.StateCompleted
	c.RunFinished(run)

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	var hist *dto.Histogram
	for _, mf := range families {
		if mf.GetName() == "sequencer_run_duration_seconds" {
			require.Equal(t, dto.MetricType_HISTOGRAM, mf.GetType())
			require.Len(t, mf.GetMetric(), 1)
			hist = mf.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, hist, "duration histogram not gathered")
	assert.Equal(t, uint64(1), hist.GetSampleCount())
	assert.InDelta(t, 0.75, hist.GetSampleSum(), 1e-9)
}
