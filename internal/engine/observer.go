package engine

import (
	"log/slog"

	"github.com/roach88/sequencer/internal/execution"
	"github.com/roach88/sequencer/internal/history"
	"github.com/roach88/sequencer/internal/ir"
	"github.com/roach88/sequencer/internal/schedule"
)

// RunInfo describes a run at start or finish.
type RunInfo struct {
	RunID        string
	ParentRunID  string
	Schedule     ir.ScheduleID
	ScheduleName string
	Local        bool
	State        execution.State
	Err          error
	Visits       int
	Seq          int64
}

// Visit describes one processed vertex.
type Visit struct {
	RunID    string
	Schedule ir.ScheduleID
	Seq      int64
	Index    int
	Label    string
	Kind     schedule.Kind
	State    execution.State
	Err      error
}

// Mark describes a checkpoint issued by a history-mark vertex.
type Mark struct {
	RunID    string
	Schedule ir.ScheduleID
	Seq      int64
	Index    int
	Label    string
	Marker   history.TimeMarker
}

// Observer receives run lifecycle events. Calls for one run arrive in
// order from the run's goroutine; calls for different runs may be
// concurrent.
type Observer interface {
	RunStarted(RunInfo)
	VertexProcessed(Visit)
	Marked(Mark)
	RunFinished(RunInfo)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) RunStarted(RunInfo)    {}
func (NopObserver) VertexProcessed(Visit) {}
func (NopObserver) Marked(Mark)           {}
func (NopObserver) RunFinished(RunInfo)   {}

// MultiObserver fans events out in order.
type MultiObserver []Observer

func (m MultiObserver) RunStarted(r RunInfo) {
	for _, o := range m {
		o.RunStarted(r)
	}
}

func (m MultiObserver) VertexProcessed(v Visit) {
	for _, o := range m {
		o.VertexProcessed(v)
	}
}

func (m MultiObserver) Marked(mk Mark) {
	for _, o := range m {
		o.Marked(mk)
	}
}

func (m MultiObserver) RunFinished(r RunInfo) {
	for _, o := range m {
		o.RunFinished(r)
	}
}

// LogObserver writes events to a structured logger.
type LogObserver struct {
	Logger *slog.Logger
}

func (l LogObserver) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l LogObserver) RunStarted(r RunInfo) {
	l.logger().Info("run started",
		"run", r.RunID,
		"schedule", r.ScheduleName,
		"parent", r.ParentRunID,
		"local", r.Local,
	)
}

func (l LogObserver) VertexProcessed(v Visit) {
	attrs := []any{
		"run", v.RunID,
		"seq", v.Seq,
		"vertex", v.Label,
		"kind", v.Kind.String(),
		"state", v.State.String(),
	}
	if v.Err != nil {
		l.logger().Warn("vertex failed", append(attrs, "error", v.Err)...)
		return
	}
	l.logger().Debug("vertex processed", attrs...)
}

func (l LogObserver) Marked(m Mark) {
	l.logger().Info("history marked", "run", m.RunID, "vertex", m.Label, "marker", m.Marker.ID)
}

func (l LogObserver) RunFinished(r RunInfo) {
	attrs := []any{
		"run", r.RunID,
		"schedule", r.ScheduleName,
		"state", r.State.String(),
		"visits", r.Visits,
	}
	if r.Err != nil {
		l.logger().Error("run failed", append(attrs, "error", r.Err)...)
		return
	}
	l.logger().Info("run finished", attrs...)
}

// AsyncObserver delivers events to another observer from a single
// goroutine, in the order they were observed. Producers never block on
// the wrapped observer, which lets a slow sink such as a database sit
// behind many concurrent runs.
type AsyncObserver struct {
	next  Observer
	queue *eventQueue
	done  chan struct{}
}

// NewAsyncObserver starts delivering to next. Call Close to flush.
func NewAsyncObserver(next Observer) *AsyncObserver {
	a := &AsyncObserver{
		next:  next,
		queue: newEventQueue(),
		done:  make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *AsyncObserver) RunStarted(r RunInfo) {
	a.queue.Enqueue(Event{Type: EventRunStarted, Run: r})
}

func (a *AsyncObserver) VertexProcessed(v Visit) {
	a.queue.Enqueue(Event{Type: EventVertexProcessed, Visit: v})
}

func (a *AsyncObserver) Marked(m Mark) {
	a.queue.Enqueue(Event{Type: EventMarked, Mark: m})
}

func (a *AsyncObserver) RunFinished(r RunInfo) {
	a.queue.Enqueue(Event{Type: EventRunFinished, Run: r})
}

// Close stops accepting events and blocks until every queued event has
// been delivered.
func (a *AsyncObserver) Close() {
	a.queue.Close()
	<-a.done
}

func (a *AsyncObserver) loop() {
	defer close(a.done)
	for {
		if e, ok := a.queue.TryDequeue(); ok {
			a.deliver(e)
			continue
		}
		if a.queue.Drained() {
			return
		}
		<-a.queue.Wait()
	}
}

func (a *AsyncObserver) deliver(e Event) {
	switch e.Type {
	case EventRunStarted:
		a.next.RunStarted(e.Run)
	case EventVertexProcessed:
		a.next.VertexProcessed(e.Visit)
	case EventMarked:
		a.next.Marked(e.Mark)
	case EventRunFinished:
		a.next.RunFinished(e.Run)
	}
}
