package engine

import "sync"

// EventType distinguishes observer events.
type EventType int

const (
	EventRunStarted EventType = iota + 1
	EventVertexProcessed
	EventMarked
	EventRunFinished
)

// Event is one queued observer call.
type Event struct {
	Type  EventType
	Run   RunInfo
	Visit Visit
	Mark  Mark
}

// eventQueue is an unbounded FIFO of events.
//
// Producers are run goroutines and never block. The single consumer waits
// on the signal channel, which has a buffer of one so bursts of Enqueue
// calls coalesce into one wake-up.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends e. It returns false once the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, e)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	// Clear the slot so errors held by the event can be collected.
	q.events[0] = Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that is signaled when events may be available and
// closed once the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Drained reports whether the queue is closed and empty.
func (q *eventQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

// Close stops the queue accepting events and wakes the consumer.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
