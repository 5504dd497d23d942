package engine

import "sync/atomic"

// Clock is the logical clock stamping vertex visits and run events.
//
// Every visit observed by a Distributor gets a strictly increasing seq,
// shared by all runs it drives, so traces from concurrent runs interleave
// in one total order without relying on wall time.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start, for example after
// the last seq recorded in a store.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new seq.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued seq.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
