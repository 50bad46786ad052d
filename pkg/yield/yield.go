// Package yield provides a cooperative scheduling checkpoint for long loops.
package yield

import "runtime"

// DefaultEvery is used when a checkpoint is built with a non-positive interval
const DefaultEvery = 50

// Checkpoint yields the processor every N ticks so long evaluation loops do
// not starve concurrent requests. The zero value yields every DefaultEvery
// ticks. A Checkpoint is not safe for concurrent use.
type Checkpoint struct {
	every  int
	n      int
	yields int
	yield  func()
}

// New creates a checkpoint yielding every n ticks
func New(n int) *Checkpoint {
	if n <= 0 {
		n = DefaultEvery
	}
	return &Checkpoint{every: n, yield: runtime.Gosched}
}

// Tick counts one iteration and yields when the interval is reached
func (c *Checkpoint) Tick() {
	if c.every <= 0 {
		c.every = DefaultEvery
	}
	c.n++
	if c.n%c.every != 0 {
		return
	}
	c.yields++
	if c.yield != nil {
		c.yield()
	} else {
		runtime.Gosched()
	}
}

// Yields returns how many times the checkpoint has yielded
func (c *Checkpoint) Yields() int {
	return c.yields
}
