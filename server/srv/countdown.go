package srv

import "context"

// countdown is the shared room clock. Values only ever decrease; the first
// value below zero fires the room once and stops the ticker.
type countdown struct {
	counter int
	fired   bool
	cancel  context.CancelFunc
}

func newCountdown(start int) *countdown {
	return &countdown{counter: start + 1}
}

// apply accepts a tick. relay is set for values that go to the room, fire
// exactly once when the clock runs out. Stale ticks change nothing.
func (c *countdown) apply(counter int) (relay, fire bool) {
	if c.fired || counter >= c.counter {
		return false, false
	}
	c.counter = counter
	if counter >= 0 {
		return true, false
	}
	c.fired = true
	c.stop()
	return false, true
}

// next is the value the server-side ticker sends on the following tick.
func (c *countdown) next() int { return c.counter - 1 }

func (c *countdown) ticking() bool { return c.cancel != nil }

func (c *countdown) stop() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// halt stops the clock for good, e.g. when the room started by other means.
func (c *countdown) halt() {
	c.fired = true
	c.stop()
}
