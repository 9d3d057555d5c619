package client

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultRefresh is how often the countdown display is redrawn.
const DefaultRefresh = 250 * time.Millisecond

// Remaining returns the whole seconds left until deadline, rounded up and never negative.
func Remaining(deadline, now time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// Countdown ticks towards a server-issued deadline. It never extends or
// shortens the deadline; it only decides when to redraw.
type Countdown struct {
	clock    clockwork.Clock
	refresh  time.Duration
	ticker   clockwork.Ticker
	deadline time.Time
}

func NewCountdown(clock clockwork.Clock, refresh time.Duration) *Countdown {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return &Countdown{clock: clock, refresh: refresh}
}

// Reset replaces any running countdown with one ending at deadline.
func (c *Countdown) Reset(deadline time.Time) {
	c.Stop()
	c.deadline = deadline
	c.ticker = c.clock.NewTicker(c.refresh)
}

func (c *Countdown) Stop() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	c.deadline = time.Time{}
}

// C returns the tick channel, or nil while stopped so selects skip it.
func (c *Countdown) C() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.Chan()
}

func (c *Countdown) Active() bool {
	return c.ticker != nil
}

func (c *Countdown) Deadline() time.Time {
	return c.deadline
}

func (c *Countdown) Remaining() int {
	if c.ticker == nil {
		return 0
	}
	return Remaining(c.deadline, c.clock.Now())
}
