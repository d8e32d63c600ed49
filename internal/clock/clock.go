// Package clock implements the elapsed-time counter shown while a run is
// executing.
package clock

import (
	"fmt"
	"time"
)

// Clock counts whole seconds since the run started. It only ticks while the
// run is running and its start time is known; otherwise it reads zero.
//
// Each activation gets a new generation so a tick scheduled for an earlier
// activation can be recognised and dropped.
type Clock struct {
	start   time.Time
	active  bool
	seconds int
	gen     int
}

// Update applies the latest status. It returns true when the clock has just
// become active and the caller should schedule the first tick.
func (c *Clock) Update(running bool, start time.Time, hasStart bool, now time.Time) bool {
	if !running || !hasStart {
		if c.active || c.seconds != 0 {
			c.gen++
		}
		c.active = false
		c.seconds = 0
		c.start = time.Time{}
		return false
	}
	if c.active && c.start.Equal(start) {
		c.seconds = elapsed(start, now)
		return false
	}
	c.gen++
	c.active = true
	c.start = start
	c.seconds = elapsed(start, now)
	return true
}

// Tick advances the clock for generation gen. It returns false for a stale
// generation or an inactive clock, in which case no further tick should be
// scheduled.
func (c *Clock) Tick(gen int, now time.Time) bool {
	if !c.active || gen != c.gen {
		return false
	}
	c.seconds = elapsed(c.start, now)
	return true
}

func (c *Clock) Seconds() int { return c.seconds }
func (c *Clock) Gen() int     { return c.gen }
func (c *Clock) Active() bool { return c.active }

func elapsed(start, now time.Time) int {
	d := now.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// Format renders seconds as m:ss.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
