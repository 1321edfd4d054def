package watch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_FiresInDueOrder(t *testing.T) {
	c := NewManualClock(time.UnixMilli(0))

	var order []string
	c.AfterFunc(300*time.Millisecond, func() { order = append(order, "late") })
	c.AfterFunc(100*time.Millisecond, func() { order = append(order, "early") })
	c.AfterFunc(200*time.Millisecond, func() { order = append(order, "mid") })

	c.Advance(50 * time.Millisecond)
	assert.Empty(t, order)

	c.Advance(250 * time.Millisecond)
	assert.Equal(t, []string{"early", "mid", "late"}, order)
	assert.Equal(t, time.UnixMilli(300), c.Now())
}

func TestManualClock_StopPreventsFiring(t *testing.T) {
	c := NewManualClock(time.UnixMilli(0))

	fired := false
	timer := c.AfterFunc(100*time.Millisecond, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second stop reports already stopped")

	c.Advance(time.Second)
	assert.False(t, fired)
}

func TestManualClock_CallbackSchedulesWithinWindow(t *testing.T) {
	c := NewManualClock(time.UnixMilli(0))

	var at []time.Time
	var tick func()
	tick = func() {
		at = append(at, c.Now())
		if len(at) < 3 {
			c.AfterFunc(100*time.Millisecond, tick)
		}
	}
	c.AfterFunc(100*time.Millisecond, tick)

	// One advance covers the chain of reschedules.
	c.Advance(time.Second)
	assert.Equal(t, []time.Time{
		time.UnixMilli(100),
		time.UnixMilli(200),
		time.UnixMilli(300),
	}, at)
}

func TestManualClock_FiredTimerStopReportsFalse(t *testing.T) {
	c := NewManualClock(time.UnixMilli(0))

	timer := c.AfterFunc(10*time.Millisecond, func() {})
	c.Advance(20 * time.Millisecond)
	assert.False(t, timer.Stop())
}
