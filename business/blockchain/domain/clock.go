package domain

import (
	"sync"
	"time"
)

// Clock tracks chain time in unix milliseconds. Between updates it advances
// with local elapsed time.
type Clock struct {
	mu         sync.RWMutex
	base       int64     // chain time at the last update
	baseLocal  time.Time // local time at the last update
	lastUpdate int64
	now        func() time.Time
}

// NewClock returns a clock that starts at local wall time.
func NewClock() *Clock {
	return NewClockWithNow(time.Now)
}

// NewClockWithNow returns a clock driven by the given time source.
func NewClockWithNow(now func() time.Time) *Clock {
	t := now()
	return &Clock{
		base:      t.UnixMilli(),
		baseLocal: t,
		now:       now,
	}
}

// CurrentTime returns the current chain time in milliseconds.
func (c *Clock) CurrentTime() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base + c.now().Sub(c.baseLocal).Milliseconds()
}

// LastUpdate returns the value passed to the most recent Update, or 0.
func (c *Clock) LastUpdate() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}

// Update rebases the clock on a chain timestamp in milliseconds.
func (c *Clock) Update(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = ms
	c.baseLocal = c.now()
	c.lastUpdate = ms
}
