package room

import "time"

// Clock accumulates simulation time. It is the only time source stamped onto
// entity and user mutations.
type Clock struct {
	serverTime float64
}

// Advance adds elapsed to server time and returns the new value in milliseconds.
// Negative deltas are ignored so server time never decreases.
func (c *Clock) Advance(elapsed time.Duration) float64 {
	if elapsed > 0 {
		c.serverTime += float64(elapsed) / float64(time.Millisecond)
	}
	return c.serverTime
}

// Now returns the accumulated server time in milliseconds.
func (c *Clock) Now() float64 {
	return c.serverTime
}
