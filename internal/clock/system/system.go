// Package system provides a real clock implementation.
package system

import "time"

// Clock implements monitor.Clock using time.Now in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Since returns the elapsed time from t according to this clock.
func (c Clock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}
