// Package system supplies the wall clock handed to the crawl pipeline.
// Components take a clock interface so tests can freeze time; this is the
// one implementation that consults the real clock.
package system

import "time"

// Clock reads the system time in UTC.
type Clock struct{}

// New creates a Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
