package tracking

import "time"

// Clock is the wall-clock source for delays and polling.
//
// After is the only suspension primitive the lifecycle core uses; injecting
// it lets tests run multi-second grace periods instantly.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the real clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// After returns time.After(d).
func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
