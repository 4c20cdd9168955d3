package counting

import "time"

// Clock supplies the current time to the engine. Tests inject a fake to
// drive debounce and eviction timing without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time {
	return time.Now()
}
