package timer

import "time"

// Clock is the wall-clock source used for anchors and event timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the host wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
