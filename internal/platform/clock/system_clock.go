package clock

import "time"

// SystemClock reads the wall clock in UTC; callers convert to a display zone themselves.
type SystemClock struct{}

func NewSystemClock() SystemClock { return SystemClock{} }

func (SystemClock) Now() time.Time { return time.Now().UTC() }
