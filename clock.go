package courier

import "time"

// Clock supplies timestamps for message appends. The engine never trusts
// caller-supplied time; it reads the clock and the store clamps the value
// to be non-decreasing within a channel.
type Clock interface {
	Now() time.Time
}

// systemClock reads the wall clock in UTC.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
