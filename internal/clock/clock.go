// Package clock provides an injectable time source so evaluation and
// attribution are deterministic under test.
package clock

import "time"

// Clock supplies "now". Services take a Clock instead of calling time.Now
// directly.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time { return time.Now().UTC() }

// Fixed is a clock pinned to a single instant, for tests.
type Fixed struct {
	T time.Time
}

// Now returns the pinned instant.
func (f Fixed) Now() time.Time { return f.T }
