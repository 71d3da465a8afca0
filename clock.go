package forge

import "time"

// Clock supplies the current instant for TODAY()/NOW(). Options.Clock
// lets callers inject a fixed instant for reproducible tests, following
// the teacher's pattern of accepting overridable collaborators through an
// Options struct rather than reading global state.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock, backed by the OS wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock is a Clock that always returns At, for deterministic tests.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.At }
