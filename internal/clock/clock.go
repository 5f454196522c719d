// Package clock provides an injectable time source for the dialer loop.
//
// Production code uses Real(). Tests use Fake() and drive time explicitly
// with Advance, using WaitForTimers to synchronize with goroutines that
// register a wait before advancing.
package clock

import "time"

// Clock abstracts the time operations the dialer depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed. If
	// d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
