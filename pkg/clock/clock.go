package clock

import (
	"context"
	"time"
)

// Clock is an interface around the standard library functions that
// provide time handling. The transfer layer obtains all of its timers
// and deadlines through this interface, so that retry backoff and call
// duration limits can be unit tested without sleeping.
type Clock interface {
	// Return the current time of day. Equivalent to time.Now().
	Now() time.Time

	// Create a Context object that automatically cancels after a
	// certain amount of time has passed. Equivalent to
	// context.WithTimeout().
	NewContextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc)

	// Create a channel that publishes the time of day at a point of
	// time in the future. Unlike time.NewTimer(), this function
	// returns the channel directly to allow Timer to be an
	// interface.
	NewTimer(d time.Duration) (Timer, <-chan time.Time)
}

// Timer is an interface around time.Timer.
type Timer interface {
	Stop() bool
}

// Sleep blocks until a duration has passed according to a Clock, or
// until the provided context is done. In the latter case the timer is
// stopped and false is returned.
func Sleep(ctx context.Context, clock Clock, d time.Duration) bool {
	timer, t := clock.NewTimer(d)
	select {
	case <-t:
		return true
	case <-ctx.Done():
		timer.Stop()
		return false
	}
}

type operatingSystemClock struct{}

// SystemClock is a Clock that is backed by the time of day of the
// operating system. All production code paths use this instance.
var SystemClock Clock = operatingSystemClock{}

func (operatingSystemClock) Now() time.Time {
	return time.Now()
}

func (operatingSystemClock) NewContextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, timeout)
}

func (operatingSystemClock) NewTimer(d time.Duration) (Timer, <-chan time.Time) {
	t := time.NewTimer(d)
	return t, t.C
}
