// Package backoff provides a cancelable fixed-delay sleep for the agent
// driver's reconnect loop, adapted from a variable-rate polling primitive
// down to the single one-second delay spec §4.5 specifies.
package backoff

import (
	"context"
	"time"
)

// Fixed is a cancelable sleep of exactly Delay, interruptible by a context's
// cancellation so a shutdown signal preempts an in-progress wait rather than
// blocking process exit.
type Fixed struct {
	Delay time.Duration
}

// New returns a Fixed backoff with the given delay.
func New(delay time.Duration) *Fixed {
	return &Fixed{Delay: delay}
}

// Wait blocks for the configured delay or until ctx is done, whichever comes
// first. It returns ctx.Err() if the context won the race, nil otherwise.
func (f *Fixed) Wait(ctx context.Context) error {
	timer := time.NewTimer(f.Delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
