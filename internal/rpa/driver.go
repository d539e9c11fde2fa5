package rpa

import (
	"context"
	"fmt"
	"time"

	"multi-platform-rpa/internal/logging"
)

type DriverState string

const (
	StateIdle       DriverState = "idle"
	StateUploading  DriverState = "uploading"
	StatePolling    DriverState = "polling"
	StatePublishing DriverState = "publishing"
	StateCompleted  DriverState = "completed"
	StateFailed     DriverState = "failed"
)

const (
	DefaultPollInterval = time.Second
	DefaultPollAttempts = 60
)

// Driver runs the upload protocol against a Bridge:
//
//	Idle -> Uploading -> Polling -> Publishing -> Completed
//
// with any error, or an exhausted poll budget, ending in Failed.
type Driver struct {
	Interval    time.Duration
	MaxAttempts int

	clock Clock
	log   *logging.Logger
}

func NewDriver(interval time.Duration, maxAttempts int, clock Clock, log *logging.Logger) *Driver {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultPollAttempts
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Driver{Interval: interval, MaxAttempts: maxAttempts, clock: clock, log: log}
}

// Outcome reports where a run stopped and how many polls it made.
type Outcome struct {
	State    DriverState
	Attempts int
}

// Run drives one upload. Each poll attempt waits Interval, then calls
// Tick and reads the completion flag; the flag becoming true on attempt k
// means k intervals elapsed. After MaxAttempts without the flag the run
// fails with ErrProtocolTimeout.
func (d *Driver) Run(ctx context.Context, b Bridge) (Outcome, error) {
	out := Outcome{State: StateIdle}
	fail := func(err error) (Outcome, error) {
		d.log.Warnf("upload protocol failed in %s after %d polls: %v", out.State, out.Attempts, err)
		out.State = StateFailed
		return out, err
	}

	out.State = StateUploading
	if err := b.Start(ctx); err != nil {
		return fail(err)
	}

	out.State = StatePolling
	done := false
	for out.Attempts < d.MaxAttempts {
		if err := d.clock.Sleep(ctx, d.Interval); err != nil {
			return fail(err)
		}
		out.Attempts++
		if err := b.Tick(ctx); err != nil {
			return fail(err)
		}
		ok, err := b.IsComplete(ctx)
		if err != nil {
			return fail(err)
		}
		if ok {
			done = true
			break
		}
	}
	if !done {
		return fail(fmt.Errorf("%w after %d attempts", ErrProtocolTimeout, out.Attempts))
	}
	d.log.Infof("upload complete after %d polls, publishing", out.Attempts)

	out.State = StatePublishing
	if err := b.Trigger(ctx); err != nil {
		return fail(err)
	}
	out.State = StateCompleted
	return out, nil
}
