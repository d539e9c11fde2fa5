package rpa

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Clock is the time source of the engine. Tests substitute a fake so that
// polling runs without real waits.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TabIDs issues correlation ids of the form tab_<unix-millis>_<seq>. The
// sequence keeps ids unique when two executions start in the same
// millisecond.
type TabIDs struct {
	clock Clock
	seq   atomic.Uint64
}

func NewTabIDs(clock Clock) *TabIDs {
	return &TabIDs{clock: clock}
}

func (g *TabIDs) Next() string {
	return fmt.Sprintf("tab_%d_%d", g.clock.Now().UnixMilli(), g.seq.Add(1))
}
