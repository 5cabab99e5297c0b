package iec

import (
	"sync/atomic"
	"time"

	"github.com/arloliu/go-cbm/internal/pool"
)

// Timing provides the delays and the abort predicate used by the engines.
type Timing interface {
	// Delay waits for at least d. Sub-millisecond delays are expected to be
	// precise to well under a microsecond.
	Delay(d time.Duration)
	// PollAbort is called periodically from every wait loop. It returns
	// false when the current operation must be cancelled.
	PollAbort() bool
}

// sleepThreshold is the shortest delay SpinTiming hands to the scheduler
// instead of spinning.
const sleepThreshold = time.Millisecond

// SpinTiming implements Timing on the monotonic clock.
//
// Short delays spin, longer ones sleep on a pooled timer. Abort raises a flag
// that PollAbort reports until Reset clears it, so another goroutine can
// cancel a running transfer.
type SpinTiming struct {
	aborted atomic.Bool
}

var _ Timing = (*SpinTiming)(nil)

// NewSpinTiming creates a SpinTiming with the abort flag cleared.
func NewSpinTiming() *SpinTiming {
	return &SpinTiming{}
}

func (t *SpinTiming) Delay(d time.Duration) {
	if d >= sleepThreshold {
		pool.Sleep(d)
		return
	}

	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) { //nolint:revive
	}
}

func (t *SpinTiming) PollAbort() bool {
	return !t.aborted.Load()
}

// Abort requests cancellation of the running operation.
func (t *SpinTiming) Abort() {
	t.aborted.Store(true)
}

// Reset clears a previous abort request.
func (t *SpinTiming) Reset() {
	t.aborted.Store(false)
}
