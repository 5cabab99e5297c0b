package iec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-cbm/logger"
)

// Protocol timing. The values are measured against real drives and are
// shared with the peripheral side; do not tune them.
const (
	initSettleDelay = 100 * time.Microsecond

	// Bus-free probe: DATA must stay released for two settle periods, then
	// follow ATN within atnResponseDelay both ways.
	busFreeSettleDelay = 50 * time.Microsecond
	atnResponseDelay   = 100 * time.Microsecond
	busFreeRetryDelay  = 100 * time.Microsecond

	// Longest delay of the bus-free wait between two abort checks.
	busFreeSlice = 50 * time.Microsecond

	resetHoldTime = 30 * time.Millisecond

	// Byte send. The bus standard gives 20 us for Ts but drives need 72 us or
	// more, 75 us leaves some margin.
	bitSetupDelay  = 75 * time.Microsecond
	bitValidDelay  = 20 * time.Microsecond
	interByteDelay = 50 * time.Microsecond
	postByteDelay  = 100 * time.Microsecond

	// Bounded line waits: 200 polls of 10 us.
	ackPolls    = 200
	ackPollStep = 10 * time.Microsecond

	// EOI detection window: 200 polls of 2 us.
	eoiPolls     = 200
	eoiPollStep  = 2 * time.Microsecond
	eoiAbortTick = 25 // polls between abort checks, 50 us

	eoiAckHold   = 70 * time.Microsecond
	readAckDelay = 50 * time.Microsecond

	readPollDelay = 20 * time.Microsecond
	waitPollDelay = 10 * time.Microsecond
)

// Engine owns the bus lines and implements the standard serial protocol
// primitives. Byte transfers run through a Session created by NewSession.
type Engine struct {
	lines  Lines
	timing Timing
	cfg    *Config
	logger logger.Logger

	metrics Metrics
}

// NewEngine creates an engine driving lines with the given timing source.
// A nil cfg selects the defaults of NewConfig.
func NewEngine(lines Lines, timing Timing, cfg *Config) (*Engine, error) {
	if lines == nil {
		return nil, errors.New("iec: lines must not be nil")
	}
	if timing == nil {
		return nil, errors.New("iec: timing must not be nil")
	}
	if cfg == nil {
		var err error
		if cfg, err = NewConfig(); err != nil {
			return nil, err
		}
	}

	return &Engine{
		lines:  lines,
		timing: timing,
		cfg:    cfg,
		logger: cfg.logger,
	}, nil
}

// NewSession starts a transfer session with a cleared EOI latch.
func (e *Engine) NewSession() *Session {
	return &Session{eng: e}
}

// Timing returns the timing source of the engine.
func (e *Engine) Timing() Timing { return e.timing }

// Config returns the engine configuration.
func (e *Engine) Config() *Config { return e.cfg }

// Metrics returns the engine counters.
func (e *Engine) Metrics() *Metrics { return &e.metrics }

// Init releases every line and lets the bus settle.
func (e *Engine) Init() {
	e.logger.Debug("iec: init")
	e.lines.Release(HWATN | HWClock | HWData | HWReset)
	e.timing.Delay(initSettleDelay)
}

// Reset pulses RESET and waits for the drives to come back.
//
// ErrNoDevice means nobody answered within the bus-free timeout, which is a
// normal condition with an empty bus.
func (e *Engine) Reset(ctx context.Context) error {
	e.logger.Debug("iec: reset")
	e.metrics.incResetCount()

	e.lines.Release(HWData | HWATN | HWClock)

	// 20 ms is too short for a full drive reset, drives grab DATA 25 ms
	// after RESET goes active.
	e.lines.Set(HWReset)
	e.timing.Delay(resetHoldTime)
	e.lines.Release(HWReset)

	err := e.waitForFreeBus(ctx)
	e.metrics.countError(err)

	return err
}

// CheckBusFree runs a single bus-free probe.
//
// It reports true when DATA stays released for the settle period, a drive
// grabs DATA while ATN is asserted and lets it go again after ATN is
// released. A held line makes it return false; the caller retries. An abort
// request also makes it return false.
func (e *Engine) CheckBusFree() bool {
	free, _, _ := e.probeBusFree(context.Background())
	return free
}

// probeBusFree runs one bus-free probe and reports the delay time it used.
func (e *Engine) probeBusFree(ctx context.Context) (bool, time.Duration, error) {
	var spent time.Duration
	wait := func(d time.Duration) error {
		spent += d
		if !e.pause(ctx, d) {
			e.lines.Release(HWATN)
			return fmt.Errorf("%w: waiting for free bus", ErrAborted)
		}

		return nil
	}

	e.lines.Release(HWATN | HWClock | HWData | HWReset)
	if err := wait(busFreeSettleDelay); err != nil {
		return false, spent, err
	}

	// A drive still holding DATA is not ready yet.
	if e.asserted(HWData) {
		return false, spent, nil
	}

	// DATA glitches if ATN follows a release by less than ~40 us.
	if err := wait(busFreeSettleDelay); err != nil {
		return false, spent, err
	}
	if e.asserted(HWData) {
		return false, spent, nil
	}

	e.lines.Set(HWATN)
	if err := wait(atnResponseDelay); err != nil {
		return false, spent, err
	}

	if !e.asserted(HWData) {
		e.lines.Release(HWATN)
		return false, spent, nil
	}

	e.lines.Release(HWATN)
	if err := wait(atnResponseDelay); err != nil {
		return false, spent, err
	}

	return !e.asserted(HWData), spent, nil
}

// waitForFreeBus probes until the bus is free or the delays spent add up
// to the bus-free timeout.
func (e *Engine) waitForFreeBus(ctx context.Context) error {
	timeout := e.cfg.busFreeTimeout

	var spent time.Duration
	for spent < timeout {
		free, d, err := e.probeBusFree(ctx)
		if err == nil && free {
			return nil
		}
		if err == nil && !e.pause(ctx, busFreeRetryDelay) {
			err = fmt.Errorf("%w: waiting for free bus", ErrAborted)
		}
		if err != nil {
			e.lines.Release(HWATN | HWClock | HWData)
			return err
		}
		spent += d + busFreeRetryDelay
	}

	e.logger.Warn("iec: bus not free after reset", "timeout", timeout, "elapsed", spent)

	return fmt.Errorf("%w: bus not free within %v", ErrNoDevice, timeout)
}

// Poll returns the logical DATA, CLOCK and ATN lines currently asserted.
func (e *Engine) Poll() Line {
	state := e.lines.Sample()

	var l Line
	if state&HWData != 0 {
		l |= Data
	}
	if state&HWClock != 0 {
		l |= Clock
	}
	if state&HWATN != 0 {
		l |= ATN
	}

	return l
}

// Wait blocks until line reaches the requested state. With asserted set it
// returns once any of the lines is asserted, otherwise once any of them is
// released. There is no timeout; only ctx or the abort predicate end it early.
func (e *Engine) Wait(ctx context.Context, line Line, asserted bool) error {
	mask := ToHW(line)

	hold := HWMask(0) // keep waiting while the lines look like this
	if !asserted {
		hold = mask
	}

	for e.lines.Sample()&mask == hold {
		if !e.alive(ctx) {
			e.metrics.countError(ErrAborted)
			return fmt.Errorf("%w: waiting for %s", ErrAborted, line)
		}
		e.timing.Delay(waitPollDelay)
	}

	return nil
}

// SetRelease asserts set and releases release in one step.
func (e *Engine) SetRelease(set, release Line) {
	e.lines.SetRelease(ToHW(set), ToHW(release))
}

// SRQ returns the fast-serial burst primitive on this engine's lines.
func (e *Engine) SRQ() *SRQPort {
	return &SRQPort{eng: e}
}

func (e *Engine) asserted(mask HWMask) bool {
	return e.lines.Sample()&mask != 0
}

// alive reports whether the running operation may continue.
func (e *Engine) alive(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	return e.timing.PollAbort()
}

// pause waits d in slices of at most busFreeSlice and checks for abort
// before each slice. It returns false once the operation must stop.
func (e *Engine) pause(ctx context.Context, d time.Duration) bool {
	for d > 0 {
		if !e.alive(ctx) {
			return false
		}
		step := min(d, busFreeSlice)
		e.timing.Delay(step)
		d -= step
	}

	return true
}

// waitLine waits up to polls*step for mask to become asserted (or released),
// checking for abort on every poll.
func (e *Engine) waitLine(ctx context.Context, mask HWMask, asserted bool, polls int, step time.Duration) error {
	for i := 0; e.asserted(mask) != asserted; i++ {
		if i >= polls {
			return ErrTimeout
		}
		if !e.alive(ctx) {
			return ErrAborted
		}
		e.timing.Delay(step)
	}

	return nil
}

// waitAck is the 2 ms bounded wait used throughout the handshake.
func (e *Engine) waitAck(ctx context.Context, mask HWMask, asserted bool) error {
	return e.waitLine(ctx, mask, asserted, ackPolls, ackPollStep)
}

func (e *Engine) enterCritical() {
	if cs, ok := e.lines.(CriticalSection); ok {
		cs.EnterCritical()
	}
}

func (e *Engine) exitCritical() {
	if cs, ok := e.lines.(CriticalSection); ok {
		cs.ExitCritical()
	}
}
