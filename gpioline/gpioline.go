// Package gpioline drives the IEC bus lines through periph.io GPIO pins.
//
// The bus is open collector. A line is asserted by driving its pin low and
// released by switching the pin to input with the pull-up enabled, so a
// peer can still pull it low. Sample reads every pin and reports the lines
// found low.
//
// The iec.Lines methods cannot return errors. The first pin error is kept
// and reported by Err; later calls keep going on the remaining pins.
package gpioline

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/arloliu/go-cbm/iec"
	"github.com/arloliu/go-cbm/logger"
	"periph.io/x/conn/v3/gpio"
)

// Pins assigns GPIO pins to the bus lines. Data, Clock, ATN and Reset are
// required. SRQ is needed for burst transfers only, Parallel for the
// parallel cable only.
type Pins struct {
	Data  gpio.PinIO
	Clock gpio.PinIO
	ATN   gpio.PinIO
	Reset gpio.PinIO
	SRQ   gpio.PinIO

	Parallel [8]gpio.PinIO
}

type line struct {
	mask iec.HWMask
	pin  gpio.PinIO
}

// Lines implements iec.Lines, iec.CriticalSection and, with all parallel
// pins assigned, iec.ParallelPort.
type Lines struct {
	lines    []line
	parallel []gpio.PinIO
	logger   logger.Logger

	mu  sync.Mutex
	err error
}

var (
	_ iec.Lines           = (*Lines)(nil)
	_ iec.CriticalSection = (*Lines)(nil)
	_ iec.ParallelPort    = (*Lines)(nil)
)

// Option is a functional option for configuring Lines.
type Option interface {
	apply(*Lines) error
}

type optFunc func(*Lines) error

func (f optFunc) apply(l *Lines) error { return f(l) }

// WithLogger sets the logger pin errors are reported to.
func WithLogger(lg logger.Logger) Option {
	return optFunc(func(l *Lines) error {
		if lg == nil {
			return errors.New("gpioline: logger must not be nil")
		}
		l.logger = lg

		return nil
	})
}

// New takes over the pins and releases every line.
func New(pins Pins, opts ...Option) (*Lines, error) {
	for name, p := range map[string]gpio.PinIO{
		"data": pins.Data, "clock": pins.Clock, "atn": pins.ATN, "reset": pins.Reset,
	} {
		if p == nil {
			return nil, fmt.Errorf("gpioline: %s pin is required", name)
		}
	}

	l := &Lines{
		lines: []line{
			{iec.HWData, pins.Data},
			{iec.HWClock, pins.Clock},
			{iec.HWATN, pins.ATN},
			{iec.HWReset, pins.Reset},
		},
		logger: logger.GetLogger(),
	}
	if pins.SRQ != nil {
		l.lines = append(l.lines, line{iec.HWSRQ, pins.SRQ})
	}

	assigned := 0
	for _, p := range pins.Parallel {
		if p != nil {
			assigned++
		}
	}
	switch assigned {
	case 0:
	case len(pins.Parallel):
		l.parallel = pins.Parallel[:]
	default:
		return nil, fmt.Errorf("gpioline: %d of 8 parallel pins assigned", assigned)
	}

	for _, opt := range opts {
		if err := opt.apply(l); err != nil {
			return nil, err
		}
	}

	l.Release(iec.HWAll)
	if err := l.Err(); err != nil {
		return nil, err
	}

	return l, nil
}

// Err returns the first pin error seen.
func (l *Lines) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.err
}

func (l *Lines) fail(pin gpio.PinIO, op string, err error) {
	if err == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err == nil {
		l.err = fmt.Errorf("gpioline: %s %s: %w", op, pin, err)
		l.logger.Error("gpioline: pin failed", "pin", pin.String(), "op", op, "error", err)
	}
}

func (l *Lines) Set(mask iec.HWMask) {
	for _, ln := range l.lines {
		if mask&ln.mask != 0 {
			l.fail(ln.pin, "assert", ln.pin.Out(gpio.Low))
		}
	}
}

func (l *Lines) Release(mask iec.HWMask) {
	for _, ln := range l.lines {
		if mask&ln.mask != 0 {
			l.fail(ln.pin, "release", ln.pin.In(gpio.PullUp, gpio.NoEdge))
		}
	}
}

// SetRelease asserts before it releases. A line in both masks is left
// released and never pulsed.
func (l *Lines) SetRelease(set, release iec.HWMask) {
	l.Set(set &^ release)
	l.Release(release)
}

func (l *Lines) Sample() iec.HWMask {
	var state iec.HWMask
	for _, ln := range l.lines {
		if ln.pin.Read() == gpio.Low {
			state |= ln.mask
		}
	}

	return state
}

// EnterCritical pins the calling goroutine to its OS thread. User space
// cannot mask interrupts, this is as close as it gets.
func (l *Lines) EnterCritical() {
	runtime.LockOSThread()
}

func (l *Lines) ExitCritical() {
	runtime.UnlockOSThread()
}

// ReadParallel switches the parallel pins to input and reads them, bit 0
// from Parallel[0]. It returns 0xff without parallel pins.
func (l *Lines) ReadParallel() byte {
	if l.parallel == nil {
		return 0xff
	}

	var b byte
	for i, p := range l.parallel {
		l.fail(p, "parallel input", p.In(gpio.PullUp, gpio.NoEdge))
		if p.Read() == gpio.High {
			b |= 1 << i
		}
	}

	return b
}

// WriteParallel drives b onto the parallel pins.
func (l *Lines) WriteParallel(b byte) {
	for i, p := range l.parallel {
		l.fail(p, "parallel output", p.Out(b&(1<<i) != 0))
	}
}
