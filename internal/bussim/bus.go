// Package bussim simulates the IEC bus in virtual time.
//
// A Bus implements iec.Lines, iec.Timing and iec.CriticalSection for the
// controller side. Virtual time only moves when the controller delays or
// polls for abort; every quantum all attached devices get a Tick to react to
// the line state. Runs are fully deterministic.
package bussim

import (
	"fmt"
	"time"

	"github.com/arloliu/go-cbm/iec"
)

const (
	// DefaultQuantum is the simulation step.
	DefaultQuantum = 500 * time.Nanosecond
	// DefaultLimit stops runaway simulations.
	DefaultLimit = 60 * time.Second
)

// Device is a peripheral model. Tick is called once per quantum.
type Device interface {
	Tick(p *Port)
}

// Change is one entry of the bus trace: the combined line state from At on.
type Change struct {
	At    time.Duration
	State iec.HWMask
}

// Bus is a simulated open-collector bus.
type Bus struct {
	now     time.Duration
	quantum time.Duration
	limit   time.Duration

	host  iec.HWMask
	ports []*Port

	abortAt     time.Duration
	abortSeenAt time.Duration

	critical      int
	criticalCount int

	trace []Change
}

var (
	_ iec.Lines           = (*Bus)(nil)
	_ iec.Timing          = (*Bus)(nil)
	_ iec.CriticalSection = (*Bus)(nil)
)

// New creates an empty bus with the default quantum.
func New() *Bus {
	return &Bus{
		quantum:     DefaultQuantum,
		limit:       DefaultLimit,
		abortAt:     -1,
		abortSeenAt: -1,
		trace:       []Change{{}},
	}
}

// SetLimit changes the virtual time after which the simulation panics.
func (b *Bus) SetLimit(d time.Duration) { b.limit = d }

// Attach connects d to the bus under name.
func (b *Bus) Attach(name string, d Device) *Port {
	p := &Port{bus: b, name: name, dev: d}
	b.ports = append(b.ports, p)

	return p
}

// AbortAt makes PollAbort report cancellation from virtual time t on.
func (b *Bus) AbortAt(t time.Duration) {
	b.abortAt = t
	b.abortSeenAt = -1
}

// AbortSeenAt returns when the controller first polled after the abort, or
// -1 if it never did.
func (b *Bus) AbortSeenAt() time.Duration { return b.abortSeenAt }

// Now returns the current virtual time.
func (b *Bus) Now() time.Duration { return b.now }

// State returns the lines asserted by anyone.
func (b *Bus) State() iec.HWMask { return b.combined(nil) }

// HostDriven returns the lines asserted by the controller.
func (b *Bus) HostDriven() iec.HWMask { return b.host }

// CriticalSections returns how many critical sections were completed.
func (b *Bus) CriticalSections() int { return b.criticalCount }

// InCritical reports whether the controller is inside a critical section.
func (b *Bus) InCritical() bool { return b.critical > 0 }

// Trace returns the recorded line state changes.
func (b *Bus) Trace() []Change { return b.trace }

// --- iec.Lines ---

func (b *Bus) Set(mask iec.HWMask) {
	b.host |= mask
	b.record()
}

func (b *Bus) Release(mask iec.HWMask) {
	b.host &^= mask
	b.record()
}

func (b *Bus) SetRelease(set, release iec.HWMask) {
	b.host = (b.host | set) &^ release
	b.record()
}

func (b *Bus) Sample() iec.HWMask {
	return b.combined(nil)
}

// --- iec.Timing ---

// Delay advances virtual time by at least d, rounded up to whole quanta.
func (b *Bus) Delay(d time.Duration) {
	target := b.now + d
	for b.now < target {
		b.step()
	}
}

// PollAbort costs one quantum.
func (b *Bus) PollAbort() bool {
	b.step()
	if b.abortAt >= 0 && b.now >= b.abortAt {
		if b.abortSeenAt < 0 {
			b.abortSeenAt = b.now
		}
		return false
	}

	return true
}

// --- iec.CriticalSection ---

func (b *Bus) EnterCritical() { b.critical++ }

func (b *Bus) ExitCritical() {
	b.critical--
	b.criticalCount++
}

// Run advances virtual time by d without controller activity.
func (b *Bus) Run(d time.Duration) {
	b.Delay(d)
}

// Released reports the longest stretch in the trace, starting at or after
// from, during which all of mask stayed released.
func (b *Bus) Released(mask iec.HWMask, from time.Duration) time.Duration {
	var longest, start time.Duration
	open := false

	for i, c := range b.trace {
		end := b.now
		if i+1 < len(b.trace) {
			end = b.trace[i+1].At
		}
		if end < from {
			continue
		}

		if c.State&mask == 0 {
			if !open {
				start = max(c.At, from)
				open = true
			}
			longest = max(longest, end-start)
		} else {
			open = false
		}
	}

	return longest
}

func (b *Bus) step() {
	b.now += b.quantum
	if b.now > b.limit {
		panic(fmt.Sprintf("bussim: virtual time limit %v exceeded", b.limit))
	}

	for _, p := range b.ports {
		p.dev.Tick(p)
	}
	b.record()
}

func (b *Bus) combined(except *Port) iec.HWMask {
	state := b.host
	for _, p := range b.ports {
		if p != except {
			state |= p.driven
		}
	}

	return state
}

func (b *Bus) record() {
	state := b.combined(nil)
	if last := b.trace[len(b.trace)-1]; last.State == state {
		return
	}
	b.trace = append(b.trace, Change{At: b.now, State: state})
}

// Port is a device's connection to the bus.
type Port struct {
	bus    *Bus
	name   string
	dev    Device
	driven iec.HWMask
}

// Name returns the name the device was attached under.
func (p *Port) Name() string { return p.name }

// Now returns the current virtual time.
func (p *Port) Now() time.Duration { return p.bus.now }

// Assert pulls mask low.
func (p *Port) Assert(mask iec.HWMask) { p.driven |= mask }

// Release stops driving mask.
func (p *Port) Release(mask iec.HWMask) { p.driven &^= mask }

// Driven returns the lines this device asserts.
func (p *Port) Driven() iec.HWMask { return p.driven }

// Lines returns the lines asserted by anyone.
func (p *Port) Lines() iec.HWMask { return p.bus.combined(nil) }

// Others returns the lines asserted by anyone but this device.
func (p *Port) Others() iec.HWMask { return p.bus.combined(p) }
