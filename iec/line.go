package iec

import "strings"

// Line is a logical bus line as numbered by the host library.
//
// Values may be OR'ed together. The numbering is shared with host side tools
// and must not change.
type Line uint8

const (
	Data  Line = 0x01
	Clock Line = 0x02
	ATN   Line = 0x04
	Reset Line = 0x08
	// SRQ is only used by the burst protocol and has no entry in the
	// logical to physical table.
	SRQ Line = 0x10
)

func (l Line) String() string {
	if l == 0 {
		return "none"
	}

	var names []string
	for _, n := range []struct {
		line Line
		name string
	}{{Data, "DATA"}, {Clock, "CLOCK"}, {ATN, "ATN"}, {Reset, "RESET"}, {SRQ, "SRQ"}} {
		if l&n.line != 0 {
			names = append(names, n.name)
		}
	}

	return strings.Join(names, "|")
}

// HWMask is a set of physical port bits.
type HWMask uint8

// Physical pin assignment of the adapter port.
const (
	HWData  HWMask = 1 << 2
	HWClock HWMask = 1 << 3
	HWATN   HWMask = 1 << 4
	HWSRQ   HWMask = 1 << 5
	HWReset HWMask = 1 << 6

	// HWAll covers every bus line the adapter can drive.
	HWAll = HWData | HWClock | HWATN | HWSRQ | HWReset
)

// lineTable maps a 4-bit logical line mask to the physical mask.
var lineTable = [16]HWMask{
	0,
	HWData,
	HWClock,
	HWData | HWClock,
	HWATN,
	HWData | HWATN,
	HWClock | HWATN,
	HWData | HWClock | HWATN,
	HWReset,
	HWData | HWReset,
	HWClock | HWReset,
	HWData | HWClock | HWReset,
	HWATN | HWReset,
	HWData | HWATN | HWReset,
	HWClock | HWATN | HWReset,
	HWData | HWClock | HWATN | HWReset,
}

// ToHW converts logical lines to the physical mask. Bits outside of
// DATA, CLOCK, ATN and RESET are ignored.
func ToHW(l Line) HWMask {
	return lineTable[l&0x0f]
}

// Lines is the board level access to the bus lines.
//
// Set pulls the given lines low, Release lets them float high and Sample
// reports which lines are currently asserted by anyone on the bus. Each call
// must complete in well under a microsecond and its effect must be visible to
// the peer immediately.
type Lines interface {
	Set(mask HWMask)
	Release(mask HWMask)
	// SetRelease asserts set and releases release in one step. A line in
	// both masks ends up released.
	SetRelease(set, release HWMask)
	Sample() HWMask
}

// CriticalSection is implemented by line drivers that can suppress
// asynchronous preemption, e.g. by masking interrupts.
//
// The engine enters it only around the bit loop of a received byte.
type CriticalSection interface {
	EnterCritical()
	ExitCritical()
}

// ParallelPort is implemented by line drivers that expose the byte-wide
// parallel cable. No engine in this module uses it; it is a driver
// capability for external burst tooling.
type ParallelPort interface {
	ReadParallel() byte
	WriteParallel(b byte)
}
