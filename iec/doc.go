// Package iec implements the Commodore serial (IEC) bus protocol as seen from
// the controller side of a bus adapter.
//
// The bus has four open-collector lines (DATA, CLOCK, ATN and RESET) plus the
// SRQ line used by the fast-serial burst mode. A line is "asserted" when any
// party pulls it low and "released" when nobody does.
//
// # Layers
//
//   - [Lines] is the board specific pin access: assert, release and sample
//     physical line masks. Implementations must be fast (sub-microsecond).
//   - [Timing] provides busy-wait delays and the cooperative abort predicate.
//   - [Channel] is the byte stream to and from the far-side controller.
//   - [Engine] owns the bus and implements reset, bus-free detection and the
//     raw line helpers.
//   - [Session] runs the byte handshake: [Session.Write] and [Session.Read]
//     with EOI signalling and ATN addressing, plus the bus commands built on
//     top of them (LISTEN/TALK, memory write and read).
//   - [SRQPort] is the software fast-serial primitive used by burst transfers.
//
// # Timing
//
// All delays encode measured hardware tolerances of real drives. Every wait
// loop polls the abort predicate, so a cancelled operation unwinds with the
// lines released within a bounded latency.
//
// # Concurrency
//
// Nothing here is goroutine-safe. Only one session may drive the bus at a
// time; that is a calling convention, not a runtime lock.
package iec
