package iec

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// WriteFlags qualify a Session.Write. The values match the adapter's wire
// protocol.
type WriteFlags uint8

const (
	// WriteTalk turns the bus around after the write so the addressed
	// device can talk.
	WriteTalk WriteFlags = 0x01
	// WriteATN sends the bytes as bus commands with ATN asserted.
	WriteATN WriteFlags = 0x02
)

// Session is one controller conversation on the bus.
//
// It carries the EOI latch: a read that sees EOI latches it, the next read
// then returns io.EOF without touching the bus, and any write clears it.
// A Session is not goroutine-safe.
type Session struct {
	eng *Engine
	eoi bool
}

// EOI reports whether the last read ended with EOI.
func (s *Session) EOI() bool { return s.eoi }

// ResetEOI clears the EOI latch.
func (s *Session) ResetEOI() { s.eoi = false }

// Write sends n bytes taken from ch to the listening devices.
//
// With WriteATN the bytes are bus commands; otherwise the last byte is
// marked with EOI. With WriteTalk the bus is turned around afterwards and
// Write returns once the new talker holds CLOCK.
//
// It returns n on success. On any failure no byte counts as written, the
// count is 0 and all lines are released.
func (s *Session) Write(ctx context.Context, ch Channel, n int, flags WriteFlags) (int, error) {
	e := s.eng
	atn := flags&WriteATN != 0
	talk := flags&WriteTalk != 0
	s.eoi = false

	e.logger.Debug("iec: write", "len", n, "atn", atn, "talk", talk)

	ch.InitIO(n, DirOut)
	e.lines.Release(HWData)
	if atn {
		e.lines.Set(HWClock | HWATN)
	} else {
		e.lines.Set(HWClock)
	}

	// Any device present grabs DATA once we hold CLOCK.
	if err := e.waitAck(ctx, HWData, true); err != nil {
		ch.IODone()
		e.lines.Release(HWClock | HWATN)
		if errors.Is(err, ErrTimeout) {
			err = fmt.Errorf("%w: nobody answered", ErrNoDevice)
		}
		e.logger.Debug("iec: write: no devices", "error", err)
		e.metrics.countError(err)

		return 0, err
	}

	err := s.writeBytes(ctx, ch, n, atn)
	ch.IODone()

	if err == nil {
		if talk {
			err = s.turnaround(ctx)
		} else {
			e.lines.Release(HWATN)
		}
		e.timing.Delay(postByteDelay)
	}

	if err != nil {
		e.lines.Release(HWData | HWClock | HWATN)
		e.logger.Debug("iec: write failed", "len", n, "atn", atn, "error", err)
		e.metrics.countError(err)

		return 0, err
	}

	e.logger.Debug("iec: write done", "count", n)

	return n, nil
}

func (s *Session) writeBytes(ctx context.Context, ch Channel, n int, atn bool) error {
	e := s.eng

	for remaining := n; remaining > 0; remaining-- {
		e.timing.Delay(interByteDelay)

		// Nobody holding DATA here means nobody was addressed.
		if !e.asserted(HWData) {
			return fmt.Errorf("%w: listener gone before byte %d", ErrNoDevice, n-remaining)
		}

		if err := s.waitForListener(ctx); err != nil {
			return err
		}

		// From here CLOCK must be asserted within ~150 us unless this is
		// the EOI byte.
		if remaining == 1 && !atn {
			if err := s.signalEOI(ctx); err != nil {
				return err
			}
		}
		e.lines.Set(HWClock)

		b, err := ch.RecvByte()
		if err != nil {
			return fmt.Errorf("%w: byte channel: %w", ErrAborted, err)
		}

		if err := s.sendByte(ctx, b); err != nil {
			return err
		}
		e.metrics.incBytesWritten()
		e.timing.Delay(postByteDelay)
	}

	return nil
}

// waitForListener releases CLOCK and waits, without a time limit, for every
// listener to release DATA. Slow devices may hold off forever.
func (s *Session) waitForListener(ctx context.Context) error {
	e := s.eng
	e.lines.Release(HWClock)

	for e.asserted(HWData) {
		if !e.alive(ctx) {
			return fmt.Errorf("%w: waiting for listener", ErrAborted)
		}
	}

	return nil
}

// signalEOI stalls until the listener acknowledges EOI by pulsing DATA.
// A listener that never pulses is tolerated; only an abort fails.
func (s *Session) signalEOI(ctx context.Context) error {
	e := s.eng

	for _, asserted := range []bool{true, false} {
		if err := e.waitAck(ctx, HWData, asserted); errors.Is(err, ErrAborted) {
			return fmt.Errorf("%w: during EOI handshake", err)
		}
	}

	return nil
}

// sendByte clocks out b LSB first with DATA inverted, then waits for the
// listener to acknowledge the frame.
func (s *Session) sendByte(ctx context.Context, b byte) error {
	e := s.eng

	for i := 0; i < 8; i++ {
		e.timing.Delay(bitSetupDelay)

		if b&1 == 0 {
			e.lines.Set(HWData)
		}

		e.lines.Release(HWClock)
		e.timing.Delay(bitValidDelay)

		e.lines.SetRelease(HWClock, HWData)
		b >>= 1
	}

	// Drives answer in 70-80 us.
	switch err := e.waitAck(ctx, HWData, true); {
	case err == nil:
		return nil
	case errors.Is(err, ErrAborted):
		return fmt.Errorf("%w: waiting for byte ack", err)
	default:
		e.logger.Debug("iec: send byte nak")
		return ErrNAK
	}
}

// turnaround hands the bus to the addressed talker and waits, without a
// time limit, for it to grab CLOCK.
func (s *Session) turnaround(ctx context.Context) error {
	e := s.eng
	e.lines.Set(HWData)
	e.lines.Release(HWClock | HWATN)

	for !e.asserted(HWClock) {
		if !e.alive(ctx) {
			return fmt.Errorf("%w: waiting for talker", ErrAborted)
		}
	}

	return nil
}

// Read receives up to n bytes from the current talker into ch.
//
// It stops after n bytes or after the byte that carried EOI, which latches
// the session EOI flag. With the latch already set Read returns 0 and io.EOF
// right away: the talker has nothing more to say until the next write.
//
// A handshake failure discards the whole call and returns 0. A channel that
// refuses a byte stops the read with the bytes delivered so far. Either way
// the lines are released.
func (s *Session) Read(ctx context.Context, ch Channel, n int) (int, error) {
	e := s.eng

	e.logger.Debug("iec: read", "len", n)

	// TODO: check against real drives whether skipping a full call after
	// EOI is right or whether only the current read should end.
	if s.eoi {
		return 0, io.EOF
	}
	if n <= 0 {
		return 0, nil
	}

	ch.InitIO(n, DirIn)
	defer ch.IODone()

	count := 0
	for count < n && !s.eoi {
		b, err := s.readByte(ctx)
		if err != nil {
			e.lines.Release(HWData | HWClock | HWATN)
			e.logger.Debug("iec: read failed", "read", count, "error", err)
			e.metrics.countError(err)

			return 0, err
		}

		// Acknowledge the frame.
		e.lines.Set(HWData)

		if err := ch.SendByte(b); err != nil {
			e.lines.Release(HWData | HWClock | HWATN)
			err = fmt.Errorf("%w: byte channel: %w", ErrAborted, err)
			e.metrics.countError(err)

			return count, err
		}
		count++
		e.metrics.incBytesRead()
		e.timing.Delay(readAckDelay)
	}

	e.logger.Debug("iec: read done", "count", count, "eoi", s.eoi)

	return count, nil
}

func (s *Session) readByte(ctx context.Context) (byte, error) {
	e := s.eng

	// The talker releases CLOCK when it has a byte ready. Directory
	// listings typically time out here.
	for polls := 0; e.asserted(HWClock); polls++ {
		if polls >= e.cfg.readPolls() {
			return 0, fmt.Errorf("%w: talker not ready", ErrTimeout)
		}
		if !e.alive(ctx) {
			return 0, fmt.Errorf("%w: waiting for talker", ErrAborted)
		}
		e.timing.Delay(readPollDelay)
	}

	e.lines.Release(HWData)

	clock, err := s.waitEOIWindow(ctx)
	if err != nil {
		return 0, err
	}

	// A talker that keeps CLOCK released past the window signals EOI and
	// waits for us to pulse DATA.
	if !clock {
		s.eoi = true
		e.metrics.incEOICount()
		e.lines.Set(HWData)
		e.timing.Delay(eoiAckHold)
		e.lines.Release(HWData)
	}

	return s.readBits(ctx)
}

// waitEOIWindow waits up to 400 us for the talker to assert CLOCK.
func (s *Session) waitEOIWindow(ctx context.Context) (bool, error) {
	e := s.eng

	for i := 0; i < eoiPolls; i++ {
		if e.asserted(HWClock) {
			return true, nil
		}
		if i%eoiAbortTick == 0 && !e.alive(ctx) {
			return false, fmt.Errorf("%w: waiting for EOI window", ErrAborted)
		}
		e.timing.Delay(eoiPollStep)
	}

	return e.asserted(HWClock), nil
}

// readBits receives 8 bits LSB first. The bit loop runs inside the line
// driver's critical section and every wait in it is bounded to 2 ms.
func (s *Session) readBits(ctx context.Context) (byte, error) {
	e := s.eng

	e.enterCritical()
	defer e.exitCritical()

	if err := e.waitAck(ctx, HWClock, true); err != nil {
		return 0, fmt.Errorf("%w: waiting for first bit", err)
	}

	var b byte
	for bit := 0; bit < 8; bit++ {
		if err := e.waitAck(ctx, HWClock, false); err != nil {
			return 0, fmt.Errorf("%w: bit %d not clocked", err, bit)
		}

		b >>= 1
		if !e.asserted(HWData) {
			b |= 0x80
		}

		if err := e.waitAck(ctx, HWClock, true); err != nil {
			return 0, fmt.Errorf("%w: bit %d not finished", err, bit)
		}
	}

	return b, nil
}
