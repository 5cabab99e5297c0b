package iec

import (
	"context"
	"fmt"
	"time"
)

// Fast-serial bit timing. Host side tools rely on these values.
const (
	srqWriteSetup = 300 * time.Nanosecond
	srqWriteHold  = 800 * time.Nanosecond
	srqReadSettle = 375 * time.Nanosecond
)

// SRQPort moves bytes with the fast-serial handshake: DATA carries the bit,
// SRQ clocks it. The peripheral needs a resident program that drives its
// shift register, see package burst.
//
// Each edge wait is bounded by the engine's SRQ poll limit and checks for
// abort on every poll.
type SRQPort struct {
	eng *Engine
}

// WriteByte clocks b out MSB first with DATA inverted. The bit loop is fixed
// timing and cannot be aborted half way.
//
// Unlike the adapter firmware it leaves CLOCK and RESET as they were and
// releases DATA after the last bit instead of holding the last bit's level.
func (p *SRQPort) WriteByte(ctx context.Context, b byte) error {
	e := p.eng
	if !e.alive(ctx) {
		return fmt.Errorf("%w: before burst write", ErrAborted)
	}

	for i := 0; i < 8; i++ {
		if b&0x80 == 0 {
			e.lines.Set(HWSRQ | HWData)
		} else {
			e.lines.SetRelease(HWSRQ, HWData)
		}
		b <<= 1

		e.timing.Delay(srqWriteSetup)
		e.lines.Release(HWSRQ)
		e.timing.Delay(srqWriteHold)
	}
	e.lines.Release(HWData)

	return nil
}

// ReadByte receives one byte MSB first. The peripheral pulses SRQ for every
// bit and DATA is sampled shortly after SRQ is released.
func (p *SRQPort) ReadByte(ctx context.Context) (byte, error) {
	e := p.eng

	var b byte
	for i := 0; i < 8; i++ {
		if err := p.waitSRQ(ctx, true); err != nil {
			return 0, fmt.Errorf("%w: bit %d", err, i)
		}
		if err := p.waitSRQ(ctx, false); err != nil {
			return 0, fmt.Errorf("%w: bit %d", err, i)
		}
		e.timing.Delay(srqReadSettle)

		b <<= 1
		if !e.asserted(HWData) {
			b |= 1
		}
	}

	return b, nil
}

// ReadTrack fills p with consecutive burst bytes. It returns the number of
// bytes read before the first failure.
func (p *SRQPort) ReadTrack(ctx context.Context, buf []byte) (int, error) {
	for i := range buf {
		b, err := p.ReadByte(ctx)
		if err != nil {
			return i, err
		}
		buf[i] = b
		p.eng.metrics.incBytesRead()
	}

	return len(buf), nil
}

func (p *SRQPort) waitSRQ(ctx context.Context, asserted bool) error {
	e := p.eng

	for polls := 0; e.asserted(HWSRQ) != asserted; polls++ {
		if polls >= e.cfg.srqPollLimit {
			e.metrics.countError(ErrTimeout)
			return fmt.Errorf("%w: SRQ edge", ErrTimeout)
		}
		if !e.alive(ctx) {
			e.metrics.countError(ErrAborted)
			return fmt.Errorf("%w: SRQ edge", ErrAborted)
		}
	}

	return nil
}
