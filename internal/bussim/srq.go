package bussim

import (
	"time"

	"github.com/arloliu/go-cbm/iec"
	"github.com/arloliu/go-cbm/internal/queue"
)

const (
	// DefaultEchoDelay is the pause between the last received bit and the
	// first answered one.
	DefaultEchoDelay = 5 * time.Microsecond
	srqEchoPhase     = time.Microsecond
)

// SRQEcho models a drive running a fast-serial echo program: every byte
// clocked in on SRQ/DATA is answered with the same byte. Queue adds bytes to
// send without a prior write, as a track read would.
type SRQEcho struct {
	Delay time.Duration

	prevSRQ  bool
	bits     int
	value    byte
	received []byte

	out     *queue.Queue[byte]
	sending bool
	bit     int
	phase   int
	mark    time.Duration
	idle    time.Duration
}

var _ Device = (*SRQEcho)(nil)

// NewSRQEcho creates an echo device with the default answer delay.
func NewSRQEcho() *SRQEcho {
	return &SRQEcho{Delay: DefaultEchoDelay, out: queue.New[byte](16)}
}

// Queue schedules bytes to send.
func (s *SRQEcho) Queue(b ...byte) {
	s.out.Enqueue(b...)
}

// Pending returns the bytes not yet sent.
func (s *SRQEcho) Pending() []byte { return s.out.Items() }

// Received returns the bytes clocked in so far.
func (s *SRQEcho) Received() []byte { return s.received }

func (s *SRQEcho) Tick(p *Port) {
	now := p.Now()
	others := p.Others()
	srq := others&iec.HWSRQ != 0

	if s.prevSRQ && !srq {
		s.value <<= 1
		if others&iec.HWData == 0 {
			s.value |= 1
		}
		s.bits++
		if s.bits == 8 {
			s.received = append(s.received, s.value)
			s.out.Enqueue(s.value)
			s.bits, s.value = 0, 0
		}
	}
	s.prevSRQ = srq

	if others&(iec.HWSRQ|iec.HWData) != 0 || s.bits != 0 {
		s.idle = now
	}

	if !s.sending {
		if s.out.IsEmpty() || now-s.idle < s.Delay {
			return
		}
		s.sending, s.bit, s.phase, s.mark = true, 0, 0, now
	}
	s.send(p, now)
}

func (s *SRQEcho) send(p *Port, now time.Duration) {
	switch s.phase {
	case 0:
		b, _ := s.out.Peek()
		if b&(0x80>>s.bit) == 0 {
			p.Assert(iec.HWSRQ | iec.HWData)
		} else {
			p.Assert(iec.HWSRQ)
			p.Release(iec.HWData)
		}
		s.phase, s.mark = 1, now
	case 1:
		if now-s.mark >= srqEchoPhase {
			p.Release(iec.HWSRQ)
			s.phase, s.mark = 2, now
		}
	case 2:
		if now-s.mark >= srqEchoPhase {
			s.bit++
			s.phase = 0
			if s.bit == 8 {
				p.Release(iec.HWData)
				s.out.Dequeue()
				s.sending = false
				s.idle = now
			}
		}
	}
}
