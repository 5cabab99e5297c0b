package bussim

import (
	"time"

	"github.com/arloliu/go-cbm/iec"
)

// Default reaction times of a simulated drive.
const (
	DefaultATNResponse = 20 * time.Microsecond
	DefaultProbeDelay  = 20 * time.Microsecond
	DefaultReadyDelay  = 40 * time.Microsecond
	DefaultAckDelay    = 70 * time.Microsecond
	DefaultTalkDelay   = 100 * time.Microsecond

	// Listener side EOI timeout and acknowledge pulse.
	eoiTimeout   = 200 * time.Microsecond
	eoiAckPulse  = 60 * time.Microsecond
	turnDelay    = 40 * time.Microsecond
	talkSetup    = 40 * time.Microsecond
	talkEOIDelay = 30 * time.Microsecond
	talkBitPhase = 20 * time.Microsecond
)

// Frame is a byte received by a drive.
type Frame struct {
	Value byte
	ATN   bool
	EOI   bool
}

type driveState int

const (
	stIdle driveState = iota
	stBoot
	stATNAck
	stProbe
	stHolding
	stReleasing
	stReady
	stEOIAck
	stBits
	stFrameAck
	stTurnaround
	stTalkHold
	stTalkReady
	stTalkEOI
	stTalkBits
	stTalkAck
	stTalkStalled
)

// Drive models a disk drive on the serial bus: it answers ATN, listens and
// talks with the standard handshake and executes M-W and M-R commands sent
// to its command channel.
//
// Zero durations select the defaults.
type Drive struct {
	Address byte
	// Listening starts the drive as an addressed listener, so a plain data
	// write works without a LISTEN first.
	Listening bool
	// TalkData is served when the drive is addressed as talker on a
	// channel other than the command channel.
	TalkData []byte
	// StallAfterEOI makes the drive stop after the EOI handshake of the last
	// byte without clocking its bits.
	StallAfterEOI bool
	// Mute ignores ATN: the drive never answers.
	Mute bool

	ATNResponse time.Duration
	ProbeDelay  time.Duration
	ReadyDelay  time.Duration
	AckDelay    time.Duration
	TalkDelay   time.Duration
	BootTime    time.Duration

	Memory [0x10000]byte

	state    driveState
	since    time.Duration
	phase    int
	mark     time.Duration
	clkSeen  bool
	prevATN  bool
	prevClk  bool
	inReset  bool
	eoi      bool
	bit      int
	value    byte
	talking  bool
	sa       byte
	cmd      []byte
	talkBuf  []byte
	memReply []byte

	frames   []Frame
	commands [][]byte
	resets   int
}

var _ Device = (*Drive)(nil)

// NewDrive creates a drive at address 8.
func NewDrive() *Drive {
	return &Drive{Address: 8}
}

// Frames returns every byte received, commands included.
func (d *Drive) Frames() []Frame { return d.frames }

// Data returns the bytes received outside of ATN.
func (d *Drive) Data() []byte {
	var out []byte
	for _, f := range d.frames {
		if !f.ATN {
			out = append(out, f.Value)
		}
	}

	return out
}

// Commands returns the command channel strings executed so far.
func (d *Drive) Commands() [][]byte { return d.commands }

// Resets returns how many RESET pulses the drive saw.
func (d *Drive) Resets() int { return d.resets }

func (d *Drive) dur(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}

	return v
}

func (d *Drive) enter(s driveState, now time.Duration) {
	d.state = s
	d.since = now
	d.phase = 0
	d.mark = now
}

func (d *Drive) Tick(p *Port) {
	now := p.Now()
	others := p.Others()

	if others&iec.HWReset != 0 {
		if !d.inReset {
			d.inReset = true
			d.resets++
			p.Release(iec.HWAll)
			d.Listening = false
			d.talking = false
		}
		return
	}
	if d.inReset {
		d.inReset = false
		p.Assert(iec.HWData)
		d.enter(stBoot, now)
	}
	if d.state == stBoot {
		if now-d.since >= d.BootTime {
			p.Release(iec.HWData)
			d.enter(stIdle, now)
		}
		return
	}
	if d.Mute {
		return
	}

	atn := others&iec.HWATN != 0
	if atn && !d.prevATN {
		p.Release(iec.HWClock)
		d.enter(stATNAck, now)
	}
	if !atn && d.prevATN {
		d.atnReleased(p, now)
	}
	d.prevATN = atn

	d.listenerTick(p, now, others, atn)
	d.talkerTick(p, now, others)
}

func (d *Drive) atnReleased(p *Port, now time.Duration) {
	switch {
	case d.talking:
		p.Release(iec.HWData)
		d.prepareTalk()
		d.enter(stTurnaround, now)
	case d.Listening:
		// Stay on DATA and wait for the talker to release CLOCK.
	default:
		p.Release(iec.HWData | iec.HWClock)
		d.enter(stIdle, now)
	}
}

func (d *Drive) listenerTick(p *Port, now time.Duration, others iec.HWMask, atn bool) {
	clk := others&iec.HWClock != 0

	switch d.state {
	case stIdle:
		if !atn && d.Listening && clk {
			d.enter(stProbe, now)
		}

	case stATNAck:
		if now-d.since >= d.dur(d.ATNResponse, DefaultATNResponse) {
			p.Assert(iec.HWData)
			d.clkSeen = clk
			d.enter(stHolding, now)
		}

	case stProbe:
		if now-d.since >= d.dur(d.ProbeDelay, DefaultProbeDelay) {
			p.Assert(iec.HWData)
			d.clkSeen = true
			d.enter(stHolding, now)
		}

	case stHolding:
		if clk {
			d.clkSeen = true
		} else if d.clkSeen {
			d.enter(stReleasing, now)
		}

	case stReleasing:
		if now-d.since >= d.dur(d.ReadyDelay, DefaultReadyDelay) {
			p.Release(iec.HWData)
			d.eoi = false
			d.enter(stReady, now)
		}

	case stReady:
		switch {
		case clk:
			d.bit, d.value, d.prevClk = 0, 0, true
			d.enter(stBits, now)
		case !d.eoi && now-d.since >= eoiTimeout:
			d.eoi = true
			p.Assert(iec.HWData)
			d.mark = now
			d.state = stEOIAck
		}

	case stEOIAck:
		if now-d.mark >= eoiAckPulse {
			p.Release(iec.HWData)
			d.state = stReady
		}

	case stBits:
		if d.prevClk && !clk && d.bit < 8 {
			if others&iec.HWData == 0 {
				d.value |= 1 << d.bit
			}
			d.bit++
		}
		d.prevClk = clk
		if d.bit == 8 && clk {
			d.enter(stFrameAck, now)
		}

	case stFrameAck:
		if now-d.since >= d.dur(d.AckDelay, DefaultAckDelay) {
			p.Assert(iec.HWData)
			d.frameDone(atn)
			d.clkSeen = true
			d.enter(stHolding, now)
		}

	default:
	}
}

func (d *Drive) frameDone(atn bool) {
	v := d.value
	d.frames = append(d.frames, Frame{Value: v, ATN: atn, EOI: d.eoi})

	if !atn {
		if d.Listening && d.sa == iec.CommandChannel {
			d.cmd = append(d.cmd, v)
		}
		return
	}

	switch {
	case v == 0x3f:
		if d.Listening {
			d.execute()
		}
		d.Listening = false
	case v == 0x5f:
		d.talking = false
	case v&0xe0 == 0x20:
		if v&0x1f == d.Address {
			d.Listening = true
			d.talking = false
		}
	case v&0xe0 == 0x40:
		d.talking = v&0x1f == d.Address
		if d.talking {
			d.Listening = false
		}
	case v&0xf0 == 0x60, v&0xf0 == 0xe0, v&0xf0 == 0xf0:
		if d.Listening || d.talking {
			d.sa = v & 0x0f
		}
	}
}

func (d *Drive) execute() {
	cmd := d.cmd
	d.cmd = nil
	if len(cmd) == 0 {
		return
	}
	d.commands = append(d.commands, cmd)

	if len(cmd) < 6 || cmd[0] != 'M' || cmd[1] != '-' {
		return
	}
	addr := int(cmd[3]) | int(cmd[4])<<8
	n := int(cmd[5])

	switch cmd[2] {
	case 'W':
		data := cmd[6:]
		if len(data) > n {
			data = data[:n]
		}
		for i, b := range data {
			d.Memory[(addr+i)&0xffff] = b
		}
	case 'R':
		d.memReply = make([]byte, n)
		for i := range d.memReply {
			d.memReply[i] = d.Memory[(addr+i)&0xffff]
		}
	}
}

func (d *Drive) prepareTalk() {
	if d.sa == iec.CommandChannel {
		d.talkBuf = d.memReply
		d.memReply = nil
		return
	}
	d.talkBuf = append([]byte(nil), d.TalkData...)
}

func (d *Drive) talkerTick(p *Port, now time.Duration, others iec.HWMask) {
	data := others&iec.HWData != 0

	switch d.state {
	case stTurnaround:
		if others&(iec.HWClock|iec.HWATN) != 0 {
			d.mark = now
			return
		}
		if now-d.mark >= turnDelay {
			p.Assert(iec.HWClock)
			d.enter(stTalkHold, now)
		}

	case stTalkHold:
		if len(d.talkBuf) > 0 && now-d.since >= d.dur(d.TalkDelay, DefaultTalkDelay) {
			p.Release(iec.HWClock)
			d.enter(stTalkReady, now)
		}

	case stTalkReady:
		if d.phase == 0 {
			if data {
				return
			}
			if len(d.talkBuf) == 1 {
				d.enter(stTalkEOI, now)
				return
			}
			d.phase, d.mark = 1, now
		}
		if now-d.mark >= talkSetup {
			p.Assert(iec.HWClock)
			d.startBits(now)
		}

	case stTalkEOI:
		switch d.phase {
		case 0:
			if data {
				d.phase = 1
			}
		case 1:
			if !data {
				d.phase, d.mark = 2, now
			}
		case 2:
			if now-d.mark >= talkEOIDelay {
				if d.StallAfterEOI {
					d.enter(stTalkStalled, now)
					return
				}
				p.Assert(iec.HWClock)
				d.startBits(now)
			}
		}

	case stTalkBits:
		d.talkBitTick(p, now)

	case stTalkAck:
		if data {
			d.talkBuf = d.talkBuf[1:]
			d.enter(stTalkHold, now)
		}

	default:
	}
}

func (d *Drive) startBits(now time.Duration) {
	d.bit = 0
	d.enter(stTalkBits, now)
}

func (d *Drive) talkBitTick(p *Port, now time.Duration) {
	switch d.phase {
	case 0:
		if d.talkBuf[0]&(1<<d.bit) == 0 {
			p.Assert(iec.HWData)
		} else {
			p.Release(iec.HWData)
		}
		d.phase, d.mark = 1, now
	case 1:
		if now-d.mark >= talkBitPhase {
			p.Release(iec.HWClock)
			d.phase, d.mark = 2, now
		}
	case 2:
		if now-d.mark >= talkBitPhase {
			p.Assert(iec.HWClock)
			p.Release(iec.HWData)
			d.bit++
			d.phase, d.mark = 3, now
		}
	case 3:
		if now-d.mark >= talkBitPhase {
			if d.bit == 8 {
				d.enter(stTalkAck, now)
				return
			}
			d.phase = 0
		}
	}
}

// Holder keeps Mask asserted forever, like a hung peripheral.
type Holder struct {
	Mask iec.HWMask
}

func (h *Holder) Tick(p *Port) {
	p.Assert(h.Mask)
}
