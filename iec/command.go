package iec

import (
	"context"
	"fmt"
)

// Bus command bytes sent under ATN.
const (
	cmdListen    = 0x20
	cmdUnlisten  = 0x3f
	cmdTalk      = 0x40
	cmdUntalk    = 0x5f
	cmdSecondary = 0x60

	// CommandChannel is the drive's command/status secondary address.
	CommandChannel = 15

	// MaxDevice is the highest primary address on the bus.
	MaxDevice = 30

	// memoryChunk is the payload size of a single M-W command.
	memoryChunk = 32
)

// Listen addresses dev as listener on secondary address sa.
func (s *Session) Listen(ctx context.Context, dev, sa byte) error {
	if err := checkAddress(dev, sa); err != nil {
		return err
	}

	return s.command(ctx, 0, cmdListen|dev, cmdSecondary|sa)
}

// Unlisten releases all listeners.
func (s *Session) Unlisten(ctx context.Context) error {
	return s.command(ctx, 0, cmdUnlisten)
}

// Talk addresses dev as talker on secondary address sa and turns the bus
// around, so Read can follow.
func (s *Session) Talk(ctx context.Context, dev, sa byte) error {
	if err := checkAddress(dev, sa); err != nil {
		return err
	}

	return s.command(ctx, WriteTalk, cmdTalk|dev, cmdSecondary|sa)
}

// Untalk releases the talker.
func (s *Session) Untalk(ctx context.Context) error {
	return s.command(ctx, 0, cmdUntalk)
}

func (s *Session) command(ctx context.Context, flags WriteFlags, cmds ...byte) error {
	n, err := s.Write(ctx, NewBufferChannel(cmds), len(cmds), flags|WriteATN)
	if err != nil {
		return fmt.Errorf("iec: bus command % x: %w", cmds, err)
	}
	if n != len(cmds) {
		return fmt.Errorf("%w: bus command % x sent %d of %d", ErrShortWrite, cmds, n, len(cmds))
	}

	return nil
}

// Upload writes program into the memory of dev at addr with M-W commands on
// the command channel. It returns the number of program bytes the drive
// accepted; the count stops at the first failed chunk.
func (s *Session) Upload(ctx context.Context, dev byte, addr uint16, program []byte) (int, error) {
	written := 0

	for written < len(program) {
		c := min(memoryChunk, len(program)-written)
		a := addr + uint16(written) //nolint:gosec

		cmd := make([]byte, 0, 6+c)
		cmd = append(cmd, 'M', '-', 'W', byte(a), byte(a>>8), byte(c))
		cmd = append(cmd, program[written:written+c]...)

		if err := s.sendCommand(ctx, dev, cmd); err != nil {
			s.eng.logger.Debug("iec: upload chunk failed", "addr", a, "written", written, "error", err)
			return written, err
		}
		written += c
	}

	return written, nil
}

// ReadMemory reads n bytes of drive memory at addr with an M-R command.
func (s *Session) ReadMemory(ctx context.Context, dev byte, addr uint16, n int) ([]byte, error) {
	if n <= 0 || n > 0xff {
		return nil, fmt.Errorf("iec: memory read length %d out of range [1, 255]", n)
	}

	cmd := []byte{'M', '-', 'R', byte(addr), byte(addr >> 8), byte(n)}
	if err := s.sendCommand(ctx, dev, cmd); err != nil {
		return nil, err
	}

	if err := s.Talk(ctx, dev, CommandChannel); err != nil {
		return nil, err
	}

	ch := NewBufferChannel(nil)
	got, rerr := s.Read(ctx, ch, n)

	if err := s.Untalk(ctx); err != nil && rerr == nil {
		rerr = err
	}
	if rerr != nil {
		return nil, rerr
	}
	if got != n {
		return ch.Received(), fmt.Errorf("%w: memory read returned %d of %d bytes", ErrTimeout, got, n)
	}

	return ch.Received(), nil
}

// sendCommand writes cmd to the command channel of dev.
func (s *Session) sendCommand(ctx context.Context, dev byte, cmd []byte) error {
	if err := s.Listen(ctx, dev, CommandChannel); err != nil {
		return err
	}

	n, err := s.Write(ctx, NewBufferChannel(cmd), len(cmd), 0)
	uerr := s.Unlisten(ctx)

	switch {
	case err != nil:
		return err
	case n != len(cmd):
		return fmt.Errorf("%w: command sent %d of %d bytes", ErrShortWrite, n, len(cmd))
	default:
		return uerr
	}
}

func checkAddress(dev, sa byte) error {
	if dev > MaxDevice {
		return fmt.Errorf("iec: device address %d out of range [0, %d]", dev, MaxDevice)
	}
	if sa > 0x0f {
		return fmt.Errorf("iec: secondary address %d out of range [0, 15]", sa)
	}

	return nil
}
