package transfer

import (
	"context"
	"fmt"
	"io"

	"github.com/arloliu/go-cbm/burst"
	"github.com/arloliu/go-cbm/iec"
	"github.com/arloliu/go-cbm/logger"
)

// SerialName is the name of the standard handshake backend.
const SerialName = "serial"

func init() {
	mustRegister(SerialName, newSerial)
}

// serial moves bytes with the standard handshake. Every operation addresses
// the drive itself: LISTEN before writing and TALK before reading, followed
// by UNLISTEN or UNTALK.
type serial struct {
	eng    *iec.Engine
	sess   *iec.Session
	drive  byte
	sa     byte
	logger logger.Logger
}

func newSerial(env Env) (Backend, error) {
	return &serial{
		eng:    env.Engine,
		sess:   env.Session,
		drive:  env.Drive,
		sa:     env.Secondary,
		logger: env.Logger,
	}, nil
}

func (s *serial) Name() string { return SerialName }

func (s *serial) Init(context.Context) error {
	s.eng.Init()
	return nil
}

func (s *serial) Reset(ctx context.Context) error {
	return s.eng.Reset(ctx)
}

func (s *serial) Read1(ctx context.Context) (byte, error) {
	var b [1]byte
	if _, err := s.read(ctx, b[:]); err != nil {
		return 0, err
	}

	return b[0], nil
}

func (s *serial) Read2(ctx context.Context) (byte, byte, error) {
	var b [2]byte
	if _, err := s.read(ctx, b[:]); err != nil {
		return 0, 0, err
	}

	return b[0], b[1], nil
}

func (s *serial) ReadBlock(ctx context.Context, p []byte, start int) (int, error) {
	n, err := burst.BlockLen(p, start)
	if err != nil {
		return 0, err
	}

	return s.read(ctx, p[:n])
}

func (s *serial) Write1(ctx context.Context, b byte) error {
	_, err := s.write(ctx, []byte{b})
	return err
}

func (s *serial) Write2(ctx context.Context, b1, b2 byte) error {
	_, err := s.write(ctx, []byte{b1, b2})
	return err
}

func (s *serial) WriteBlock(ctx context.Context, p []byte, start int) (int, error) {
	n, err := burst.BlockLen(p, start)
	if err != nil {
		return 0, err
	}

	return s.write(ctx, p[:n])
}

// read fills p from the drive. A talker that ends with EOI before p is full
// yields io.ErrUnexpectedEOF with the count so far.
func (s *serial) read(ctx context.Context, p []byte) (int, error) {
	if err := s.sess.Talk(ctx, s.drive, s.sa); err != nil {
		return 0, err
	}

	ch := iec.NewBufferChannel(nil)
	n, err := s.sess.Read(ctx, ch, len(p))
	copy(p, ch.Received())

	if uerr := s.sess.Untalk(ctx); uerr != nil && err == nil {
		err = uerr
	}
	if err != nil {
		return n, err
	}
	if n < len(p) {
		s.logger.Debug("transfer: short serial read", "want", len(p), "got", n)
		return n, fmt.Errorf("%w: got %d of %d bytes", io.ErrUnexpectedEOF, n, len(p))
	}

	return n, nil
}

func (s *serial) write(ctx context.Context, p []byte) (int, error) {
	if err := s.sess.Listen(ctx, s.drive, s.sa); err != nil {
		return 0, err
	}

	n, err := s.sess.Write(ctx, iec.NewBufferChannel(p), len(p), 0)

	if uerr := s.sess.Unlisten(ctx); uerr != nil && err == nil {
		err = uerr
	}

	return n, err
}
