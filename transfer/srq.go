package transfer

import (
	"context"

	"github.com/arloliu/go-cbm/burst"
	"github.com/arloliu/go-cbm/iec"
)

// SRQName is the name of the burst backend.
const SRQName = "srq"

func init() {
	mustRegister(SRQName, newSRQ)
}

// srq runs the burst protocol. Init uploads the drive program through the
// standard handshake, all transfers after that use the SRQ port.
type srq struct {
	*burst.Engine

	eng   *iec.Engine
	drive byte
}

func newSRQ(env Env) (Backend, error) {
	ident := env.Identifier
	if ident == nil {
		ident = burst.StaticIdentifier(burst.Device1571)
	}

	opts := append([]burst.Option{burst.WithLogger(env.Logger), burst.WithTiming(env.Engine.Timing())}, env.BurstOptions...)
	be, err := burst.New(ident, env.Session, env.Port, opts...)
	if err != nil {
		return nil, err
	}

	return &srq{Engine: be, eng: env.Engine, drive: env.Drive}, nil
}

func (s *srq) Name() string { return SRQName }

func (s *srq) Init(ctx context.Context) error {
	return s.Engine.Init(ctx, s.drive)
}

// Reset resets the bus, which also kills the drive program.
func (s *srq) Reset(ctx context.Context) error {
	s.Invalidate()
	return s.eng.Reset(ctx)
}
