package transfer

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/arloliu/go-cbm/burst"
	"github.com/arloliu/go-cbm/iec"
	"github.com/arloliu/go-cbm/internal/bussim"
	"github.com/arloliu/go-cbm/logger"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T, devs ...bussim.Device) (*bussim.Bus, *iec.Engine) {
	t.Helper()

	bus := bussim.New()
	for i, d := range devs {
		bus.Attach(string(rune('a'+i)), d)
	}

	cfg, err := iec.NewConfig(iec.WithLogger(logger.Nop()), iec.WithBusFreeTimeout(100*time.Millisecond))
	require.NoError(t, err)
	eng, err := iec.NewEngine(bus, bus, cfg)
	require.NoError(t, err)
	eng.Init()

	return bus, eng
}

// probedEnv records the Env the "env-probe" backend was opened with.
var probedEnv Env

func init() {
	mustRegister("env-probe", func(env Env) (Backend, error) {
		probedEnv = env
		return newSerial(env)
	})
}

type stubIdentifier struct {
	model burst.DeviceType
	err   error
	calls int
}

func (s *stubIdentifier) Identify(context.Context, byte) (burst.DeviceType, error) {
	s.calls++
	return s.model, s.err
}

func TestRegistry(t *testing.T) {
	require := require.New(t)

	require.Subset(Names(), []string{SerialName, SRQName})

	require.ErrorIs(Register(SerialName, newSerial), ErrDuplicateBackend)
	require.Error(Register("", newSerial))
	require.Error(Register("nil-factory", nil))

	_, eng := newTestBus(t)

	_, err := Open("no-such-backend", Env{Engine: eng})
	require.ErrorIs(err, ErrUnknownBackend)

	_, err = Open(SerialName, Env{})
	require.Error(err)
	_, err = Open(SerialName, Env{Engine: eng, Drive: iec.MaxDevice + 1})
	require.Error(err)

	require.Contains(Names(), "env-probe")

	b, err := Open("env-probe", Env{Engine: eng, Drive: 9})
	require.NoError(err)
	require.Equal(SerialName, b.Name())
	require.NotNil(probedEnv.Session)
	require.NotNil(probedEnv.Port)
	require.NotNil(probedEnv.Logger)
	require.Equal(byte(9), probedEnv.Drive)
}

func TestSelectName(t *testing.T) {
	require := require.New(t)

	require.Equal(SRQName, SelectName(burst.Device1571))
	require.Equal(SRQName, SelectName(burst.Device1570))
	require.Equal(SerialName, SelectName(burst.Device1541))
	require.Equal(SerialName, SelectName(burst.Device1581))
	require.Equal(SerialName, SelectName(burst.DeviceUnknown))
}

func TestSelect(t *testing.T) {
	ctx := context.Background()
	_, eng := newTestBus(t)

	t.Run("identifies once", func(t *testing.T) {
		require := require.New(t)

		ident := &stubIdentifier{model: burst.Device1571}
		b, err := Select(ctx, Env{Engine: eng, Identifier: ident, Drive: 8, Logger: logger.Nop()})
		require.NoError(err)
		require.Equal(SRQName, b.Name())
		require.Equal(1, ident.calls)
	})

	t.Run("falls back to serial", func(t *testing.T) {
		require := require.New(t)

		b, err := Select(ctx, Env{Engine: eng, Identifier: &stubIdentifier{model: burst.Device1541}, Drive: 8})
		require.NoError(err)
		require.Equal(SerialName, b.Name())
	})

	t.Run("errors", func(t *testing.T) {
		require := require.New(t)

		_, err := Select(ctx, Env{Engine: eng, Drive: 8})
		require.Error(err)

		idErr := errors.New("no answer")
		_, err = Select(ctx, Env{Engine: eng, Identifier: &stubIdentifier{err: idErr}, Drive: 8})
		require.ErrorIs(err, idErr)
	})
}

func TestSerialBackend(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	drive := bussim.NewDrive()
	drive.TalkData = []byte("0123")
	_, eng := newTestBus(t, drive)

	b, err := Open(SerialName, Env{Engine: eng, Drive: 8, Secondary: 2, Logger: logger.Nop()})
	require.NoError(err)
	require.NoError(b.Init(ctx))

	b1, err := b.Read1(ctx)
	require.NoError(err)
	require.Equal(byte('0'), b1)

	b1, b2, err := b.Read2(ctx)
	require.NoError(err)
	require.Equal([]byte("01"), []byte{b1, b2})

	p := make([]byte, burst.BlockSize)
	n, err := b.ReadBlock(ctx, p, burst.BlockSize-4)
	require.NoError(err)
	require.Equal(4, n)
	require.Equal([]byte("0123"), p[:4])

	n, err = b.ReadBlock(ctx, p, burst.BlockSize-16)
	require.ErrorIs(err, io.ErrUnexpectedEOF)
	require.Equal(4, n)

	_, err = b.ReadBlock(ctx, p[:2], burst.BlockSize-4)
	require.ErrorIs(err, burst.ErrBlockRange)

	require.NoError(b.Write1(ctx, 'a'))
	require.NoError(b.Write2(ctx, 'b', 'c'))
	n, err = b.WriteBlock(ctx, []byte("defg"), burst.BlockSize-3)
	require.NoError(err)
	require.Equal(3, n)
	require.Equal([]byte("abcdef"), drive.Data())

	require.NoError(b.Reset(ctx))
	require.Equal(1, drive.Resets())
}

func TestSerialBackendNoDrive(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	_, eng := newTestBus(t)
	b, err := Open(SerialName, Env{Engine: eng, Drive: 8})
	require.NoError(err)

	_, err = b.Read1(ctx)
	require.ErrorIs(err, iec.ErrNoDevice)
	require.ErrorIs(b.Write1(ctx, 1), iec.ErrNoDevice)
	require.ErrorIs(b.Reset(ctx), iec.ErrNoDevice)
}

func TestSRQBackend(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	drive := bussim.NewDrive()
	echo := bussim.NewSRQEcho()
	_, eng := newTestBus(t, drive, echo)

	b, err := Select(ctx, Env{
		Engine:       eng,
		Identifier:   burst.StaticIdentifier(burst.Device1571),
		Drive:        8,
		Logger:       logger.Nop(),
		BurstOptions: []burst.Option{burst.WithSettleTime(5 * time.Millisecond)},
	})
	require.NoError(err)
	require.Equal(SRQName, b.Name())

	_, err = b.Read1(ctx)
	require.ErrorIs(err, burst.ErrNotInitialized)

	require.NoError(b.Init(ctx))

	image, _ := burst.Image(burst.Device1571)
	addr := int(burst.DefaultLoadAddress)
	require.Equal(image, drive.Memory[addr:addr+len(image)])

	require.NoError(b.Write1(ctx, 0x42))
	got, err := b.Read1(ctx)
	require.NoError(err)
	require.Equal(byte(0x42), got)

	require.NoError(b.Write2(ctx, 0x01, 0xfe))
	b1, b2, err := b.Read2(ctx)
	require.NoError(err)
	require.Equal([]byte{0x01, 0xfe}, []byte{b1, b2})

	track := []byte("0123456789abcdef")
	echo.Queue(track...)
	p := make([]byte, burst.BlockSize)
	n, err := b.ReadBlock(ctx, p, burst.BlockSize-len(track))
	require.NoError(err)
	require.Equal(len(track), n)
	require.Equal(track, p[:n])

	n, err = b.WriteBlock(ctx, []byte{0x10, 0x20}, burst.BlockSize-2)
	require.NoError(err)
	require.Equal(2, n)
	require.Equal([]byte{0x42, 0x01, 0xfe, 0x10, 0x20}, echo.Received())

	require.NoError(b.Reset(ctx))
	_, err = b.Read1(ctx)
	require.ErrorIs(err, burst.ErrNotInitialized)
}
