package burst

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arloliu/go-cbm/logger"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, model DeviceType, up Uploader, port Port, opts ...Option) (*Engine, *fakeTiming) {
	t.Helper()

	timing := &fakeTiming{}
	opts = append([]Option{WithLogger(logger.Nop()), WithTiming(timing)}, opts...)
	e, err := New(StaticIdentifier(model), up, port, opts...)
	require.NoError(t, err)

	return e, timing
}

func TestDeviceType(t *testing.T) {
	require := require.New(t)

	require.Equal("1571", Device1571.String())
	require.Equal("unknown", DeviceUnknown.String())
	require.Equal("DeviceType(42)", DeviceType(42).String())

	require.True(Device1570.SupportsBurst())
	require.True(Device1571.SupportsBurst())
	require.False(Device1541.SupportsBurst())
	require.False(Device1581.SupportsBurst())
	require.False(DeviceUnknown.SupportsBurst())
}

func TestImage(t *testing.T) {
	require := require.New(t)

	img, ok := Image(Device1571)
	require.True(ok)
	require.Less(len(img), MaxImageSize)
	// loops back to just behind the SEI at the load address
	require.Equal([]byte{0x4c, 0x01, 0x07}, img[len(img)-3:])

	img1570, ok := Image(Device1570)
	require.True(ok)
	require.Equal(img, img1570)

	// callers get a copy
	img[0] = 0
	again, _ := Image(Device1571)
	require.Equal(byte(0x78), again[0])

	for _, model := range []DeviceType{Device1541, Device1581, DeviceUnknown} {
		_, ok := Image(model)
		require.False(ok)
	}
}

func TestNew(t *testing.T) {
	require := require.New(t)

	up := &mockUploader{}
	port := &mockPort{}

	_, err := New(nil, up, port)
	require.Error(err)
	_, err = New(StaticIdentifier(Device1571), nil, port)
	require.Error(err)
	_, err = New(StaticIdentifier(Device1571), up, nil)
	require.Error(err)

	for _, opt := range []Option{
		WithLogger(nil),
		WithTiming(nil),
		WithImage(Device1571, nil),
		WithSettleTime(-time.Second),
		WithSettleTime(MaxSettleTime + 1),
		WithLoadAddress(0x00ff),
		WithLoadAddress(0xff01),
	} {
		_, err := New(StaticIdentifier(Device1571), up, port, opt)
		require.Error(err)
	}

	e, err := New(StaticIdentifier(Device1571), up, port)
	require.NoError(err)
	require.False(e.Ready())
	require.Equal(DeviceUnknown, e.Model())
}

func TestInit(t *testing.T) {
	ctx := context.Background()
	image, _ := Image(Device1571)

	t.Run("1571", func(t *testing.T) {
		require := require.New(t)

		up := &mockUploader{}
		up.On("Upload", ctx, byte(8), DefaultLoadAddress, image).Return(len(image), nil).Once()

		e, timing := newTestEngine(t, Device1571, up, &mockPort{})
		require.NoError(e.Init(ctx, 8))
		require.True(e.Ready())
		require.Equal(Device1571, e.Model())
		require.Equal(DefaultSettleTime, timing.elapsed)
		require.Equal(uint64(1), e.Metrics().UploadCount.Load())
		up.AssertExpectations(t)

		e.Invalidate()
		require.False(e.Ready())
	})

	t.Run("1570 shares the 1571 program", func(t *testing.T) {
		require := require.New(t)

		up := &mockUploader{}
		up.On("Upload", ctx, byte(9), DefaultLoadAddress, image).Return(len(image), nil).Once()

		e, _ := newTestEngine(t, Device1570, up, &mockPort{}, WithSettleTime(0))
		require.NoError(e.Init(ctx, 9))
		up.AssertExpectations(t)
	})

	t.Run("unsupported models", func(t *testing.T) {
		tests := []struct {
			model DeviceType
			msg   string
		}{
			{Device1541, "burst: 1541 not supported"},
			{Device1581, "burst: 1581 not supported yet"},
			{DeviceUnknown, "burst: unknown device type"},
		}

		for _, tt := range tests {
			t.Run(tt.model.String(), func(t *testing.T) {
				require := require.New(t)

				l := logger.NewMockLogger()
				l.On("Error", tt.msg, mock.Anything).Once()

				up := &mockUploader{}
				e, _ := newTestEngine(t, tt.model, up, &mockPort{}, WithLogger(l))

				err := e.Init(ctx, 8)
				require.ErrorIs(err, ErrUnsupportedModel)
				require.False(e.Ready())
				require.Equal(uint64(1), e.Metrics().UploadErrCount.Load())
				up.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
				l.AssertExpectations(t)
			})
		}
	})

	t.Run("largest image", func(t *testing.T) {
		require := require.New(t)

		img := make([]byte, MaxImageSize-1)
		up := &mockUploader{}
		up.On("Upload", ctx, byte(8), DefaultLoadAddress, img).Return(len(img), nil).Once()

		e, _ := newTestEngine(t, Device1571, up, &mockPort{}, WithImage(Device1571, img))
		require.NoError(e.Init(ctx, 8))
		up.AssertExpectations(t)
	})

	t.Run("image too large", func(t *testing.T) {
		require := require.New(t)

		up := &mockUploader{}
		e, _ := newTestEngine(t, Device1571, up, &mockPort{}, WithImage(Device1571, make([]byte, MaxImageSize)))

		require.ErrorIs(e.Init(ctx, 8), ErrImageTooLarge)
		require.False(e.Ready())
		up.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("short upload", func(t *testing.T) {
		require := require.New(t)

		img := make([]byte, MaxImageSize-1)
		up := &mockUploader{}
		up.On("Upload", ctx, byte(8), DefaultLoadAddress, img).Return(len(img)-1, nil).Once()

		e, timing := newTestEngine(t, Device1571, up, &mockPort{}, WithImage(Device1571, img))
		err := e.Init(ctx, 8)
		require.ErrorIs(err, ErrUploadMismatch)
		require.False(e.Ready())
		require.Zero(timing.elapsed)
		require.Equal(uint64(1), e.Metrics().UploadErrCount.Load())
	})

	t.Run("upload error", func(t *testing.T) {
		require := require.New(t)

		busErr := errors.New("no device")
		up := &mockUploader{}
		up.On("Upload", ctx, byte(8), uint16(0x0500), image).Return(32, busErr).Once()

		e, _ := newTestEngine(t, Device1571, up, &mockPort{}, WithLoadAddress(0x0500))
		err := e.Init(ctx, 8)
		require.ErrorIs(err, ErrUploadMismatch)
		require.ErrorIs(err, busErr)
	})

	t.Run("identify error", func(t *testing.T) {
		require := require.New(t)

		idErr := errors.New("drive not answering")
		ident := &mockIdentifier{}
		ident.On("Identify", ctx, byte(8)).Return(DeviceUnknown, idErr)

		e, err := New(ident, &mockUploader{}, &mockPort{}, WithLogger(logger.Nop()))
		require.NoError(err)
		require.ErrorIs(e.Init(ctx, 8), idErr)
	})

	t.Run("abort while settling", func(t *testing.T) {
		require := require.New(t)

		up := &mockUploader{}
		up.On("Upload", ctx, byte(8), DefaultLoadAddress, image).Return(len(image), nil)

		e, timing := newTestEngine(t, Device1571, up, &mockPort{})
		timing.abortAfter = 300 * time.Millisecond

		require.ErrorIs(e.Init(ctx, 8), ErrAborted)
		require.False(e.Ready())
		require.LessOrEqual(timing.elapsed-300*time.Millisecond, settleStep)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		up.On("Upload", cctx, byte(8), DefaultLoadAddress, image).Return(len(image), nil)
		timing.abortAfter = 0
		require.ErrorIs(e.Init(cctx, 8), ErrAborted)
	})

	t.Run("settle abort latency", func(t *testing.T) {
		for _, off := range []time.Duration{0, 100 * time.Nanosecond, 50 * time.Microsecond, 99 * time.Microsecond, 700 * time.Microsecond} {
			require := require.New(t)

			up := &mockUploader{}
			up.On("Upload", ctx, byte(8), DefaultLoadAddress, image).Return(len(image), nil)

			e, timing := newTestEngine(t, Device1571, up, &mockPort{})
			abortAt := 300*time.Millisecond + off
			timing.abortAfter = abortAt

			require.ErrorIs(e.Init(ctx, 8), ErrAborted, "abort offset %v", off)
			require.GreaterOrEqual(timing.elapsed, abortAt)
			require.LessOrEqual(timing.elapsed-abortAt, settleStep, "abort offset %v", off)
		}
	})
}

func readyEngine(t *testing.T, port Port) *Engine {
	t.Helper()

	image, _ := Image(Device1571)
	up := &mockUploader{}
	up.On("Upload", mock.Anything, byte(8), DefaultLoadAddress, image).Return(len(image), nil)

	e, _ := newTestEngine(t, Device1571, up, port, WithSettleTime(0))
	require.NoError(t, e.Init(context.Background(), 8))

	return e
}

func TestNotInitialized(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	port := &mockPort{}
	e, _ := newTestEngine(t, Device1571, &mockUploader{}, port)

	_, err := e.Read1(ctx)
	require.ErrorIs(err, ErrNotInitialized)
	_, _, err = e.Read2(ctx)
	require.ErrorIs(err, ErrNotInitialized)
	_, err = e.ReadBlock(ctx, make([]byte, BlockSize), 0)
	require.ErrorIs(err, ErrNotInitialized)
	require.ErrorIs(e.Write1(ctx, 1), ErrNotInitialized)
	require.ErrorIs(e.Write2(ctx, 1, 2), ErrNotInitialized)
	_, err = e.WriteBlock(ctx, make([]byte, BlockSize), 0)
	require.ErrorIs(err, ErrNotInitialized)

	port.AssertNotCalled(t, "ReadByte", mock.Anything)
	port.AssertNotCalled(t, "WriteByte", mock.Anything, mock.Anything)
}

func TestByteIO(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	port := &mockPort{}
	port.On("ReadByte", ctx).Return(byte(0x11), nil).Once()
	port.On("ReadByte", ctx).Return(byte(0x22), nil).Once()
	port.On("ReadByte", ctx).Return(byte(0x33), nil).Once()
	port.On("WriteByte", ctx, mock.Anything).Return(nil)

	e := readyEngine(t, port)

	b, err := e.Read1(ctx)
	require.NoError(err)
	require.Equal(byte(0x11), b)

	b1, b2, err := e.Read2(ctx)
	require.NoError(err)
	require.Equal(byte(0x22), b1)
	require.Equal(byte(0x33), b2)

	require.NoError(e.Write1(ctx, 0xaa))
	require.NoError(e.Write2(ctx, 0xbb, 0xcc))

	port.AssertNumberOfCalls(t, "WriteByte", 3)
	port.AssertCalled(t, "WriteByte", ctx, byte(0xbb))
	require.Equal(uint64(3), e.Metrics().BytesRead.Load())
	require.Equal(uint64(3), e.Metrics().BytesWritten.Load())
}

func TestBlockIO(t *testing.T) {
	ctx := context.Background()

	t.Run("write from offset", func(t *testing.T) {
		require := require.New(t)

		port := &mockPort{}
		port.On("WriteByte", ctx, mock.Anything).Return(nil)
		e := readyEngine(t, port)

		p := make([]byte, BlockSize)
		n, err := e.WriteBlock(ctx, p, 0xf0)
		require.NoError(err)
		require.Equal(0x10, n)
		port.AssertNumberOfCalls(t, "WriteByte", 0x10)

		_, err = e.WriteBlock(ctx, p[:4], 0xf0)
		require.ErrorIs(err, ErrBlockRange)
		_, err = e.WriteBlock(ctx, p, BlockSize)
		require.ErrorIs(err, ErrBlockRange)
		_, err = e.WriteBlock(ctx, p, -1)
		require.ErrorIs(err, ErrBlockRange)
	})

	t.Run("write stops at first failure", func(t *testing.T) {
		require := require.New(t)

		portErr := errors.New("timeout")
		port := &mockPort{}
		port.On("WriteByte", ctx, byte(0)).Return(nil).Once()
		port.On("WriteByte", ctx, byte(1)).Return(portErr).Once()
		e := readyEngine(t, port)

		n, err := e.WriteBlock(ctx, []byte{0, 1, 2}, BlockSize-3)
		require.ErrorIs(err, portErr)
		require.Equal(1, n)
	})

	t.Run("read byte by byte", func(t *testing.T) {
		require := require.New(t)

		port := &mockPort{}
		port.On("ReadByte", ctx).Return(byte(0x5a), nil)
		e := readyEngine(t, port)

		p := make([]byte, BlockSize)
		n, err := e.ReadBlock(ctx, p, 0xfe)
		require.NoError(err)
		require.Equal(2, n)
		require.Equal([]byte{0x5a, 0x5a, 0}, p[:3])
	})

	t.Run("read as track", func(t *testing.T) {
		require := require.New(t)

		port := &mockTrackPort{}
		port.On("ReadTrack", ctx, mock.Anything).Return(BlockSize, nil)
		e := readyEngine(t, port)

		p := make([]byte, BlockSize)
		n, err := e.ReadBlock(ctx, p, 0)
		require.NoError(err)
		require.Equal(BlockSize, n)
		require.Equal(byte(0xff), p[0xff])
		port.AssertNotCalled(t, "ReadByte", mock.Anything)
		require.Equal(uint64(BlockSize), e.Metrics().BytesRead.Load())
	})
}
