package burst

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type mockIdentifier struct {
	mock.Mock
}

func (m *mockIdentifier) Identify(ctx context.Context, drive byte) (DeviceType, error) {
	args := m.Called(ctx, drive)
	return args.Get(0).(DeviceType), args.Error(1)
}

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) Upload(ctx context.Context, drive byte, addr uint16, program []byte) (int, error) {
	args := m.Called(ctx, drive, addr, program)
	return args.Int(0), args.Error(1)
}

type mockPort struct {
	mock.Mock
}

func (m *mockPort) ReadByte(ctx context.Context) (byte, error) {
	args := m.Called(ctx)
	return args.Get(0).(byte), args.Error(1)
}

func (m *mockPort) WriteByte(ctx context.Context, b byte) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

// mockTrackPort adds ReadTrack to mockPort.
type mockTrackPort struct {
	mockPort
}

func (m *mockTrackPort) ReadTrack(ctx context.Context, buf []byte) (int, error) {
	args := m.Called(ctx, buf)
	for i := range buf {
		buf[i] = byte(i)
	}

	return args.Int(0), args.Error(1)
}

// fakeTiming accounts delays without sleeping and cancels once abortAfter
// has passed, if set.
type fakeTiming struct {
	elapsed    time.Duration
	abortAfter time.Duration
}

func (f *fakeTiming) Delay(d time.Duration) { f.elapsed += d }

func (f *fakeTiming) PollAbort() bool {
	return f.abortAfter == 0 || f.elapsed < f.abortAfter
}
