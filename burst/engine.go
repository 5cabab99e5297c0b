package burst

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-cbm/iec"
	"github.com/arloliu/go-cbm/logger"
)

// Engine runs the burst protocol against one drive.
//
// Init must succeed before any Read or Write. The engine is not meant for
// concurrent transfers; Invalidate may be called from any goroutine.
type Engine struct {
	ident Identifier
	up    Uploader
	port  Port

	logger      logger.Logger
	timing      iec.Timing
	images      map[DeviceType][]byte
	settleTime  time.Duration
	loadAddress uint16

	ready   atomic.Bool
	model   atomic.Int32
	metrics Metrics
}

// New creates a burst engine. ident finds the drive model, up uploads the
// program and port carries the burst bytes.
func New(ident Identifier, up Uploader, port Port, opts ...Option) (*Engine, error) {
	if ident == nil || up == nil || port == nil {
		return nil, errors.New("burst: identifier, uploader and port are required")
	}

	e := &Engine{
		ident:       ident,
		up:          up,
		port:        port,
		logger:      logger.GetLogger(),
		images:      builtinImages(),
		settleTime:  DefaultSettleTime,
		loadAddress: DefaultLoadAddress,
	}

	for _, opt := range opts {
		if err := opt.apply(e); err != nil {
			return nil, err
		}
	}

	if e.timing == nil {
		e.timing = iec.NewSpinTiming()
	}

	return e, nil
}

// Metrics returns the engine counters.
func (e *Engine) Metrics() *Metrics { return &e.metrics }

// Ready reports whether Init succeeded and the engine was not invalidated
// since.
func (e *Engine) Ready() bool { return e.ready.Load() }

// Model returns the drive model found by the last Init.
func (e *Engine) Model() DeviceType { return DeviceType(e.model.Load()) }

// Invalidate drops the initialized state, e.g. after a bus reset wiped the
// drive program.
func (e *Engine) Invalidate() { e.ready.Store(false) }

// Upload identifies drive, picks the program image for its model and uploads
// it. It fails when the model has no image, the image does not fit or the
// drive accepted fewer bytes than were sent.
func (e *Engine) Upload(ctx context.Context, drive byte) error {
	e.ready.Store(false)

	model, err := e.ident.Identify(ctx, drive)
	if err != nil {
		e.metrics.incUploadErrCount()
		return fmt.Errorf("burst: identify drive %d: %w", drive, err)
	}
	e.model.Store(int32(model)) //nolint:gosec

	image, err := e.imageFor(model)
	if err != nil {
		e.metrics.incUploadErrCount()
		return err
	}

	if len(image) >= MaxImageSize {
		e.metrics.incUploadErrCount()
		e.logger.Error("burst: program image too large", "model", model.String(), "size", len(image))

		return fmt.Errorf("%w: %d bytes for %s, limit %d", ErrImageTooLarge, len(image), model, MaxImageSize-1)
	}

	e.logger.Debug("burst: uploading program", "model", model.String(), "drive", drive,
		"addr", e.loadAddress, "size", len(image))
	e.metrics.incUploadCount()

	n, err := e.up.Upload(ctx, drive, e.loadAddress, image)
	if n != len(image) {
		e.metrics.incUploadErrCount()
		e.logger.Error("burst: upload incomplete", "wanted", len(image), "written", n, "error", err)

		if err != nil {
			return fmt.Errorf("%w: wrote %d of %d bytes: %w", ErrUploadMismatch, n, len(image), err)
		}

		return fmt.Errorf("%w: wrote %d of %d bytes", ErrUploadMismatch, n, len(image))
	}

	return nil
}

func (e *Engine) imageFor(model DeviceType) ([]byte, error) {
	if image, ok := e.images[model]; ok {
		return image, nil
	}

	// Distinct log detail, same error for the caller.
	switch model {
	case Device1541:
		e.logger.Error("burst: 1541 not supported")
	case Device1581:
		e.logger.Error("burst: 1581 not supported yet")
	case Device1570, Device1571:
		e.logger.Error("burst: no program image", "model", model.String())
	default:
		e.logger.Error("burst: unknown device type", "model", model.String())
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, model)
}

// Init uploads the drive program and waits for it to start.
func (e *Engine) Init(ctx context.Context, drive byte) error {
	if err := e.Upload(ctx, drive); err != nil {
		return err
	}

	// TODO: replace the fixed settle time with a handshake once the drive
	// program signals it is running.
	if err := e.settle(ctx); err != nil {
		return err
	}

	e.ready.Store(true)
	e.logger.Info("burst: drive ready", "drive", drive, "model", e.Model().String())

	return nil
}

func (e *Engine) settle(ctx context.Context) error {
	for waited := time.Duration(0); waited < e.settleTime; waited += settleStep {
		if ctx.Err() != nil || !e.timing.PollAbort() {
			return fmt.Errorf("%w: during settle time", ErrAborted)
		}
		e.timing.Delay(min(settleStep, e.settleTime-waited))
	}

	return nil
}

// Read1 receives one byte.
func (e *Engine) Read1(ctx context.Context) (byte, error) {
	if !e.Ready() {
		return 0, ErrNotInitialized
	}

	b, err := e.port.ReadByte(ctx)
	if err != nil {
		return 0, err
	}
	e.metrics.addBytesRead(1)

	return b, nil
}

// Read2 receives two bytes.
func (e *Engine) Read2(ctx context.Context) (byte, byte, error) {
	b1, err := e.Read1(ctx)
	if err != nil {
		return 0, 0, err
	}
	b2, err := e.Read1(ctx)
	if err != nil {
		return 0, 0, err
	}

	return b1, b2, nil
}

// ReadBlock fills p with the block bytes from offset start up to the end of
// the block, that is 256-start bytes. It returns the number of bytes read.
func (e *Engine) ReadBlock(ctx context.Context, p []byte, start int) (int, error) {
	if !e.Ready() {
		return 0, ErrNotInitialized
	}
	n, err := BlockLen(p, start)
	if err != nil {
		return 0, err
	}

	if tr, ok := e.port.(TrackReader); ok {
		got, err := tr.ReadTrack(ctx, p[:n])
		e.metrics.addBytesRead(got)

		return got, err
	}

	for i := range n {
		b, err := e.port.ReadByte(ctx)
		if err != nil {
			return i, err
		}
		p[i] = b
		e.metrics.addBytesRead(1)
	}

	return n, nil
}

// Write1 sends one byte.
func (e *Engine) Write1(ctx context.Context, b byte) error {
	if !e.Ready() {
		return ErrNotInitialized
	}

	if err := e.port.WriteByte(ctx, b); err != nil {
		return err
	}
	e.metrics.addBytesWritten(1)

	return nil
}

// Write2 sends two bytes.
func (e *Engine) Write2(ctx context.Context, b1, b2 byte) error {
	if err := e.Write1(ctx, b1); err != nil {
		return err
	}

	return e.Write1(ctx, b2)
}

// WriteBlock sends the block bytes from offset start up to the end of the
// block, taken from the front of p. It returns the number of bytes sent.
func (e *Engine) WriteBlock(ctx context.Context, p []byte, start int) (int, error) {
	if !e.Ready() {
		return 0, ErrNotInitialized
	}
	n, err := BlockLen(p, start)
	if err != nil {
		return 0, err
	}

	for i := range n {
		if err := e.port.WriteByte(ctx, p[i]); err != nil {
			return i, err
		}
		e.metrics.addBytesWritten(1)
	}

	return n, nil
}

// BlockLen returns how many bytes a block transfer from offset start moves,
// checking that p holds them.
func BlockLen(p []byte, start int) (int, error) {
	if start < 0 || start >= BlockSize {
		return 0, fmt.Errorf("%w: start %d not in [0, %d)", ErrBlockRange, start, BlockSize)
	}

	n := BlockSize - start
	if len(p) < n {
		return 0, fmt.Errorf("%w: buffer holds %d bytes, block needs %d", ErrBlockRange, len(p), n)
	}

	return n, nil
}
