package burst

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-cbm/iec"
	"github.com/arloliu/go-cbm/logger"
)

const (
	// DefaultSettleTime is how long the uploaded program gets to start.
	DefaultSettleTime = time.Second
	// MaxSettleTime is the longest settle time accepted by WithSettleTime.
	MaxSettleTime = 10 * time.Second

	// settleStep is the abort polling interval of the settle wait.
	settleStep = 100 * time.Microsecond
)

// Option is a functional option for configuring an Engine.
type Option interface {
	apply(*Engine) error
}

type optFunc func(*Engine) error

func (f optFunc) apply(e *Engine) error { return f(e) }

// WithLogger sets the logger of the engine.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(e *Engine) error {
		if l == nil {
			return errors.New("burst: logger must not be nil")
		}
		e.logger = l

		return nil
	})
}

// WithTiming sets the delay and abort source of the settle wait. The default
// is an iec.SpinTiming.
func WithTiming(t iec.Timing) Option {
	return optFunc(func(e *Engine) error {
		if t == nil {
			return errors.New("burst: timing must not be nil")
		}
		e.timing = t

		return nil
	})
}

// WithImage replaces the program image for model. The size is checked by
// Init, right before the upload.
func WithImage(model DeviceType, image []byte) Option {
	return optFunc(func(e *Engine) error {
		if len(image) == 0 {
			return fmt.Errorf("burst: empty image for %s", model)
		}
		e.images[model] = append([]byte(nil), image...)

		return nil
	})
}

// WithSettleTime sets how long Init waits after the upload.
func WithSettleTime(d time.Duration) Option {
	return optFunc(func(e *Engine) error {
		if d < 0 || d > MaxSettleTime {
			return fmt.Errorf("burst: settle time %v out of range [0, %v]", d, MaxSettleTime)
		}
		e.settleTime = d

		return nil
	})
}

// WithLoadAddress sets the drive address program images are uploaded to.
// Zero page and the stack page are off limits.
func WithLoadAddress(addr uint16) Option {
	return optFunc(func(e *Engine) error {
		if addr < 0x0200 || int(addr)+MaxImageSize > 0x10000 {
			return fmt.Errorf("burst: load address %#04x out of range [0x0200, 0xff00]", addr)
		}
		e.loadAddress = addr

		return nil
	})
}
