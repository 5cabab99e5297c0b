// Package transfer selects and drives a transfer backend.
//
// A Backend bundles the byte operations a file transfer needs: init, reset,
// read and write of one, two or a block of bytes. Backends are registered by
// name at package init; callers pick one once per session, usually with
// Select after identifying the drive, and use it through the interface from
// then on.
//
// Two backends are built in: "serial" runs the standard handshake of the
// iec engine and works with every drive, "srq" runs the burst protocol on
// drives that support it.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/arloliu/go-cbm/burst"
	"github.com/arloliu/go-cbm/iec"
	"github.com/arloliu/go-cbm/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	// ErrUnknownBackend indicates Open was called with a name nobody
	// registered.
	ErrUnknownBackend = errors.New("transfer: unknown backend")
	// ErrDuplicateBackend indicates a second registration under one name.
	ErrDuplicateBackend = errors.New("transfer: backend already registered")
)

// Backend is one transfer protocol.
//
// Block operations cover the offsets start..255 of a 256 byte block.
type Backend interface {
	Name() string

	// Init prepares the drive for transfers, e.g. uploads a drive program.
	Init(ctx context.Context) error
	// Reset resets the bus. A backend needs Init again afterwards.
	Reset(ctx context.Context) error

	Read1(ctx context.Context) (byte, error)
	Read2(ctx context.Context) (byte, byte, error)
	ReadBlock(ctx context.Context, p []byte, start int) (int, error)

	Write1(ctx context.Context, b byte) error
	Write2(ctx context.Context, b1, b2 byte) error
	WriteBlock(ctx context.Context, p []byte, start int) (int, error)
}

// Env holds what a backend needs. Engine and Drive are required; the rest
// has defaults.
type Env struct {
	// Engine drives the bus.
	Engine *iec.Engine
	// Session carries bus commands. Defaults to a new session of Engine.
	Session *iec.Session
	// Identifier finds the drive model. Select requires it.
	Identifier burst.Identifier
	// Port carries burst bytes. Defaults to the SRQ port of Engine.
	Port burst.Port
	// Drive is the primary address of the drive.
	Drive byte
	// Secondary is the channel the serial backend talks and listens on.
	Secondary byte
	// Logger defaults to the logger of the engine config.
	Logger logger.Logger
	// BurstOptions are passed on to burst.New.
	BurstOptions []burst.Option
}

func (env Env) withDefaults() (Env, error) {
	if env.Engine == nil {
		return env, errors.New("transfer: engine must not be nil")
	}
	if env.Drive > iec.MaxDevice {
		return env, fmt.Errorf("transfer: drive address %d out of range [0, %d]", env.Drive, iec.MaxDevice)
	}
	if env.Session == nil {
		env.Session = env.Engine.NewSession()
	}
	if env.Port == nil {
		env.Port = env.Engine.SRQ()
	}
	if env.Logger == nil {
		env.Logger = env.Engine.Config().GetLogger()
	}

	return env, nil
}

// Factory creates a backend for env.
type Factory func(env Env) (Backend, error)

var registry = xsync.NewMapOf[string, Factory]()

// Register makes a backend available under name.
func Register(name string, f Factory) error {
	if name == "" || f == nil {
		return errors.New("transfer: backend name and factory are required")
	}
	if _, loaded := registry.LoadOrStore(name, f); loaded {
		return fmt.Errorf("%w: %q", ErrDuplicateBackend, name)
	}

	return nil
}

// Open creates the backend registered under name.
func Open(name string, env Env) (Backend, error) {
	f, ok := registry.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}

	env, err := env.withDefaults()
	if err != nil {
		return nil, err
	}

	return f(env)
}

// Names returns the registered backend names in sorted order.
func Names() []string {
	names := make([]string, 0, registry.Size())
	registry.Range(func(name string, _ Factory) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)

	return names
}

func mustRegister(name string, f Factory) {
	if err := Register(name, f); err != nil {
		panic(err)
	}
}
