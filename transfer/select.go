package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/arloliu/go-cbm/burst"
)

// SelectName returns the backend name for a drive model.
func SelectName(model burst.DeviceType) string {
	if model.SupportsBurst() {
		return SRQName
	}

	return SerialName
}

// Select identifies the drive once and opens the matching backend. The
// returned backend still needs Init.
func Select(ctx context.Context, env Env) (Backend, error) {
	if env.Identifier == nil {
		return nil, errors.New("transfer: select needs an identifier")
	}
	env, err := env.withDefaults()
	if err != nil {
		return nil, err
	}

	model, err := env.Identifier.Identify(ctx, env.Drive)
	if err != nil {
		return nil, fmt.Errorf("transfer: identify drive %d: %w", env.Drive, err)
	}

	// The backend must not identify again.
	env.Identifier = burst.StaticIdentifier(model)

	name := SelectName(model)
	b, err := Open(name, env)
	if err != nil {
		return nil, err
	}

	env.Logger.Info("transfer: backend selected", "drive", env.Drive, "model", model.String(), "backend", name)

	return b, nil
}
