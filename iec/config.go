package iec

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-cbm/logger"
)

// Default limits of the bounded waits.
const (
	DefaultBusFreeTimeout = 1500 * time.Millisecond // wait for a drive to answer after reset
	DefaultReadTimeout    = 1 * time.Second         // wait for a talker to release CLOCK
	DefaultSRQPollLimit   = 1 << 16                 // polls per SRQ edge in burst transfers
)

// Limits accepted by the options.
const (
	MinBusFreeTimeout = 100 * time.Millisecond
	MaxBusFreeTimeout = 30 * time.Second

	MinReadTimeout = 20 * time.Millisecond
	MaxReadTimeout = 60 * time.Second

	MinSRQPollLimit = 64
)

// Config holds the tunables of an Engine.
type Config struct {
	busFreeTimeout time.Duration
	readTimeout    time.Duration
	srqPollLimit   int

	logger logger.Logger
}

// NewConfig creates an engine configuration. opts are applied in order; see
// the With* functions.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		busFreeTimeout: DefaultBusFreeTimeout,
		readTimeout:    DefaultReadTimeout,
		srqPollLimit:   DefaultSRQPollLimit,
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// BusFreeTimeout returns how long Reset waits for the bus to become free.
func (cfg *Config) BusFreeTimeout() time.Duration { return cfg.busFreeTimeout }

// ReadTimeout returns how long a read waits for the talker to get ready.
func (cfg *Config) ReadTimeout() time.Duration { return cfg.readTimeout }

// SRQPollLimit returns the number of polls an SRQ edge may take.
func (cfg *Config) SRQPollLimit() int { return cfg.srqPollLimit }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// readPolls is the number of 20 us polls for the talker.
func (cfg *Config) readPolls() int {
	return int(cfg.readTimeout / readPollDelay)
}

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithBusFreeTimeout sets how long Reset waits for a drive to answer.
func WithBusFreeTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinBusFreeTimeout || d > MaxBusFreeTimeout {
			return fmt.Errorf("iec: bus free timeout %v out of range [%v, %v]", d, MinBusFreeTimeout, MaxBusFreeTimeout)
		}
		cfg.busFreeTimeout = d

		return nil
	})
}

// WithReadTimeout sets how long a read waits for the talker to release CLOCK.
func WithReadTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinReadTimeout || d > MaxReadTimeout {
			return fmt.Errorf("iec: read timeout %v out of range [%v, %v]", d, MinReadTimeout, MaxReadTimeout)
		}
		cfg.readTimeout = d

		return nil
	})
}

// WithSRQPollLimit sets how many polls the burst primitive spends waiting for
// a single SRQ edge before giving up.
func WithSRQPollLimit(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < MinSRQPollLimit {
			return fmt.Errorf("iec: SRQ poll limit %d below minimum %d", n, MinSRQPollLimit)
		}
		cfg.srqPollLimit = n

		return nil
	})
}

// WithLogger sets the logger of the engine.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("iec: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
