package iec

import (
	"testing"
	"time"

	"github.com/arloliu/go-cbm/logger"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	require := require.New(t)

	t.Run("defaults", func(t *testing.T) {
		cfg, err := NewConfig()
		require.NoError(err)
		require.Equal(DefaultBusFreeTimeout, cfg.BusFreeTimeout())
		require.Equal(DefaultReadTimeout, cfg.ReadTimeout())
		require.Equal(DefaultSRQPollLimit, cfg.SRQPollLimit())
		require.NotNil(cfg.GetLogger())

		// 1 s in 20 us polls
		require.Equal(50000, cfg.readPolls())
	})

	t.Run("options", func(t *testing.T) {
		l := logger.Nop()
		cfg, err := NewConfig(
			WithBusFreeTimeout(200*time.Millisecond),
			WithReadTimeout(100*time.Millisecond),
			WithSRQPollLimit(128),
			WithLogger(l),
		)
		require.NoError(err)
		require.Equal(200*time.Millisecond, cfg.BusFreeTimeout())
		require.Equal(100*time.Millisecond, cfg.ReadTimeout())
		require.Equal(128, cfg.SRQPollLimit())
		require.Equal(l, cfg.GetLogger())
		require.Equal(5000, cfg.readPolls())
	})

	t.Run("out of range", func(t *testing.T) {
		for _, opt := range []Option{
			WithBusFreeTimeout(MinBusFreeTimeout - 1),
			WithBusFreeTimeout(MaxBusFreeTimeout + 1),
			WithReadTimeout(MinReadTimeout - 1),
			WithReadTimeout(MaxReadTimeout + 1),
			WithSRQPollLimit(MinSRQPollLimit - 1),
			WithLogger(nil),
		} {
			cfg, err := NewConfig(opt)
			require.Error(err)
			require.Nil(cfg)
		}
	})
}
