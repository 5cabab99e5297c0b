package iec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToHW(t *testing.T) {
	require := require.New(t)

	want := [16]HWMask{
		0x00, 0x04, 0x08, 0x0c,
		0x10, 0x14, 0x18, 0x1c,
		0x40, 0x44, 0x48, 0x4c,
		0x50, 0x54, 0x58, 0x5c,
	}

	for l := Line(0); l < 16; l++ {
		require.Equalf(want[l], ToHW(l), "logical mask %#02x", uint8(l))

		// Every entry is the OR of the single line entries.
		var composed HWMask
		for _, single := range []Line{Data, Clock, ATN, Reset} {
			if l&single != 0 {
				composed |= ToHW(single)
			}
		}
		require.Equal(composed, ToHW(l))
	}

	// SRQ and higher bits are not part of the table.
	require.Equal(HWMask(0), ToHW(SRQ))
	require.Equal(HWData|HWClock, ToHW(SRQ|Data|Clock))
	require.Equal(HWMask(0), ToHW(0xf0))
}

func TestLineString(t *testing.T) {
	require := require.New(t)

	require.Equal("none", Line(0).String())
	require.Equal("DATA", Data.String())
	require.Equal("DATA|CLOCK|ATN", (Data | Clock | ATN).String())
	require.Equal("RESET|SRQ", (Reset | SRQ).String())
}
