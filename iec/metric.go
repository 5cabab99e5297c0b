package iec

import (
	"errors"
	"sync/atomic"
)

// Metrics contains atomic counters of an Engine.
// They can be used as the value of a prometheus CounterFunc.
type Metrics struct {
	// BytesWritten counts bytes acknowledged by a listener.
	BytesWritten atomic.Uint64
	// BytesRead counts bytes received and delivered to the channel.
	BytesRead atomic.Uint64
	// EOICount counts EOI conditions seen while reading.
	EOICount atomic.Uint64
	// NAKCount counts bytes that were not acknowledged.
	NAKCount atomic.Uint64
	// TimeoutCount counts bounded waits that expired.
	TimeoutCount atomic.Uint64
	// NoDeviceCount counts operations that found no peripheral.
	NoDeviceCount atomic.Uint64
	// AbortCount counts cancelled operations.
	AbortCount atomic.Uint64
	// ResetCount counts bus resets.
	ResetCount atomic.Uint64
}

func (m *Metrics) incBytesWritten() {
	m.BytesWritten.Add(1)
}

func (m *Metrics) incBytesRead() {
	m.BytesRead.Add(1)
}

func (m *Metrics) incEOICount() {
	m.EOICount.Add(1)
}

func (m *Metrics) incResetCount() {
	m.ResetCount.Add(1)
}

// countError files err under its category.
func (m *Metrics) countError(err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrAborted):
		m.AbortCount.Add(1)
	case errors.Is(err, ErrNAK):
		m.NAKCount.Add(1)
	case errors.Is(err, ErrNoDevice):
		m.NoDeviceCount.Add(1)
	case errors.Is(err, ErrTimeout):
		m.TimeoutCount.Add(1)
	}
}
