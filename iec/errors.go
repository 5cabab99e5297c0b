package iec

import "errors"

// Sentinel errors of the bus engine. Returned errors wrap one of these with
// context, test them with errors.Is.
var (
	// ErrTimeout indicates a bounded wait did not see the expected line
	// transition.
	ErrTimeout = errors.New("iec: timeout waiting for line transition")

	// ErrNoDevice indicates no peripheral answered where one was expected:
	// nobody grabbed DATA at the start of a write, a listener vanished
	// between bytes, or the bus never became free after a reset.
	ErrNoDevice = errors.New("iec: no device present")

	// ErrAborted indicates the abort predicate or the context cancelled the
	// operation, or the byte channel signalled an abort.
	ErrAborted = errors.New("iec: operation aborted")

	// ErrNAK indicates the listener did not acknowledge a byte in time.
	ErrNAK = errors.New("iec: byte not acknowledged")

	// ErrChannelClosed indicates the byte channel has no more data or was
	// closed by the controller side.
	ErrChannelClosed = errors.New("iec: byte channel closed")

	// ErrShortWrite indicates a bus command was only partially transferred.
	ErrShortWrite = errors.New("iec: short write")
)
