package burst

import "errors"

var (
	// ErrUnsupportedModel indicates the drive cannot run the burst protocol,
	// or its model is not known.
	ErrUnsupportedModel = errors.New("burst: unsupported drive model")

	// ErrImageTooLarge indicates a program image of 256 bytes or more.
	ErrImageTooLarge = errors.New("burst: program image too large")

	// ErrUploadMismatch indicates the drive accepted fewer program bytes
	// than were sent.
	ErrUploadMismatch = errors.New("burst: program upload incomplete")

	// ErrNotInitialized indicates I/O before a successful Init.
	ErrNotInitialized = errors.New("burst: engine not initialized")

	// ErrBlockRange indicates a block start offset or buffer that does not
	// fit into a 256 byte block.
	ErrBlockRange = errors.New("burst: block range invalid")

	// ErrAborted indicates the settle wait was cancelled.
	ErrAborted = errors.New("burst: aborted")
)
