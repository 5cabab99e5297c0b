package iec

import (
	"context"
	"fmt"
)

// Direction of a byte channel transfer as seen from the bus.
type Direction uint8

const (
	// DirOut moves bytes from the controller onto the bus.
	DirOut Direction = iota
	// DirIn moves bytes received from the bus to the controller.
	DirIn
)

func (d Direction) String() string {
	if d == DirIn {
		return "in"
	}

	return "out"
}

// Channel is the byte stream between the engine and the far-side controller.
//
// The engine calls InitIO before a transfer and IODone after it, then
// RecvByte once per byte it puts on the bus and SendByte once per byte it
// receives. A non-nil error from either is treated as an abort request.
type Channel interface {
	InitIO(length int, dir Direction)
	IODone()
	SendByte(b byte) error
	RecvByte() (byte, error)
}

// BufferChannel is an in-memory Channel.
//
// Bytes to put on the bus are taken from the payload given to
// NewBufferChannel, received bytes are collected and returned by Received.
type BufferChannel struct {
	payload  []byte
	pos      int
	received []byte
	limit    int

	length int
	dir    Direction
	active bool
}

var _ Channel = (*BufferChannel)(nil)

// NewBufferChannel creates a channel serving payload to the bus.
func NewBufferChannel(payload []byte) *BufferChannel {
	return &BufferChannel{payload: payload, limit: -1}
}

// WithReceiveLimit makes SendByte fail once n bytes were collected, emulating
// a controller that stops reading.
func (c *BufferChannel) WithReceiveLimit(n int) *BufferChannel {
	c.limit = n
	return c
}

func (c *BufferChannel) InitIO(length int, dir Direction) {
	c.length = length
	c.dir = dir
	c.active = true
}

func (c *BufferChannel) IODone() {
	c.active = false
}

func (c *BufferChannel) SendByte(b byte) error {
	if c.limit >= 0 && len(c.received) >= c.limit {
		return fmt.Errorf("%w: receive limit %d reached", ErrChannelClosed, c.limit)
	}
	c.received = append(c.received, b)

	return nil
}

func (c *BufferChannel) RecvByte() (byte, error) {
	if c.pos >= len(c.payload) {
		return 0, fmt.Errorf("%w: payload exhausted after %d bytes", ErrChannelClosed, c.pos)
	}
	b := c.payload[c.pos]
	c.pos++

	return b, nil
}

// Received returns the bytes delivered by the bus so far.
func (c *BufferChannel) Received() []byte {
	return c.received
}

// Consumed returns how many payload bytes were handed to the bus.
func (c *BufferChannel) Consumed() int {
	return c.pos
}

// Active reports whether a transfer is between InitIO and IODone.
func (c *BufferChannel) Active() bool {
	return c.active
}

// Length returns the length announced by the last InitIO.
func (c *BufferChannel) Length() int {
	return c.length
}

// StreamChannel is a Channel backed by Go channels, for a controller that
// runs in another goroutine. Blocking sends and receives give up when ctx is
// cancelled.
type StreamChannel struct {
	ctx context.Context
	in  <-chan byte
	out chan<- byte
}

var _ Channel = (*StreamChannel)(nil)

// NewStreamChannel creates a channel reading bus payload from in and
// delivering received bytes to out.
func NewStreamChannel(ctx context.Context, in <-chan byte, out chan<- byte) *StreamChannel {
	return &StreamChannel{ctx: ctx, in: in, out: out}
}

func (c *StreamChannel) InitIO(int, Direction) {}

func (c *StreamChannel) IODone() {}

func (c *StreamChannel) SendByte(b byte) error {
	select {
	case c.out <- b:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

func (c *StreamChannel) RecvByte() (byte, error) {
	select {
	case b, ok := <-c.in:
		if !ok {
			return 0, ErrChannelClosed
		}
		return b, nil
	case <-c.ctx.Done():
		return 0, c.ctx.Err()
	}
}
