package stego

import (
	"errors"
	"fmt"
	"math"
)

// HeaderBits is the width of the big-endian payload length that precedes
// the payload in the LSB stream.
const HeaderBits = 32

var (
	ErrCapacity      = errors.New("insufficient capacity")
	ErrInvalidBuffer = errors.New("invalid pixel buffer")
)

// Buffer is a height x width x channels array of 8-bit samples stored flat
// in row-major, channel-interleaved order: Pix[(y*Width+x)*Channels+c].
type Buffer struct {
	Height   int
	Width    int
	Channels int
	Pix      []byte
}

// NewBuffer allocates a zeroed buffer
func NewBuffer(height, width, channels int) *Buffer {
	return &Buffer{
		Height:   height,
		Width:    width,
		Channels: channels,
		Pix:      make([]byte, height*width*channels),
	}
}

// Validate checks that the dimensions are non-negative and agree with
// the length of Pix.
func (b *Buffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidBuffer)
	}
	if b.Height < 0 || b.Width < 0 || b.Channels < 0 {
		return fmt.Errorf("%w: negative dimension %dx%dx%d", ErrInvalidBuffer, b.Height, b.Width, b.Channels)
	}
	if want := b.Height * b.Width * b.Channels; len(b.Pix) != want {
		return fmt.Errorf("%w: %dx%dx%d needs %d samples, have %d",
			ErrInvalidBuffer, b.Height, b.Width, b.Channels, want, len(b.Pix))
	}
	return nil
}

// CapacityBits is the number of LSBs available, height*width*channels.
func (b *Buffer) CapacityBits() uint64 {
	return uint64(b.Height) * uint64(b.Width) * uint64(b.Channels)
}

// MaxPayload returns the largest payload length in bytes that Embed accepts
// for this buffer.
func (b *Buffer) MaxPayload() uint64 {
	capacity := b.CapacityBits()
	if capacity < HeaderBits {
		return 0
	}
	n := (capacity - HeaderBits) / 8
	if n > math.MaxUint32 {
		n = math.MaxUint32
	}
	return n
}

// Clone returns a deep copy
func (b *Buffer) Clone() *Buffer {
	c := *b
	c.Pix = append([]byte(nil), b.Pix...)
	return &c
}

// NeededBits returns the stream size in bits for a payload of n bytes.
func NeededBits(n int) uint64 {
	return HeaderBits + uint64(n)*8
}

// CapacityError reports a stream that does not fit in a buffer, either
// because the payload is too large to embed or because an extracted header
// declares more bits than the buffer holds.
type CapacityError struct {
	Needed    uint64
	Available uint64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: need %d bits, buffer holds %d", ErrCapacity, e.Needed, e.Available)
}

// Is lets errors.Is(err, ErrCapacity) match any CapacityError.
func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacity
}
