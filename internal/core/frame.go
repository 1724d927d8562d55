package core

import (
	"errors"
	"fmt"
)

// Mode tags the body of a frame
type Mode byte

const (
	ModePlain  Mode = 0x00 // body is the payload
	ModeSealed Mode = 0x01 // body is a crypto envelope blob
)

// FrameHeaderSize is the number of bytes a frame adds in front of its body
const FrameHeaderSize = 1

var (
	ErrUnknownMode = errors.New("unknown frame mode")
	ErrEmptyFrame  = errors.New("no hidden data")
)

func (m Mode) String() string {
	switch m {
	case ModePlain:
		return "plain"
	case ModeSealed:
		return "sealed"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(m))
	}
}

// ParseMode is the inverse of Mode.String for the two known modes
func ParseMode(s string) (Mode, error) {
	switch s {
	case "plain":
		return ModePlain, nil
	case "sealed":
		return ModeSealed, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// EncodeFrame prefixes body with its mode byte
func EncodeFrame(mode Mode, body []byte) []byte {
	frame := make([]byte, FrameHeaderSize+len(body))
	frame[0] = byte(mode)
	copy(frame[FrameHeaderSize:], body)
	return frame
}

// DecodeFrame splits a stream into mode and body. The body aliases stream.
func DecodeFrame(stream []byte) (Mode, []byte, error) {
	if len(stream) < FrameHeaderSize {
		return 0, nil, ErrEmptyFrame
	}
	mode := Mode(stream[0])
	switch mode {
	case ModePlain, ModeSealed:
		return mode, stream[FrameHeaderSize:], nil
	default:
		return mode, nil, fmt.Errorf("%w: 0x%02x", ErrUnknownMode, stream[0])
	}
}
