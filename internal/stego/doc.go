// Package stego hides a length-prefixed byte stream in the least-significant
// bits of a raw pixel buffer.
//
// The stream is a 32-bit big-endian payload length followed by the payload.
// Bit i of the stream lives in bit 0 of Pix[i], where Pix is the buffer
// flattened row by row, pixel by pixel, channel by channel. Bytes are written
// most significant bit first. A buffer of H*W*C samples therefore carries at
// most (H*W*C-32)/8 payload bytes.
//
// The codec is a fixed-capacity channel with no steganalysis resistance and
// no content validation: Extract returns whatever the bits say as long as
// the declared length fits in the buffer.
package stego
