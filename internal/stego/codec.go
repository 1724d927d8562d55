package stego

import (
	"encoding/binary"
	"math"
)

// Embed writes len(payload) as a 32-bit big-endian header followed by the
// payload into the least-significant bits of buf.Pix, most significant bit
// of each byte first. Only bit 0 of the first NeededBits(len(payload))
// samples can change; the rest of the buffer is not touched.
//
// The capacity check happens before any write, so on error buf is left
// exactly as it was.
func Embed(buf *Buffer, payload []byte) error {
	if err := buf.Validate(); err != nil {
		return err
	}

	capacity := buf.CapacityBits()
	if uint64(len(payload)) > math.MaxUint32 {
		return &CapacityError{Needed: NeededBits(len(payload)), Available: capacity}
	}
	needed := NeededBits(len(payload))
	if needed > capacity {
		return &CapacityError{Needed: needed, Available: capacity}
	}

	var header [HeaderBits / 8]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	writeBits(buf.Pix[:HeaderBits], header[:])
	writeBits(buf.Pix[HeaderBits:needed], payload)
	return nil
}

// Extract reads the header and payload written by Embed. It fails with a
// CapacityError when the buffer is too small for a header or when the
// declared length does not fit in the buffer. The payload is returned
// verbatim with no further validation.
func Extract(buf *Buffer) ([]byte, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}

	capacity := buf.CapacityBits()
	if capacity < HeaderBits {
		return nil, &CapacityError{Needed: HeaderBits, Available: capacity}
	}

	length := binary.BigEndian.Uint32(readBits(buf.Pix[:HeaderBits], HeaderBits/8))
	needed := HeaderBits + uint64(length)*8
	if needed > capacity {
		return nil, &CapacityError{Needed: needed, Available: capacity}
	}

	return readBits(buf.Pix[HeaderBits:needed], int(length)), nil
}

// writeBits stores the bits of src, MSB first, in the LSBs of dst.
// len(dst) must be 8*len(src).
func writeBits(dst, src []byte) {
	for i, b := range src {
		base := i * 8
		for j := 0; j < 8; j++ {
			bit := (b >> (7 - j)) & 1
			dst[base+j] = dst[base+j]&0xFE | bit
		}
	}
}

// readBits packs the LSBs of src, MSB first, into n bytes.
func readBits(src []byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		var v byte
		for _, s := range src[i*8 : i*8+8] {
			v = v<<1 | s&1
		}
		out[i] = v
	}
	return out
}
