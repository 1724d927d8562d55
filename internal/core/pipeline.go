package core

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/illarion/stegvault/internal/crypto"
	"github.com/illarion/stegvault/internal/stego"
)

var (
	ErrPasswordRequired = errors.New("password required")
	ErrWrongPassword    = errors.New("wrong password or corrupted data")
)

// HideResult describes what HideBuffer embedded
type HideResult struct {
	Mode         Mode
	PayloadBytes int
	StreamBytes  int
	NeededBits   uint64
	CapacityBits uint64
	StreamHash   string // hex sha256 of the embedded frame
}

// HideBuffer frames payload (sealed when password is non-empty, plain
// otherwise) and embeds it into buf. On a capacity error buf is left
// untouched. A nil env uses the default envelope.
func HideBuffer(buf *stego.Buffer, payload, password []byte, env *crypto.Envelope) (*HideResult, error) {
	if env == nil {
		env = crypto.NewEnvelope()
	}

	mode := ModePlain
	body := payload
	if len(password) > 0 {
		blob, err := env.Seal(payload, password)
		if err != nil {
			return nil, fmt.Errorf("failed to seal payload: %w", err)
		}
		mode = ModeSealed
		body = blob
	}

	stream := EncodeFrame(mode, body)
	if mode == ModeSealed {
		crypto.ClearBytes(body)
	}
	defer crypto.ClearBytes(stream)

	if err := stego.Embed(buf, stream); err != nil {
		return nil, err
	}

	return &HideResult{
		Mode:         mode,
		PayloadBytes: len(payload),
		StreamBytes:  len(stream),
		NeededBits:   stego.NeededBits(len(stream)),
		CapacityBits: buf.CapacityBits(),
		StreamHash:   StreamHash(stream),
	}, nil
}

// RevealOptions controls how an extracted stream is interpreted
type RevealOptions struct {
	// Legacy treats the whole stream as a bare envelope blob with no mode
	// byte, the layout written by older tools.
	Legacy bool
	// AutoLegacy also tries the stream as a Legacy blob when a password is
	// given and the framed read fails or decodes as plain. A legacy salt
	// can start with either mode byte, so a verified legacy open wins.
	// Without a password an unrecognized stream of blob size reports
	// ErrPasswordRequired.
	AutoLegacy bool
	Envelope   *crypto.Envelope
}

// RevealResult is the payload recovered from an image
type RevealResult struct {
	Mode        Mode
	Payload     []byte
	StreamBytes int
	StreamHash  string
}

// RevealBuffer extracts and decodes the hidden payload in buf. Sealed
// frames need a password; plain frames ignore it.
func RevealBuffer(buf *stego.Buffer, password []byte, opts RevealOptions) (*RevealResult, error) {
	env := opts.Envelope
	if env == nil {
		env = crypto.NewEnvelope()
	}

	stream, err := stego.Extract(buf)
	if err != nil {
		return nil, err
	}

	res, err := revealStream(stream, password, env, opts.Legacy)
	if !opts.AutoLegacy || opts.Legacy {
		return res, err
	}

	if len(password) == 0 {
		if errors.Is(err, ErrUnknownMode) && len(stream) >= crypto.Overhead {
			return nil, fmt.Errorf("%w: stream looks like a bare sealed blob", ErrPasswordRequired)
		}
		return res, err
	}

	if retryLegacy(res, err) {
		if legacy, lerr := revealStream(stream, password, env, true); lerr == nil {
			return legacy, nil
		}
	}
	return res, err
}

// retryLegacy reports whether a framed read may have misread a legacy blob
// whose first salt byte happened to look like a mode byte.
func retryLegacy(res *RevealResult, err error) bool {
	if err != nil {
		return errors.Is(err, ErrUnknownMode) || errors.Is(err, ErrWrongPassword)
	}
	return res.Mode == ModePlain && len(res.Payload) >= crypto.Overhead-FrameHeaderSize
}

func revealStream(stream, password []byte, env *crypto.Envelope, legacy bool) (*RevealResult, error) {
	var err error
	result := &RevealResult{StreamBytes: len(stream), StreamHash: StreamHash(stream)}

	mode, body := ModeSealed, stream
	if !legacy {
		mode, body, err = DecodeFrame(stream)
		if err != nil {
			return nil, err
		}
	}
	result.Mode = mode

	if mode == ModePlain {
		result.Payload = body
		return result, nil
	}

	if len(password) == 0 {
		return nil, ErrPasswordRequired
	}
	payload, err := env.Open(body, password)
	if err != nil {
		if errors.Is(err, crypto.ErrAuthFailed) {
			return nil, fmt.Errorf("%w: %w", ErrWrongPassword, err)
		}
		return nil, err
	}
	result.Payload = payload
	return result, nil
}

// StreamHash returns the hex sha256 used to fingerprint embedded streams
func StreamHash(stream []byte) string {
	sum := sha256.Sum256(stream)
	return hex.EncodeToString(sum[:])
}

// Room reports the largest payload a buffer can carry in each mode
type Room struct {
	CapacityBits uint64
	MaxStream    uint64
	MaxPlain     uint64
	MaxSealed    uint64
}

// RoomFor computes Room for buf
func RoomFor(buf *stego.Buffer) Room {
	r := Room{CapacityBits: buf.CapacityBits(), MaxStream: buf.MaxPayload()}
	if r.MaxStream >= FrameHeaderSize {
		r.MaxPlain = r.MaxStream - FrameHeaderSize
	}
	if r.MaxPlain >= crypto.Overhead {
		r.MaxSealed = r.MaxPlain - crypto.Overhead
	}
	return r
}
