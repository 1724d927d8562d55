package crypto

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Envelope seals payloads into self-describing blobs laid out as
//
//	salt(16) || nonce(12) || ciphertext(N) || tag(16)
//
// The blob carries no length field and no KDF parameters, so the iteration
// count used to open a blob must match the one used to seal it.
type Envelope struct {
	iterations int
	rand       io.Reader
}

// Option configures an Envelope
type Option func(*Envelope)

// WithIterations overrides the PBKDF2 iteration count. Non-positive values
// are ignored.
func WithIterations(n int) Option {
	return func(e *Envelope) {
		if n > 0 {
			e.iterations = n
		}
	}
}

// WithRand replaces the source of salts and nonces. It must be a
// cryptographically secure generator outside of tests.
func WithRand(r io.Reader) Option {
	return func(e *Envelope) {
		if r != nil {
			e.rand = r
		}
	}
}

// NewEnvelope returns an Envelope using DefaultIters and crypto/rand.
func NewEnvelope(opts ...Option) *Envelope {
	e := &Envelope{
		iterations: DefaultIters,
		rand:       rand.Reader,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Iterations returns the PBKDF2 iteration count in use.
func (e *Envelope) Iterations() int {
	return e.iterations
}

// Seal encrypts plaintext under a key derived from password and a fresh
// salt. Every call draws a new salt and nonce, so equal inputs produce
// different blobs.
func (e *Envelope) Seal(plaintext, password []byte) ([]byte, error) {
	kdf, err := NewKDF(e.rand, e.iterations)
	if err != nil {
		return nil, err
	}

	nonce, err := GenerateRandom(e.rand, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	enc := NewEncryptor(kdf.DeriveKey(password))
	defer enc.Destroy()

	sealed, err := enc.Seal(nonce, plaintext)
	if err != nil {
		return nil, err
	}

	blob := make([]byte, 0, HeaderSize+len(sealed))
	blob = append(blob, kdf.Salt...)
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)
	return blob, nil
}

// Open reverses Seal. Blobs shorter than HeaderSize fail with
// ErrInvalidCiphertext; a tag that does not verify fails with ErrAuthFailed.
func (e *Envelope) Open(blob, password []byte) ([]byte, error) {
	if len(blob) < HeaderSize {
		return nil, fmt.Errorf("%w: blob is %d bytes, need at least %d", ErrInvalidCiphertext, len(blob), HeaderSize)
	}

	salt := blob[:SaltSize]
	nonce := blob[SaltSize:HeaderSize]
	sealed := blob[HeaderSize:]

	enc := NewEncryptor(DeriveKey(password, salt, e.iterations))
	defer enc.Destroy()

	return enc.Open(nonce, sealed)
}

var defaultEnvelope = NewEnvelope()

// Seal encrypts plaintext with the default envelope settings
func Seal(plaintext, password []byte) ([]byte, error) {
	return defaultEnvelope.Seal(plaintext, password)
}

// Open decrypts a blob with the default envelope settings
func Open(blob, password []byte) ([]byte, error) {
	return defaultEnvelope.Open(blob, password)
}
