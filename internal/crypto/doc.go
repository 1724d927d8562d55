// Package crypto provides the password-based encryption envelope for stegvault.
//
// Encryption uses AES-256-GCM with:
//   - 32-byte key derived from password via PBKDF2
//   - 12-byte random nonce per encryption operation
//   - 16-byte authentication tag, no associated data
//
// Key derivation uses PBKDF2-HMAC-SHA256 with:
//   - 16-byte random salt per encryption (stored in the blob)
//   - 200,000 iterations by default
//
// Blob layout is salt || nonce || ciphertext || tag. The blob has no length
// field; the ciphertext length is the blob length minus Overhead.
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
//   - Call Encryptor.Destroy() when done with encryption operations
package crypto
