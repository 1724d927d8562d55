// Package core ties the crypto envelope, the LSB codec and the image
// adapter into the hide and reveal pipeline.
//
// Streams embedded by stegvault start with a one-byte frame mode:
//   - 0x00 plain: the rest is the payload
//   - 0x01 sealed: the rest is salt || nonce || ciphertext || tag
//
// Images written by older tools carry a bare envelope blob; RevealOptions
// Legacy reads those.
//
// A Stegvault handle adds the workspace features: a ledger of produced
// images with status checks, diffs against local files, and conflict
// handling when a revealed payload would replace an existing file (keep
// local, overwrite, keep both as .from-image, or edit a merged copy).
package core
