// Package storage provides the BBolt ledger for stegvault.
//
// The ledger records every image written by hide so that status can later
// tell whether the image is still on disk and whether its hidden stream
// survived. It uses two buckets:
//   - config: version, timestamps, ledger ID, KDF iterations
//   - index: image path -> JSON Entry (sizes, mode, image and stream hashes)
//
// Nothing secret is stored. Payloads and passwords never reach the ledger.
package storage
