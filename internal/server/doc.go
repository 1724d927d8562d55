// Package server exposes hide and reveal over HTTP.
//
// POST /api/stego/encrypt takes a multipart form with an "image" file, a
// "password" field and either a "message" field or a "payload" file, and
// answers with the stego image as a PNG attachment. POST /api/stego/decrypt
// takes an "image" and an optional "password"; small text payloads come
// back as JSON {"message": ...}, anything else as an octet-stream download.
// Failures are JSON {"error", "code"} bodies.
package server
