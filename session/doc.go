// Package session persists provider sessions in Redis, one per device slot,
// using a compact versioned binary encoding.
//
// # Binary encoding
//
// Schema v2 is current. v1 blobs (no email, no token type) are decoded and
// rewritten as v2 on the next Load, keeping their remaining TTL.
//
// # Revocation
//
// A sign-out on one device publishes the identity id on a Redis channel so
// that other devices holding the same identity can sign out too.
//
// # What this package must NOT do
//
//   - Import sessionctl or any provider package (no upward imports).
//   - Interpret or verify token contents.
package session
