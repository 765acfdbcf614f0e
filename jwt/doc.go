// Package jwt reads the access tokens issued by the identity provider.
//
// A [Manager] verifies tokens when the provider's key is known (HS256 shared
// secret or Ed25519 public keys, optionally selected by kid). Clients that do
// not hold the key use [ParseUnverified] to learn the subject and expiry.
package jwt
