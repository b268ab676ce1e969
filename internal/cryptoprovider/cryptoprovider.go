// Package cryptoprovider defines the pluggable crypto contract the core
// treats payloads through. Payload secrecy is the application's
// concern; the core only calls Hash for content-hash computation and
// leaves Encrypt/Decrypt for applications layered on top of the mesh.
package cryptoprovider

import "errors"

// ErrAuthentication is returned by Decrypt when authentication fails
// (tampered ciphertext, wrong key, or mismatched associated data).
var ErrAuthentication = errors.New("cryptoprovider: authentication failed")

// Provider is the pluggable crypto contract.
type Provider interface {
	// Hash returns a 32-byte digest of data, used for Message.ContentHash.
	Hash(data []byte) [32]byte

	// Encrypt seals plaintext under key and nonce, authenticating ad as
	// associated data.
	Encrypt(key, nonce, plaintext, ad []byte) (ciphertext []byte, err error)

	// Decrypt opens ciphertext under key and nonce, verifying ad.
	// Returns ErrAuthentication on any authentication failure.
	Decrypt(key, nonce, ciphertext, ad []byte) (plaintext []byte, err error)
}
