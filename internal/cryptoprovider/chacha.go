package cryptoprovider

import (
	"crypto/sha256"

	"golang.org/x/crypto/chacha20poly1305"
)

// ChaCha20Poly1305 is the default Provider implementation: SHA-256 for
// content hashing and ChaCha20-Poly1305 AEAD for encryption, behind a
// pluggable payload-crypto seam.
type ChaCha20Poly1305 struct{}

// NewChaCha20Poly1305 builds the default Provider.
func NewChaCha20Poly1305() ChaCha20Poly1305 {
	return ChaCha20Poly1305{}
}

// Hash implements Provider.
func (ChaCha20Poly1305) Hash(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// Encrypt implements Provider. key must be 32 bytes, nonce 12 bytes
// (chacha20poly1305.KeySize / NonceSize).
func (ChaCha20Poly1305) Encrypt(key, nonce, plaintext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, ad), nil
}

// Decrypt implements Provider.
func (ChaCha20Poly1305) Decrypt(key, nonce, ciphertext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
