// Package crypto is the envelope cipher for location payloads.
//
// A key-encryption key is derived from a passphrase and a fresh random salt,
// then used directly to seal the payload with an AEAD. The result is kept as
// four separate fields (salt, nonce, tag, ciphertext) all the way to the wire.
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	KeySize   = 32
	NonceSize = 12
	TagSize   = 16
	SaltSize  = 16
)

var (
	ErrInvalidKey       = errors.New("invalid key size")
	ErrAuthentication   = errors.New("authentication failed: wrong passphrase or tampered payload")
	ErrRandomness       = errors.New("secure random source unavailable")
	ErrMalformedPayload = errors.New("malformed encrypted payload")
)

// Key represents a 32-byte symmetric key
type Key [KeySize]byte

// randReader is the randomness source for salts and nonces
var randReader io.Reader = rand.Reader

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandomness, err)
	}
	return b, nil
}

// GenerateSalt creates a random salt for key derivation
func GenerateSalt() ([]byte, error) {
	return randomBytes(SaltSize)
}

// GenerateKey creates a new random key
func GenerateKey() (Key, error) {
	var k Key
	b, err := randomBytes(KeySize)
	if err != nil {
		return k, err
	}
	copy(k[:], b)
	return k, nil
}
