package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Suite names an AEAD construction. Every suite uses a 12-byte nonce and a
// 16-byte tag so the wire format does not change between them.
type Suite string

const (
	SuiteAESGCM           Suite = "aes-256-gcm"
	SuiteChaCha20Poly1305 Suite = "chacha20-poly1305"
)

// ParseSuite validates a suite name from config
func ParseSuite(s string) (Suite, error) {
	switch Suite(s) {
	case SuiteAESGCM, "":
		return SuiteAESGCM, nil
	case SuiteChaCha20Poly1305:
		return SuiteChaCha20Poly1305, nil
	default:
		return "", fmt.Errorf("unsupported cipher suite: %q", s)
	}
}

func (s Suite) newAEAD(key Key) (cipher.AEAD, error) {
	switch s {
	case SuiteAESGCM, "":
		block, err := aes.NewCipher(key[:])
		if err != nil {
			return nil, fmt.Errorf("failed to create block cipher: %w", err)
		}
		return cipher.NewGCM(block)
	case SuiteChaCha20Poly1305:
		return chacha20poly1305.New(key[:])
	default:
		return nil, fmt.Errorf("unsupported cipher suite: %q", s)
	}
}

// Sealed is the output of one encryption call
type Sealed struct {
	Nonce      []byte
	Tag        []byte
	Ciphertext []byte
}

// Encrypt seals plaintext under key with a fresh random nonce and no
// associated data. Ciphertext has the same length as plaintext.
func (s Suite) Encrypt(key Key, plaintext []byte) (Sealed, error) {
	aead, err := s.newAEAD(key)
	if err != nil {
		return Sealed{}, err
	}

	nonce, err := randomBytes(aead.NonceSize())
	if err != nil {
		return Sealed{}, err
	}

	out := aead.Seal(nil, nonce, plaintext, nil)
	split := len(out) - aead.Overhead()

	return Sealed{
		Nonce:      nonce,
		Ciphertext: out[:split:split],
		Tag:        out[split:],
	}, nil
}

// Decrypt verifies tag and returns the plaintext. A tag mismatch is always
// ErrAuthentication; unverified plaintext is never returned.
func (s Suite) Decrypt(key Key, nonce, tag, ciphertext []byte) ([]byte, error) {
	aead, err := s.newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce is %d bytes, want %d", ErrMalformedPayload, len(nonce), aead.NonceSize())
	}
	if len(tag) != aead.Overhead() {
		return nil, fmt.Errorf("%w: tag is %d bytes, want %d", ErrMalformedPayload, len(tag), aead.Overhead())
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// EncryptWithKey seals plaintext with AES-256-GCM
func EncryptWithKey(key Key, plaintext []byte) (Sealed, error) {
	return SuiteAESGCM.Encrypt(key, plaintext)
}

// DecryptWithKey opens an AES-256-GCM sealed payload
func DecryptWithKey(key Key, nonce, tag, ciphertext []byte) ([]byte, error) {
	return SuiteAESGCM.Decrypt(key, nonce, tag, ciphertext)
}
