package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// KDFMethod names a passphrase key-derivation function
type KDFMethod string

const (
	KDFArgon2id KDFMethod = "argon2id"
	KDFPBKDF2   KDFMethod = "pbkdf2"
)

// Defaults follow the OWASP recommendations for each method
const (
	DefaultArgon2Time       = 3
	DefaultArgon2Memory     = 64 * 1024 // KiB
	DefaultArgon2Threads    = 2
	DefaultPBKDF2Iterations = 100000
)

// KDFParams selects and tunes the key-derivation function
type KDFParams struct {
	Method     KDFMethod `json:"method"`
	Time       uint32    `json:"time,omitempty"`
	Memory     uint32    `json:"mem,omitempty"`
	Threads    uint8     `json:"threads,omitempty"`
	Iterations int       `json:"iterations,omitempty"`
}

// DefaultKDFParams returns Argon2id with the default cost
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Method:  KDFArgon2id,
		Time:    DefaultArgon2Time,
		Memory:  DefaultArgon2Memory,
		Threads: DefaultArgon2Threads,
	}
}

// PBKDF2Params returns PBKDF2-HMAC-SHA256 with the default iteration count
func PBKDF2Params() KDFParams {
	return KDFParams{
		Method:     KDFPBKDF2,
		Iterations: DefaultPBKDF2Iterations,
	}
}

// ParseKDFMethod maps a config string to its default params
func ParseKDFMethod(s string) (KDFParams, error) {
	switch KDFMethod(s) {
	case KDFArgon2id, "":
		return DefaultKDFParams(), nil
	case KDFPBKDF2:
		return PBKDF2Params(), nil
	default:
		return KDFParams{}, fmt.Errorf("unsupported key derivation method: %q", s)
	}
}

// DeriveKEK derives a key-encryption key from a passphrase and salt.
// The same (passphrase, salt, params) always yields the same key.
func DeriveKEK(passphrase, salt []byte, params KDFParams) (Key, error) {
	var k Key
	if len(salt) == 0 {
		return k, fmt.Errorf("%w: empty salt", ErrMalformedPayload)
	}

	var dk []byte
	switch params.Method {
	case KDFArgon2id:
		if params.Time == 0 || params.Memory == 0 || params.Threads == 0 {
			return k, fmt.Errorf("argon2id parameters must be non-zero")
		}
		dk = argon2.IDKey(passphrase, salt, params.Time, params.Memory, params.Threads, KeySize)
	case KDFPBKDF2:
		if params.Iterations <= 0 {
			return k, fmt.Errorf("pbkdf2 iterations must be positive")
		}
		dk = pbkdf2.Key(passphrase, salt, params.Iterations, KeySize, sha256.New)
	default:
		return k, fmt.Errorf("unsupported key derivation method: %q", params.Method)
	}

	copy(k[:], dk)
	return k, nil
}
