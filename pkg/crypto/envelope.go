package crypto

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// EncryptedPayload is everything one sealing call produced.
// Salt is not secret; all four fields are needed to decrypt.
type EncryptedPayload struct {
	Salt       []byte
	Nonce      []byte
	Tag        []byte
	Ciphertext []byte
}

// EncodedPayload is the wire form: four independent hex fields
type EncodedPayload struct {
	SaltHex       string `json:"salt_hex"`
	NonceHex      string `json:"nonce_hex"`
	TagHex        string `json:"tag_hex"`
	CiphertextHex string `json:"ciphertext_hex"`
}

// Envelope wraps the encoded payload the way it is stored and served
type Envelope struct {
	EncData EncodedPayload `json:"enc_data"`
}

// Encode hex-encodes each field independently
func (p *EncryptedPayload) Encode() EncodedPayload {
	return EncodedPayload{
		SaltHex:       hex.EncodeToString(p.Salt),
		NonceHex:      hex.EncodeToString(p.Nonce),
		TagHex:        hex.EncodeToString(p.Tag),
		CiphertextHex: hex.EncodeToString(p.Ciphertext),
	}
}

// Envelope returns the payload wrapped under "enc_data"
func (p *EncryptedPayload) Envelope() Envelope {
	return Envelope{EncData: p.Encode()}
}

// Decode parses the four hex fields. Salt, nonce and tag must be present;
// ciphertext may be empty for an empty plaintext.
func (e EncodedPayload) Decode() (*EncryptedPayload, error) {
	fields := []struct {
		name     string
		value    string
		required bool
	}{
		{"salt_hex", e.SaltHex, true},
		{"nonce_hex", e.NonceHex, true},
		{"tag_hex", e.TagHex, true},
		{"ciphertext_hex", e.CiphertextHex, false},
	}

	decoded := make([][]byte, len(fields))
	for i, f := range fields {
		if f.required && f.value == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformedPayload, f.name)
		}
		b, err := hex.DecodeString(f.value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, f.name, err)
		}
		decoded[i] = b
	}

	return &EncryptedPayload{
		Salt:       decoded[0],
		Nonce:      decoded[1],
		Tag:        decoded[2],
		Ciphertext: decoded[3],
	}, nil
}

// ParseEnvelope reads a stored document. Both {"enc_data": {...}} and the
// bare field object are accepted.
func ParseEnvelope(data []byte) (*EncryptedPayload, error) {
	var doc struct {
		EncData *EncodedPayload `json:"enc_data"`
		EncodedPayload
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if doc.EncData != nil {
		return doc.EncData.Decode()
	}
	return doc.EncodedPayload.Decode()
}

// Cipher seals and opens payloads with a passphrase.
// It holds configuration only and is safe for concurrent use.
type Cipher struct {
	KDF   KDFParams
	Suite Suite
}

// NewCipher creates a cipher with the given KDF and AEAD suite
func NewCipher(kdf KDFParams, suite Suite) *Cipher {
	return &Cipher{KDF: kdf, Suite: suite}
}

// DefaultCipher is Argon2id + AES-256-GCM
func DefaultCipher() *Cipher {
	return NewCipher(DefaultKDFParams(), SuiteAESGCM)
}

// Seal generates a fresh salt, derives the key and encrypts plaintext.
// On error nothing is returned, so no partial payload can be stored.
func (c *Cipher) Seal(passphrase, plaintext []byte) (*EncryptedPayload, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}

	key, err := DeriveKEK(passphrase, salt, c.KDF)
	if err != nil {
		return nil, err
	}

	sealed, err := c.Suite.Encrypt(key, plaintext)
	if err != nil {
		return nil, err
	}

	return &EncryptedPayload{
		Salt:       salt,
		Nonce:      sealed.Nonce,
		Tag:        sealed.Tag,
		Ciphertext: sealed.Ciphertext,
	}, nil
}

// Open derives the key from passphrase and the stored salt and decrypts
func (c *Cipher) Open(passphrase []byte, p *EncryptedPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrMalformedPayload)
	}

	key, err := DeriveKEK(passphrase, p.Salt, c.KDF)
	if err != nil {
		return nil, err
	}

	return c.Suite.Decrypt(key, p.Nonce, p.Tag, p.Ciphertext)
}
