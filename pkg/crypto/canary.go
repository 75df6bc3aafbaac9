package crypto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const CanaryFileName = "passphrase.check.json"

var (
	ErrPassphraseMismatch = errors.New("passphrase does not match the one this data directory was created with")
	ErrCipherMismatch     = errors.New("key derivation or cipher suite differs from the one this data directory was created with")
)

var canaryPlaintext = []byte("locvault-passphrase-canary")

// Canary detects a changed passphrase or cipher configuration before it makes
// stored payloads undecryptable. The first Verify seals a known value; later
// calls must open it with the same passphrase, KDF and suite.
type Canary struct {
	dir    string
	cipher *Cipher
	mu     sync.Mutex
}

// canaryFile is the JSON structure of the canary file.
// The KDF and suite are those every stored payload was sealed with.
type canaryFile struct {
	KDF     KDFParams      `json:"kdf"`
	Suite   Suite          `json:"suite"`
	EncData EncodedPayload `json:"enc_data"`
}

// NewCanary creates a canary stored at <dir>/passphrase.check.json
func NewCanary(dir string, c *Cipher) *Canary {
	if c == nil {
		c = DefaultCipher()
	}
	return &Canary{dir: dir, cipher: c}
}

func (c *Canary) path() string {
	return filepath.Join(c.dir, CanaryFileName)
}

// Verify checks passphrase against the canary, creating the canary on first
// use. It reports whether the canary was created by this call.
func (c *Canary) Verify(passphrase []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path())
	if os.IsNotExist(err) {
		return true, c.create(passphrase)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read canary: %w", err)
	}

	var cf canaryFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return false, fmt.Errorf("failed to parse canary: %w", err)
	}
	payload, err := cf.EncData.Decode()
	if err != nil {
		return false, err
	}

	plaintext, err := NewCipher(cf.KDF, cf.Suite).Open(passphrase, payload)
	if errors.Is(err, ErrAuthentication) {
		return false, ErrPassphraseMismatch
	}
	if err != nil {
		return false, err
	}
	if !bytes.Equal(plaintext, canaryPlaintext) {
		return false, ErrPassphraseMismatch
	}

	if cf.KDF != c.cipher.KDF || cf.Suite != c.cipher.Suite {
		return false, fmt.Errorf("%w: created with %s/%s, configured %s/%s", ErrCipherMismatch,
			cf.KDF.Method, cf.Suite, c.cipher.KDF.Method, c.cipher.Suite)
	}
	return false, nil
}

func (c *Canary) create(passphrase []byte) error {
	payload, err := c.cipher.Seal(passphrase, canaryPlaintext)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(canaryFile{
		KDF:     c.cipher.KDF,
		Suite:   c.cipher.Suite,
		EncData: payload.Encode(),
	}, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(c.dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(c.path(), data, 0600)
}
