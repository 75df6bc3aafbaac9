package storage

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/amaydixit11/locvault/pkg/crypto"
)

const (
	filePrefix = "places_output_"
	fileSuffix = ".enc.json"

	encodedPrefix = "x"
)

var safeOwner = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FileStore writes one {"enc_data": {...}} document per owner into a directory
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates a file store at the given directory
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create payload directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file that holds owner's payload.
// Owners that are not plain identifiers are hex-encoded behind an "x" so they
// cannot escape dir. Plain owners starting with "x" are encoded too, which
// keeps the two forms from colliding.
func (s *FileStore) Path(owner string) string {
	name := owner
	if !safeOwner.MatchString(owner) || strings.HasPrefix(owner, encodedPrefix) {
		name = encodedPrefix + hex.EncodeToString([]byte(owner))
	}
	return filepath.Join(s.dir, filePrefix+name+fileSuffix)
}

func (s *FileStore) Put(owner string, payload *crypto.EncryptedPayload) error {
	if payload == nil {
		return fmt.Errorf("nil payload for owner %q", owner)
	}

	data, err := json.MarshalIndent(payload.Envelope(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write to temp file then rename (atomic)
	path := s.Path(owner)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize payload: %w", err)
	}
	return nil
}

func (s *FileStore) Get(owner string) (*crypto.EncryptedPayload, error) {
	s.mu.RLock()
	data, err := os.ReadFile(s.Path(owner))
	s.mu.RUnlock()

	if os.IsNotExist(err) {
		return nil, ErrNotFound{Owner: owner}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	payload, err := crypto.ParseEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("payload file for %q: %w", owner, err)
	}
	return payload, nil
}

func (s *FileStore) Delete(owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.Path(owner))
	if os.IsNotExist(err) {
		return ErrNotFound{Owner: owner}
	}
	if err != nil {
		return fmt.Errorf("failed to delete payload: %w", err)
	}
	return nil
}

func (s *FileStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return 0, fmt.Errorf("failed to list payloads: %w", err)
	}
	return len(matches), nil
}

func (s *FileStore) Close() error {
	return nil
}
