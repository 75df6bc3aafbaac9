package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/amaydixit11/locvault/pkg/crypto"
)

func samplePayload(fill byte) *crypto.EncryptedPayload {
	return &crypto.EncryptedPayload{
		Salt:       bytes.Repeat([]byte{fill}, crypto.SaltSize),
		Nonce:      bytes.Repeat([]byte{fill + 1}, crypto.NonceSize),
		Tag:        bytes.Repeat([]byte{fill + 2}, crypto.TagSize),
		Ciphertext: []byte("ciphertext-" + string(rune('a'+fill))),
	}
}

func newStores(t *testing.T) map[string]PayloadStore {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}
	return map[string]PayloadStore{
		"memory": NewMemoryStore(),
		"file":   fs,
	}
}

func assertSamePayload(t *testing.T, got, want *crypto.EncryptedPayload) {
	t.Helper()
	if !bytes.Equal(got.Salt, want.Salt) || !bytes.Equal(got.Nonce, want.Nonce) ||
		!bytes.Equal(got.Tag, want.Tag) || !bytes.Equal(got.Ciphertext, want.Ciphertext) {
		t.Errorf("payload mismatch: got %+v, want %+v", got, want)
	}
}

func TestPutAndGet(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			want := samplePayload(1)
			if err := store.Put("alice", want); err != nil {
				t.Fatalf("put failed: %v", err)
			}

			got, err := store.Get("alice")
			if err != nil {
				t.Fatalf("get failed: %v", err)
			}
			assertSamePayload(t, got, want)
		})
	}
}

func TestPutOverwrites(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			store.Put("alice", samplePayload(1))
			latest := samplePayload(5)
			if err := store.Put("alice", latest); err != nil {
				t.Fatalf("put failed: %v", err)
			}

			got, err := store.Get("alice")
			if err != nil {
				t.Fatalf("get failed: %v", err)
			}
			assertSamePayload(t, got, latest)

			n, err := store.Count()
			if err != nil || n != 1 {
				t.Errorf("expected 1 payload, got %d (%v)", n, err)
			}
		})
	}
}

func TestOwnersAreIsolated(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			store.Put("alice", samplePayload(1))
			store.Put("bob", samplePayload(3))

			got, err := store.Get("bob")
			if err != nil {
				t.Fatalf("get failed: %v", err)
			}
			assertSamePayload(t, got, samplePayload(3))

			if n, _ := store.Count(); n != 2 {
				t.Errorf("expected 2 payloads, got %d", n)
			}
		})
	}
}

func TestGetNotFound(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			_, err := store.Get("nobody")
			var nf ErrNotFound
			if !errors.As(err, &nf) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if nf.Owner != "nobody" {
				t.Errorf("owner mismatch: %q", nf.Owner)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			store.Put("alice", samplePayload(1))
			if err := store.Delete("alice"); err != nil {
				t.Fatalf("delete failed: %v", err)
			}
			if _, err := store.Get("alice"); !errors.As(err, &ErrNotFound{}) {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}
			if err := store.Delete("alice"); !errors.As(err, &ErrNotFound{}) {
				t.Errorf("expected ErrNotFound on second delete, got %v", err)
			}
		})
	}
}

func TestMemoryStoreCopiesPayload(t *testing.T) {
	store := NewMemoryStore()
	p := samplePayload(1)
	store.Put("alice", p)

	p.Ciphertext[0] ^= 0xFF

	got, _ := store.Get("alice")
	if bytes.Equal(got.Ciphertext, p.Ciphertext) {
		t.Error("stored payload should not alias the caller's slices")
	}
}

func TestFileStoreLayout(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := store.Put("alice", samplePayload(1)); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	path := filepath.Join(dir, "places_output_alice.enc.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected payload file at %s: %v", path, err)
	}
	if !strings.Contains(string(data), `"enc_data"`) || !strings.Contains(string(data), `"ciphertext_hex"`) {
		t.Errorf("unexpected file content: %s", data)
	}

	// No temp file left behind
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be renamed away")
	}
}

func TestFileStoreUnsafeOwner(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)

	owner := "../../etc/passwd"
	if err := store.Put(owner, samplePayload(2)); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if filepath.Dir(store.Path(owner)) != dir {
		t.Errorf("path escaped the store directory: %s", store.Path(owner))
	}

	got, err := store.Get(owner)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	assertSamePayload(t, got, samplePayload(2))
}

func TestFileStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)

	os.WriteFile(store.Path("alice"), []byte("{not json"), 0600)

	if _, err := store.Get("alice"); !errors.Is(err, crypto.ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestFileStoreEncodedNamesDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)

	// "x612062" is what "a b" would encode to without the x-prefix rule
	owners := []string{"a b", "x612062", "x", "xavier"}
	seen := make(map[string]string)
	for i, owner := range owners {
		path := store.Path(owner)
		if other, ok := seen[path]; ok {
			t.Fatalf("owners %q and %q share %s", owner, other, path)
		}
		seen[path] = owner
		if filepath.Dir(path) != dir {
			t.Errorf("path escaped the store directory: %s", path)
		}
		if err := store.Put(owner, samplePayload(byte(i*3))); err != nil {
			t.Fatalf("put %q failed: %v", owner, err)
		}
	}

	for i, owner := range owners {
		got, err := store.Get(owner)
		if err != nil {
			t.Fatalf("get %q failed: %v", owner, err)
		}
		assertSamePayload(t, got, samplePayload(byte(i*3)))
	}

	if n, _ := store.Count(); n != len(owners) {
		t.Errorf("Count = %d, want %d", n, len(owners))
	}
	if store.Path("alice") != filepath.Join(dir, "places_output_alice.enc.json") {
		t.Errorf("plain owner should keep its name: %s", store.Path("alice"))
	}
}
