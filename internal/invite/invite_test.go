package invite

import (
	"bytes"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestCreateAndParseInvite(t *testing.T) {
	signer := NewSigner([]byte("test-signing-key"))

	inv := signer.Create("alice", "bob", t0, t0.Add(5*time.Minute))
	if inv.IsExpiredAt(t0) {
		t.Error("invite should not be expired")
	}
	if inv.ExpiresAt != t0.Add(5*time.Minute).Unix() {
		t.Errorf("unexpected ExpiresAt: %v", inv.ExpiresAt)
	}

	code, err := inv.Encode()
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	if !strings.HasPrefix(code, Prefix) {
		t.Errorf("code should start with %s: %s", Prefix, code)
	}

	parsed, err := signer.Parse(code, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if parsed.Owner != "alice" || parsed.Viewer != "bob" {
		t.Errorf("parsed invite mismatch: %+v", parsed)
	}
}

func TestExpiredInvite(t *testing.T) {
	signer := NewSigner([]byte("k"))
	inv := signer.Create("alice", "bob", t0, t0.Add(5*time.Minute))
	code, _ := inv.Encode()

	if _, err := signer.Parse(code, t0.Add(5*time.Minute)); !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired at the expiry instant, got %v", err)
	}
}

func TestForgedInvite(t *testing.T) {
	signer := NewSigner([]byte("server-key"))
	inv := signer.Create("alice", "bob", t0, t0.Add(time.Hour))

	// Same invite signed with another key
	other := NewSigner([]byte("attacker-key")).Create("alice", "bob", t0, t0.Add(time.Hour))
	code, _ := other.Encode()
	if _, err := signer.Parse(code, t0); !errors.Is(err, ErrSignature) {
		t.Errorf("expected ErrSignature, got %v", err)
	}

	// Viewer swapped after signing
	inv.Viewer = "mallory"
	code, _ = inv.Encode()
	if _, err := signer.Parse(code, t0); !errors.Is(err, ErrSignature) {
		t.Errorf("expected ErrSignature for tampered viewer, got %v", err)
	}
}

func TestMalformedInvite(t *testing.T) {
	signer := NewSigner([]byte("k"))

	for _, code := range []string{
		"http://example.com",
		Prefix + "!!!not-base64",
		Prefix + "bm90IGpzb24", // "not json"
	} {
		if _, err := signer.Parse(code, t0); !errors.Is(err, ErrMalformed) {
			t.Errorf("%q: expected ErrMalformed, got %v", code, err)
		}
	}
}

func TestLink(t *testing.T) {
	signer := NewSigner([]byte("k"))
	inv := signer.Create("alice", "bob", t0, t0.Add(time.Hour))

	link, err := inv.Link("http://localhost:10000/")
	if err != nil {
		t.Fatalf("failed to build link: %v", err)
	}

	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("invalid link: %v", err)
	}
	if u.Path != "/viewer" {
		t.Errorf("unexpected path: %s", u.Path)
	}
	if _, err := signer.Parse(u.Query().Get("invite"), t0); err != nil {
		t.Errorf("link should carry a valid invite: %v", err)
	}
}

func TestInviteQRGeneration(t *testing.T) {
	inv := NewSigner([]byte("k")).Create("alice", "bob", t0, t0.Add(time.Hour))

	// Generate QR PNG
	png, err := inv.ToQR("http://localhost:10000")
	if err != nil {
		t.Fatalf("failed to generate QR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("QR should be a PNG")
	}

	// Generate ASCII QR
	ascii, err := inv.ToQRString("http://localhost:10000")
	if err != nil {
		t.Fatalf("failed to generate QR string: %v", err)
	}
	if len(ascii) == 0 {
		t.Error("QR string should not be empty")
	}
}
