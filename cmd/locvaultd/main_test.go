package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/amaydixit11/locvault/pkg/crypto"
)

func TestOpenEnvelope(t *testing.T) {
	c := crypto.NewCipher(crypto.KDFParams{Method: crypto.KDFPBKDF2, Iterations: 1000}, crypto.SuiteAESGCM)
	plaintext := []byte(`{"query":"coffee"}`)

	payload, err := c.Seal([]byte("pw"), plaintext)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	doc, err := json.Marshal(payload.Envelope())
	if err != nil {
		t.Fatal(err)
	}

	got, err := openEnvelope(bytes.NewReader(doc), []byte("pw"), c)
	if err != nil {
		t.Fatalf("openEnvelope failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Expected %s, got %s", plaintext, got)
	}

	_, err = openEnvelope(bytes.NewReader(doc), []byte("wrong"), c)
	if !errors.Is(err, crypto.ErrAuthentication) {
		t.Errorf("Expected ErrAuthentication, got %v", err)
	}

	if _, err := openEnvelope(strings.NewReader("not json"), []byte("pw"), c); err == nil {
		t.Error("Expected error for malformed input")
	}
}

func TestNewCipherRejectsUnknown(t *testing.T) {
	if _, err := newCipher("scrypt", "aes-256-gcm"); err == nil {
		t.Error("Expected error for unknown kdf")
	}
	if _, err := newCipher("argon2id", "rot13"); err == nil {
		t.Error("Expected error for unknown cipher")
	}
}

func TestClientDecodesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status" {
			w.Write([]byte(`{"grant_count":2}`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"Unauthorized or expired access"}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL + "/")

	var status map[string]int
	if err := c.get("/status", &status); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if status["grant_count"] != 2 {
		t.Errorf("Expected grant_count 2, got %v", status)
	}

	err := c.post("/view_location", map[string]string{"owner": "a"}, nil)
	if err == nil || !strings.Contains(err.Error(), "HTTP 403") {
		t.Errorf("Expected HTTP 403 error, got %v", err)
	}
}

func pipeWith(t *testing.T, data []byte) *os.File {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		w.Write(data)
		w.Close()
	}()
	t.Cleanup(func() { r.Close() })
	return r
}

func noTTY() (*os.File, error) {
	return nil, errors.New("no controlling terminal")
}

func TestPromptLeavesPipedEnvelopeIntact(t *testing.T) {
	c := crypto.NewCipher(crypto.KDFParams{Method: crypto.KDFPBKDF2, Iterations: 1000}, crypto.SuiteAESGCM)
	payload, err := c.Seal([]byte("pw"), []byte(`{"lat":1.0,"lon":2.0}`))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	doc, _ := json.MarshalIndent(payload.Envelope(), "", "  ")

	t.Run("passphrase from tty", func(t *testing.T) {
		stdin := pipeWith(t, doc)
		tty := func() (*os.File, error) { return pipeWith(t, []byte("pw\n")), nil }

		pass, err := readPassword(stdin, tty, true)
		if err != nil {
			t.Fatalf("readPassword failed: %v", err)
		}
		if string(pass) != "pw" {
			t.Errorf("Expected passphrase pw, got %q", pass)
		}

		got, err := openEnvelope(stdin, pass, c)
		if err != nil {
			t.Fatalf("openEnvelope failed: %v", err)
		}
		if string(got) != `{"lat":1.0,"lon":2.0}` {
			t.Errorf("Unexpected plaintext %s", got)
		}
	})

	t.Run("no tty", func(t *testing.T) {
		stdin := pipeWith(t, doc)

		if _, err := readPassword(stdin, noTTY, true); !errors.Is(err, errPromptNeedsTerminal) {
			t.Fatalf("Expected errPromptNeedsTerminal, got %v", err)
		}
		if _, err := openEnvelope(stdin, []byte("pw"), c); err != nil {
			t.Errorf("Envelope was consumed by the prompt: %v", err)
		}
	})

	t.Run("stdin fallback with file input", func(t *testing.T) {
		stdin := pipeWith(t, []byte("pw\r\n"))
		pass, err := readPassword(stdin, noTTY, false)
		if err != nil || string(pass) != "pw" {
			t.Errorf("Expected pw, got %q (%v)", pass, err)
		}
	})
}

func TestSetFloatRequiresFlag(t *testing.T) {
	fs := flag.NewFlagSet("seal", flag.ContinueOnError)
	lat := fs.Float64("lat", 0, "")
	lon := fs.Float64("lon", 0, "")
	if err := fs.Parse([]string{"-lat", "0"}); err != nil {
		t.Fatal(err)
	}

	if got := setFloat(fs, "lat", lat); got == nil || *got != 0 {
		t.Errorf("Expected explicit zero latitude, got %v", got)
	}
	if got := setFloat(fs, "lon", lon); got != nil {
		t.Errorf("Expected nil for missing longitude, got %v", *got)
	}
}

func TestClientSendsAdminToken(t *testing.T) {
	t.Setenv("LOCVAULT_ADMIN_TOKEN", "s3cret")

	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Write([]byte(`{"entries":[]}`))
	}))
	defer srv.Close()

	if err := newClient(srv.URL).get("/history?owner=alice", nil); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != "Bearer s3cret" {
		t.Errorf("Expected bearer token, got %q", got)
	}
}
