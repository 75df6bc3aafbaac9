// Package invite encodes share links for live grants, with QR rendering.
package invite

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
)

// Prefix is the scheme of encoded invite codes
const Prefix = "locvault://"

var (
	ErrMalformed = errors.New("invalid invite")
	ErrExpired   = errors.New("invite expired")
	ErrSignature = errors.New("invalid invite signature")
)

// Invite names the (owner, viewer) pair a share link was issued for.
// Holding an invite grants nothing by itself; the grant must still be live.
type Invite struct {
	Owner     string `json:"o"`
	Viewer    string `json:"v"`
	CreatedAt int64  `json:"c"` // Unix timestamp
	ExpiresAt int64  `json:"e"` // Expiry timestamp
	Signature []byte `json:"s"` // HMAC over above fields
}

// Signer issues and verifies invites with an HMAC-SHA256 key
type Signer struct {
	key []byte
}

// NewSigner creates a signer. The key is copied.
func NewSigner(key []byte) *Signer {
	return &Signer{key: append([]byte(nil), key...)}
}

// Create issues a signed invite valid until expiresAt
func (s *Signer) Create(owner, viewer string, createdAt, expiresAt time.Time) *Invite {
	inv := &Invite{
		Owner:     owner,
		Viewer:    viewer,
		CreatedAt: createdAt.Unix(),
		ExpiresAt: expiresAt.Unix(),
	}
	inv.Signature = s.sign(inv)
	return inv
}

func (s *Signer) sign(i *Invite) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(i.signableData())
	return mac.Sum(nil)
}

// signableData returns the data that gets signed
func (i *Invite) signableData() []byte {
	owner, _ := json.Marshal(i.Owner)
	viewer, _ := json.Marshal(i.Viewer)
	return []byte(fmt.Sprintf("%s|%s|%d|%d", owner, viewer, i.CreatedAt, i.ExpiresAt))
}

// Parse decodes code, verifies its signature and checks expiry against now
func (s *Signer) Parse(code string, now time.Time) (*Invite, error) {
	if !strings.HasPrefix(code, Prefix) {
		return nil, fmt.Errorf("%w: missing prefix", ErrMalformed)
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(code, Prefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var inv Invite
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if inv.Owner == "" || inv.Viewer == "" {
		return nil, fmt.Errorf("%w: missing owner or viewer", ErrMalformed)
	}

	if !hmac.Equal(inv.Signature, s.sign(&inv)) {
		return nil, ErrSignature
	}
	if inv.IsExpiredAt(now) {
		return nil, ErrExpired
	}
	return &inv, nil
}

// Encode serializes the invite to a compact string
func (i *Invite) Encode() (string, error) {
	data, err := json.Marshal(i)
	if err != nil {
		return "", err
	}
	return Prefix + base64.RawURLEncoding.EncodeToString(data), nil
}

// Link returns the viewer URL carrying the encoded invite
func (i *Invite) Link(baseURL string) (string, error) {
	code, err := i.Encode()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(baseURL, "/") + "/viewer?invite=" + url.QueryEscape(code), nil
}

// ToQR generates a QR code PNG for the invite link
func (i *Invite) ToQR(baseURL string) ([]byte, error) {
	link, err := i.Link(baseURL)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(link, qrcode.Medium, 256)
}

// ToQRString generates an ASCII art QR code for terminal display
func (i *Invite) ToQRString(baseURL string) (string, error) {
	link, err := i.Link(baseURL)
	if err != nil {
		return "", err
	}
	return LinkQRString(link)
}

// LinkQRString renders any link as a terminal QR code
func LinkQRString(link string) (string, error) {
	qr, err := qrcode.New(link, qrcode.Low)
	if err != nil {
		return "", err
	}
	return qr.ToSmallString(false), nil
}

// IsExpiredAt reports whether the invite has expired at t
func (i *Invite) IsExpiredAt(t time.Time) bool {
	return t.Unix() >= i.ExpiresAt
}
