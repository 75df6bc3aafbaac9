// Package locshare provides the public API for locvault.
//
// This is the package applications and the HTTP layer should import.
// It wires the grant store, envelope cipher, payload storage and places
// index together behind one Sharer.
//
// Example usage:
//
//	s, err := locshare.New(locshare.Config{
//	    DataDir:    "./data",
//	    Passphrase: []byte("mySecret123"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	g, err := s.GrantAccess("alice", "bob", 5)
package locshare

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/amaydixit11/locvault/internal/core"
	"github.com/amaydixit11/locvault/internal/events"
	"github.com/amaydixit11/locvault/internal/grant"
	"github.com/amaydixit11/locvault/internal/history"
	"github.com/amaydixit11/locvault/internal/invite"
	"github.com/amaydixit11/locvault/internal/places"
	"github.com/amaydixit11/locvault/internal/share"
	"github.com/amaydixit11/locvault/internal/storage"
	"github.com/amaydixit11/locvault/internal/storage/sqlite"
	"github.com/amaydixit11/locvault/pkg/crypto"
	"github.com/sirupsen/logrus"
)

// StorageKind selects the payload store backend
type StorageKind string

const (
	StorageMemory StorageKind = "memory"
	StorageFile   StorageKind = "file"
	StorageSQLite StorageKind = "sqlite"
)

// DefaultGrantMinutes applies when a grant request names no duration
const DefaultGrantMinutes = 5

// DefaultHistoryLimit is the number of access events kept per owner
const DefaultHistoryLimit = 100

// Re-exported so callers need not import internal packages
type (
	Grant        = grant.Grant
	Location     = core.Location
	Clock        = core.Clock
	Event        = events.Event
	EventType    = events.EventType
	Place        = places.Place
	SearchResult = places.Result
	Status       = share.Status
	HistoryEntry = history.Entry
)

// Subscription delivers events until closed
type Subscription = events.Subscription

// ManualClock only moves when told to; use it to drive expiry in tests and demos
type ManualClock = core.ManualClock

// NewManualClock creates a clock frozen at start
func NewManualClock(start time.Time) *ManualClock {
	return core.NewManualClock(start)
}

// SearchRequest is an owner search near a position.
// Lat and Lon are pointers so a missing coordinate differs from zero.
type SearchRequest struct {
	Query string   `json:"query"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	Owner string   `json:"owner"`
}

// SearchResponse is the outcome of an owner search.
// Result is only set when response encryption is disabled.
type SearchResponse struct {
	Owner    string
	Envelope crypto.Envelope
	Result   *SearchResult
}

// Invite is a share link for a live grant
type Invite struct {
	Owner     string    `json:"owner"`
	Viewer    string    `json:"viewer"`
	ExpiresAt time.Time `json:"expires_at"`
	Code      string    `json:"code"`
	URL       string    `json:"url"`

	inv     *invite.Invite
	baseURL string
}

// QRCode renders the invite link as a 256px PNG
func (i *Invite) QRCode() ([]byte, error) {
	return i.inv.ToQR(i.baseURL)
}

// QRString renders the invite link for a terminal
func (i *Invite) QRString() (string, error) {
	return i.inv.ToQRString(i.baseURL)
}

// Sharer is the main interface for locvault
type Sharer interface {
	// Grants
	GrantAccess(owner, viewer string, minutes int) (Grant, error)
	RevokeAccess(owner, viewer string) error
	Grants(owner string) ([]Grant, error)

	// Locations
	Search(ctx context.Context, req SearchRequest) (SearchResponse, error)
	ViewLocation(owner, viewer string) (crypto.Envelope, error)
	ViewWithInvite(code string) (crypto.Envelope, error)

	// Sharing links
	Invite(owner, viewer string) (*Invite, error)

	// History returns owner's recent access events, newest first
	History(owner string, limit int) ([]HistoryEntry, error)

	// Events - Subscribe to access notifications for owner ("" = all)
	Subscribe(owner string) Subscription
	Unsubscribe(sub Subscription)

	// Background expiry
	RunSweeper(ctx context.Context, interval time.Duration)

	Status() (Status, error)

	// Lifecycle
	Close() error
}

// Config contains configuration options for a Sharer
type Config struct {
	// DataDir holds payload files, the sqlite database and the passphrase
	// canary. If empty, defaults to ./data
	DataDir string

	// Storage selects the payload backend (default file)
	Storage StorageKind

	// Passphrase seals every stored location. Required.
	Passphrase []byte

	// KDF is "argon2id" (default) or "pbkdf2"
	KDF string

	// Cipher is "aes-256-gcm" (default) or "chacha20-poly1305"
	Cipher string

	// PlacesFile is a JSON array of places; empty uses the bundled set
	PlacesFile string

	// SearchRadius bounds owner searches, e.g. "2km"
	SearchRadius string

	// EncryptResponse seals the search response to the owner as well
	EncryptResponse bool

	// PublicURL is the base of invite links
	PublicURL string

	// DisableHistory turns off the per-owner access log
	DisableHistory bool

	// HistoryLimit caps access events kept per owner (0 = DefaultHistoryLimit)
	HistoryLimit int

	// Clock drives grant expiry (nil = system clock)
	Clock Clock

	Logger logrus.FieldLogger
}

// New creates a Sharer with the given configuration
func New(cfg Config) (Sharer, error) {
	if len(cfg.Passphrase) == 0 {
		return nil, fmt.Errorf("passphrase is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Storage == "" {
		cfg.Storage = StorageFile
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://localhost:10000"
	}

	kdf, err := crypto.ParseKDFMethod(cfg.KDF)
	if err != nil {
		return nil, err
	}
	suite, err := crypto.ParseSuite(cfg.Cipher)
	if err != nil {
		return nil, err
	}
	cipher := crypto.NewCipher(kdf, suite)

	payloads, err := openPayloadStore(cfg.Storage, cfg.DataDir)
	if err != nil {
		return nil, err
	}

	if cfg.Storage != StorageMemory {
		created, err := crypto.NewCanary(cfg.DataDir, cipher).Verify(cfg.Passphrase)
		if err != nil {
			payloads.Close()
			return nil, fmt.Errorf("data directory check failed: %w", err)
		}
		if created {
			cfg.Logger.WithField("dir", cfg.DataDir).Info("Passphrase canary created")
		}
	}

	idx, err := openPlaces(cfg.PlacesFile, cfg.SearchRadius)
	if err != nil {
		payloads.Close()
		return nil, err
	}

	var hist *history.Store
	if !cfg.DisableHistory {
		hist, err = openHistory(cfg, payloads)
		if err != nil {
			idx.Close()
			payloads.Close()
			return nil, err
		}
	}

	svc, err := share.New(share.Config{
		Payloads:        payloads,
		Passphrase:      cfg.Passphrase,
		Cipher:          cipher,
		Clock:           cfg.Clock,
		Places:          idx,
		History:         hist,
		EncryptResponse: cfg.EncryptResponse,
		Logger:          cfg.Logger,
	})
	if err != nil {
		if hist != nil {
			hist.Close()
		}
		idx.Close()
		payloads.Close()
		return nil, err
	}

	return &sharer{
		svc:       svc,
		payloads:  payloads,
		places:    idx,
		history:   hist,
		publicURL: cfg.PublicURL,
	}, nil
}

// openHistory shares the sqlite payload database when there is one
func openHistory(cfg Config, payloads storage.PayloadStore) (*history.Store, error) {
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if db, ok := payloads.(*sqlite.SQLiteStore); ok {
		return history.NewStore(db.GetDB(), limit)
	}
	if cfg.Storage == StorageMemory {
		return history.Open(":memory:", limit)
	}
	return history.Open(filepath.Join(cfg.DataDir, "history.db"), limit)
}

func openPayloadStore(kind StorageKind, dataDir string) (storage.PayloadStore, error) {
	switch kind {
	case StorageMemory:
		return storage.NewMemoryStore(), nil
	case StorageFile:
		return storage.NewFileStore(dataDir)
	case StorageSQLite:
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return sqlite.New(filepath.Join(dataDir, "payloads.db"))
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", kind)
	}
}

func openPlaces(file, radius string) (*places.Index, error) {
	if file == "" {
		return places.NewDefaultIndex(radius)
	}
	idx, err := places.NewIndex(radius)
	if err != nil {
		return nil, err
	}
	if err := idx.LoadFile(file); err != nil {
		idx.Close()
		return nil, err
	}
	return idx, nil
}

// sharer wraps the internal service and converts types and errors
type sharer struct {
	svc       *share.Service
	payloads  storage.PayloadStore
	places    *places.Index
	history   *history.Store
	publicURL string
}

func (s *sharer) GrantAccess(owner, viewer string, minutes int) (Grant, error) {
	g, err := s.svc.GrantAccess(owner, viewer, minutes)
	return g, convertError(err)
}

func (s *sharer) RevokeAccess(owner, viewer string) error {
	return convertError(s.svc.RevokeAccess(owner, viewer))
}

func (s *sharer) Grants(owner string) ([]Grant, error) {
	grants, err := s.svc.Grants(owner)
	return grants, convertError(err)
}

func (s *sharer) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	resp, err := s.svc.Search(ctx, share.SearchRequest{
		Query: req.Query,
		Lat:   req.Lat,
		Lon:   req.Lon,
		Owner: req.Owner,
	})
	if err != nil {
		return SearchResponse{}, convertError(err)
	}
	return SearchResponse{
		Owner:    resp.Owner,
		Envelope: resp.Payload.Envelope(),
		Result:   resp.Result,
	}, nil
}

func (s *sharer) ViewLocation(owner, viewer string) (crypto.Envelope, error) {
	p, err := s.svc.ViewLocation(owner, viewer)
	if err != nil {
		return crypto.Envelope{}, convertError(err)
	}
	return p.Envelope(), nil
}

func (s *sharer) ViewWithInvite(code string) (crypto.Envelope, error) {
	p, err := s.svc.ViewWithInvite(code)
	if err != nil {
		return crypto.Envelope{}, convertError(err)
	}
	return p.Envelope(), nil
}

func (s *sharer) Invite(owner, viewer string) (*Invite, error) {
	inv, err := s.svc.Invite(owner, viewer)
	if err != nil {
		return nil, convertError(err)
	}
	code, err := inv.Encode()
	if err != nil {
		return nil, err
	}
	link, err := inv.Link(s.publicURL)
	if err != nil {
		return nil, err
	}
	return &Invite{
		Owner:     inv.Owner,
		Viewer:    inv.Viewer,
		ExpiresAt: time.Unix(inv.ExpiresAt, 0).UTC(),
		Code:      code,
		URL:       link,
		inv:       inv,
		baseURL:   s.publicURL,
	}, nil
}

func (s *sharer) History(owner string, limit int) ([]HistoryEntry, error) {
	entries, err := s.svc.History(owner, limit)
	return entries, convertError(err)
}

func (s *sharer) Subscribe(owner string) Subscription {
	return s.svc.Subscribe(owner)
}

func (s *sharer) Unsubscribe(sub Subscription) {
	s.svc.Unsubscribe(sub)
}

func (s *sharer) RunSweeper(ctx context.Context, interval time.Duration) {
	s.svc.RunSweeper(ctx, interval)
}

func (s *sharer) Status() (Status, error) {
	return s.svc.Status()
}

func (s *sharer) Close() error {
	s.svc.Close()
	s.places.Close()
	if s.history != nil {
		s.history.Close()
	}
	return s.payloads.Close()
}
