// Package share composes grant checks with the envelope cipher into the
// owner and viewer workflows.
//
// Owners search near their position; the result is sealed under the
// configured passphrase and stored as their latest payload. Viewers receive
// that payload only while they hold a live grant. Decryption happens on the
// viewer side and never here.
package share

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amaydixit11/locvault/internal/core"
	"github.com/amaydixit11/locvault/internal/events"
	"github.com/amaydixit11/locvault/internal/grant"
	"github.com/amaydixit11/locvault/internal/history"
	"github.com/amaydixit11/locvault/internal/invite"
	"github.com/amaydixit11/locvault/internal/places"
	"github.com/amaydixit11/locvault/internal/schema"
	"github.com/amaydixit11/locvault/internal/storage"
	"github.com/amaydixit11/locvault/pkg/crypto"
	"github.com/sirupsen/logrus"
)

// DefaultOwner is the storage key used when a search names no owner
const DefaultOwner = "user"

// Config contains configuration options for the service
type Config struct {
	// Payloads stores the sealed latest location of each owner. Required.
	Payloads storage.PayloadStore

	// Passphrase seals every payload. Required.
	Passphrase []byte

	// Cipher selects KDF and AEAD suite (nil = Argon2id + AES-256-GCM)
	Cipher *crypto.Cipher

	// Clock drives grant expiry (nil = system clock)
	Clock core.Clock

	// Grants is the grant store (nil = new store on Clock)
	Grants *grant.Store

	// Places answers owner searches (nil = search disabled)
	Places *places.Index

	// Schemas validates result documents before sealing (nil = defaults)
	Schemas *schema.Registry

	// Events receives access notifications (nil = new bus)
	Events *events.Bus

	// History records every access notification per owner (nil = disabled)
	History *history.Store

	// InviteKey signs invite links (nil = random per process)
	InviteKey []byte

	// EncryptResponse returns the sealed payload from Search. When false
	// the owner gets the plaintext result; the stored payload is still sealed.
	EncryptResponse bool

	Logger logrus.FieldLogger
}

// Service implements the owner and viewer operations
type Service struct {
	grants   *grant.Store
	payloads storage.PayloadStore
	cipher   *crypto.Cipher
	clock    core.Clock
	places   *places.Index
	schemas  *schema.Registry
	bus      *events.Bus
	history  *history.Store
	invites  *invite.Signer
	log      logrus.FieldLogger

	passphrase      []byte
	encryptResponse bool
}

// New creates a service from cfg
func New(cfg Config) (*Service, error) {
	if cfg.Payloads == nil {
		return nil, fmt.Errorf("payload store is required")
	}
	if len(cfg.Passphrase) == 0 {
		return nil, fmt.Errorf("passphrase is required")
	}

	s := &Service{
		grants:          cfg.Grants,
		payloads:        cfg.Payloads,
		cipher:          cfg.Cipher,
		clock:           cfg.Clock,
		places:          cfg.Places,
		schemas:         cfg.Schemas,
		bus:             cfg.Events,
		history:         cfg.History,
		log:             cfg.Logger,
		passphrase:      append([]byte(nil), cfg.Passphrase...),
		encryptResponse: cfg.EncryptResponse,
	}

	if s.clock == nil {
		s.clock = core.SystemClock{}
	}
	if s.grants == nil {
		s.grants = grant.NewStore(s.clock)
	}
	if s.cipher == nil {
		s.cipher = crypto.DefaultCipher()
	}
	if s.schemas == nil {
		s.schemas = schema.NewDefaultRegistry()
	}
	if s.bus == nil {
		s.bus = events.NewBus()
	}
	if s.log == nil {
		s.log = logrus.New()
	}

	key := cfg.InviteKey
	if len(key) == 0 {
		k, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		key = k[:]
	}
	s.invites = invite.NewSigner(key)

	return s, nil
}

func (s *Service) publish(t events.EventType, owner, viewer string, expiresAt *time.Time) {
	e := events.Event{
		Type:      t,
		Owner:     owner,
		Viewer:    viewer,
		ExpiresAt: expiresAt,
		Timestamp: s.clock.Now(),
	}
	if s.history != nil {
		if err := s.history.Record(e); err != nil {
			s.log.WithError(err).WithField("event", t).Warn("failed to record access history")
		}
	}
	s.bus.Publish(e)
}

func validatePair(owner, viewer string) error {
	if strings.TrimSpace(owner) == "" {
		return missing("owner")
	}
	if strings.TrimSpace(viewer) == "" {
		return missing("viewer")
	}
	return nil
}

// GrantAccess lets viewer read owner's latest location for minutes from now,
// replacing any earlier grant for the pair
func (s *Service) GrantAccess(owner, viewer string, minutes int) (grant.Grant, error) {
	if err := validatePair(owner, viewer); err != nil {
		return grant.Grant{}, err
	}
	if minutes <= 0 {
		return grant.Grant{}, ErrInvalidInput{Field: "duration_minutes", Reason: "must be positive"}
	}

	g := s.grants.Grant(owner, viewer, minutes)

	s.log.WithFields(logrus.Fields{
		"owner":      owner,
		"viewer":     viewer,
		"expires_at": g.ExpiresAt,
	}).Info("Access granted")
	s.publish(events.GrantCreated, owner, viewer, &g.ExpiresAt)

	return g, nil
}

// RevokeAccess cancels viewer's grant before it expires
func (s *Service) RevokeAccess(owner, viewer string) error {
	if err := validatePair(owner, viewer); err != nil {
		return err
	}
	if !s.grants.Revoke(owner, viewer) {
		return ErrNoGrant
	}

	s.log.WithFields(logrus.Fields{"owner": owner, "viewer": viewer}).Info("Access revoked")
	s.publish(events.GrantRevoked, owner, viewer, nil)
	return nil
}

// Grants returns owner's live grants, soonest expiry first
func (s *Service) Grants(owner string) ([]grant.Grant, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, missing("owner")
	}
	s.Sweep()
	return s.grants.ListByOwner(owner), nil
}

// Sweep removes expired grants and reports how many were removed
func (s *Service) Sweep() int {
	removed := s.grants.SweepExpired()
	for _, g := range removed {
		expiresAt := g.ExpiresAt
		s.publish(events.GrantExpired, g.Owner, g.Viewer, &expiresAt)
	}
	if len(removed) > 0 {
		s.log.WithField("removed", len(removed)).Debug("Expired grants swept")
	}
	return len(removed)
}

// RunSweeper sweeps expired grants every interval until ctx is cancelled
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// ViewLocation returns owner's latest sealed payload if viewer holds a live grant
func (s *Service) ViewLocation(owner, viewer string) (*crypto.EncryptedPayload, error) {
	if err := validatePair(owner, viewer); err != nil {
		return nil, err
	}

	s.Sweep()
	if !s.grants.IsAccessAllowed(owner, viewer) {
		s.log.WithFields(logrus.Fields{"owner": owner, "viewer": viewer}).Warn("Location view denied")
		s.publish(events.ViewDenied, owner, viewer, nil)
		return nil, ErrUnauthorized
	}

	payload, err := s.payloads.Get(owner)
	if errors.As(err, &storage.ErrNotFound{}) {
		return nil, ErrNoPayload
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payload: %w", err)
	}

	s.log.WithFields(logrus.Fields{"owner": owner, "viewer": viewer}).Info("Location viewed")
	s.publish(events.LocationViewed, owner, viewer, nil)
	return payload, nil
}

// ViewWithInvite resolves an invite code and then behaves as ViewLocation
func (s *Service) ViewWithInvite(code string) (*crypto.EncryptedPayload, error) {
	inv, err := s.ParseInvite(code)
	if err != nil {
		return nil, err
	}
	return s.ViewLocation(inv.Owner, inv.Viewer)
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
// Result is nil when response encryption is enabled.
type SearchResponse struct {
	Owner   string
	Payload *crypto.EncryptedPayload
	Result  *places.Result
}

func (s *Service) validateSearch(r SearchRequest) (core.Location, error) {
	if strings.TrimSpace(r.Query) == "" {
		return core.Location{}, missing("query")
	}
	if r.Lat == nil || r.Lon == nil {
		return core.Location{}, ErrInvalidInput{Field: "coordinates", Reason: "missing"}
	}
	loc := core.Location{Lat: *r.Lat, Lon: *r.Lon}
	if err := s.schemas.ValidateValue(schema.KindLocation, loc); err != nil {
		return core.Location{}, ErrInvalidInput{Field: "coordinates", Reason: err.Error()}
	}
	return loc, nil
}

// Search runs an owner search, seals the result and stores it as the
// owner's latest payload, overwriting the previous one
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	s.Sweep()

	center, err := s.validateSearch(req)
	if err != nil {
		return nil, err
	}
	if s.places == nil {
		return nil, ErrSearchUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	owner := req.Owner
	if strings.TrimSpace(owner) == "" {
		owner = DefaultOwner
	}

	hits, err := s.places.Search(req.Query, center, places.SearchOptions{})
	if err != nil {
		return nil, fmt.Errorf("places search failed: %w", err)
	}

	result := &places.Result{
		Query:       req.Query,
		Owner:       center,
		Places:      hits,
		GeneratedAt: s.clock.Now().UTC(),
	}

	payload, err := s.SealDocument(result)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.payloads.Put(owner, payload); err != nil {
		return nil, fmt.Errorf("failed to store payload: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"owner":  owner,
		"places": len(hits),
	}).Info("Encrypted location saved")
	s.publish(events.LocationUpdated, owner, "", nil)

	resp := &SearchResponse{Owner: owner, Payload: payload}
	if !s.encryptResponse {
		resp.Result = result
	}
	return resp, nil
}

// SealDocument validates a search result document and seals it
func (s *Service) SealDocument(result *places.Result) (*crypto.EncryptedPayload, error) {
	doc, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	if err := s.schemas.Validate(schema.KindSearchResult, doc); err != nil {
		return nil, err
	}

	payload, err := s.cipher.Seal(s.passphrase, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to seal result: %w", err)
	}
	return payload, nil
}

// Invite issues a share link for a live grant. The invite expires with the grant.
func (s *Service) Invite(owner, viewer string) (*invite.Invite, error) {
	if err := validatePair(owner, viewer); err != nil {
		return nil, err
	}

	g, ok := s.grants.Get(owner, viewer)
	if !ok {
		return nil, ErrUnauthorized
	}
	return s.invites.Create(owner, viewer, s.clock.Now(), g.ExpiresAt), nil
}

// ParseInvite verifies an invite code issued by this service
func (s *Service) ParseInvite(code string) (*invite.Invite, error) {
	if strings.TrimSpace(code) == "" {
		return nil, missing("invite")
	}
	inv, err := s.invites.Parse(code, s.clock.Now())
	if err != nil {
		return nil, ErrInvalidInput{Field: "invite", Reason: err.Error()}
	}
	return inv, nil
}

// Subscribe returns events concerning owner (empty = all owners)
func (s *Service) Subscribe(owner string) events.Subscription {
	return s.bus.SubscribeWithOptions(events.SubscriptionOptions{Owner: owner})
}

// Unsubscribe removes a subscription returned by Subscribe
func (s *Service) Unsubscribe(sub events.Subscription) {
	s.bus.Unsubscribe(sub)
}

// History returns owner's most recent access events, newest first
func (s *Service) History(owner string, limit int) ([]history.Entry, error) {
	if s.history == nil {
		return nil, ErrHistoryUnavailable
	}
	if strings.TrimSpace(owner) == "" {
		return nil, missing("owner")
	}
	if limit < 0 {
		return nil, ErrInvalidInput{Field: "limit", Reason: "must not be negative"}
	}
	s.Sweep()
	return s.history.List(owner, limit)
}

// Status is a snapshot of service counters
type Status struct {
	Grants      int `json:"grant_count"`
	Payloads    int `json:"payload_count"`
	Places      int `json:"place_count"`
	Subscribers int `json:"subscriber_count"`
}

// Status reports current counters
func (s *Service) Status() (Status, error) {
	s.Sweep()
	n, err := s.payloads.Count()
	if err != nil {
		return Status{}, err
	}
	st := Status{
		Grants:      s.grants.Len(),
		Payloads:    n,
		Subscribers: s.bus.Len(),
	}
	if s.places != nil {
		st.Places = s.places.Count()
	}
	return st, nil
}

// Close closes all event subscriptions. The payload store and places index
// belong to the caller.
func (s *Service) Close() error {
	s.bus.Close()
	return nil
}
