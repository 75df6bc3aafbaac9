// Package api provides the HTTP API for locvault.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amaydixit11/locvault/pkg/locshare"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// Options configures the HTTP layer
type Options struct {
	// DefaultGrantMinutes applies when a grant request omits duration_minutes
	DefaultGrantMinutes int

	// CORSOrigins lists allowed origins (nil = all)
	CORSOrigins []string

	// AdminToken guards /grants, /history and /events.
	// Those routes answer 403 to everyone when it is empty.
	AdminToken string

	Logger logrus.FieldLogger
}

// Server is the HTTP API server
type Server struct {
	sharer locshare.Sharer
	router chi.Router
	opts   Options
	log    logrus.FieldLogger
}

// New creates a new API server
func New(s locshare.Sharer, opts Options) *Server {
	if opts.DefaultGrantMinutes <= 0 {
		opts.DefaultGrantMinutes = locshare.DefaultGrantMinutes
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	srv := &Server{
		sharer: s,
		router: chi.NewRouter(),
		opts:   opts,
		log:    opts.Logger,
	}
	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Post("/grant_access", s.grantAccess)
	r.Post("/revoke_access", s.revokeAccess)
	r.Post("/view_location", s.viewLocation)
	r.Post("/search", s.search)
	r.Get("/invite", s.invite)
	r.Get("/status", s.handleStatus)

	// Per-owner listings reveal who shares with whom
	r.Group(func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/grants", s.listGrants)
		r.Get("/history", s.listHistory)
		r.Get("/events", s.handleEvents)
	})
}

// requireAdmin rejects requests without the configured bearer token.
// The response does not depend on the owner asked about.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || s.opts.AdminToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.AdminToken)) != 1 {
			respondJSON(w, http.StatusForbidden, map[string]string{"error": "admin token required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}

type pairRequest struct {
	Owner  string `json:"owner"`
	Viewer string `json:"viewer"`
}

func (s *Server) grantAccess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		pairRequest
		DurationMinutes *int `json:"duration_minutes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	minutes := s.opts.DefaultGrantMinutes
	if req.DurationMinutes != nil {
		minutes = *req.DurationMinutes
	}

	g, err := s.sharer.GrantAccess(req.Owner, req.Viewer, minutes)
	if err != nil {
		s.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Access granted",
		"rule":    g,
	})
}

func (s *Server) revokeAccess(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.sharer.RevokeAccess(req.Owner, req.Viewer); err != nil {
		s.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Access revoked"})
}

func (s *Server) listGrants(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")

	grants, err := s.sharer.Grants(owner)
	if err != nil {
		s.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"owner":  owner,
		"grants": grants,
	})
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, locshare.ErrInvalidInput{Field: "limit", Reason: "must be an integer"})
			return
		}
		limit = n
	}

	entries, err := s.sharer.History(owner, limit)
	if err != nil {
		s.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"owner":   owner,
		"entries": entries,
	})
}

func (s *Server) viewLocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		pairRequest
		Invite string `json:"invite"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	var (
		env interface{}
		err error
	)
	if req.Invite != "" {
		env, err = s.sharer.ViewWithInvite(req.Invite)
	} else {
		env, err = s.sharer.ViewLocation(req.Owner, req.Viewer)
	}
	if err != nil {
		s.respondError(w, err)
		return
	}

	// Only the envelope; decryption happens on the viewer side
	respondJSON(w, http.StatusOK, env)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req locshare.SearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.sharer.Search(r.Context(), req)
	if err != nil {
		s.respondError(w, err)
		return
	}

	if resp.Result != nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"owner":  resp.Owner,
			"result": resp.Result,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"owner":    resp.Owner,
		"enc_data": resp.Envelope.EncData,
	})
}

func (s *Server) invite(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	inv, err := s.sharer.Invite(q.Get("owner"), q.Get("viewer"))
	if err != nil {
		s.respondError(w, err)
		return
	}

	if q.Get("format") == "png" {
		png, err := inv.QRCode()
		if err != nil {
			s.respondError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		w.Write(png)
		return
	}

	respondJSON(w, http.StatusOK, inv)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.sharer.Status()
	if err != nil {
		s.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"grant_count":      st.Grants,
		"payload_count":    st.Payloads,
		"place_count":      st.Places,
		"subscriber_count": st.Subscribers,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	owner := r.URL.Query().Get("owner")
	if owner == "" {
		s.respondError(w, locshare.ErrInvalidInput{Field: "owner", Reason: "is required"})
		return
	}

	sub := s.sharer.Subscribe(owner)
	defer s.sharer.Unsubscribe(sub)

	// Server-Sent Events
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			data, _ := json.Marshal(event)
			w.Write([]byte("event: " + string(event.Type) + "\n"))
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	var invalid locshare.ErrInvalidInput
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.Is(err, locshare.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, locshare.ErrNoPayload), errors.Is(err, locshare.ErrNoGrant):
		return http.StatusNotFound
	case errors.Is(err, locshare.ErrSearchUnavailable), errors.Is(err, locshare.ErrHistoryUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("Request failed")
		msg = "internal error"
	}
	respondJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
