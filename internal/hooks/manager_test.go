package hooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/amaydixit11/locvault/internal/events"
)

type recorder struct {
	mu       sync.Mutex
	received []*http.Request
	bodies   [][]byte
	status   []int
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, req)
	r.bodies = append(r.bodies, body)
	status := http.StatusOK
	if n := len(r.received) - 1; n < len(r.status) {
		status = r.status[n]
	}
	w.WriteHeader(status)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

func newTestManager() *Manager {
	m := NewManager(nil)
	m.backoff = func(int) time.Duration { return time.Millisecond }
	return m
}

func TestTriggerDeliversSignedEvent(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	m := newTestManager()
	if _, err := m.RegisterWebhook(WebhookConfig{URL: srv.URL, Secret: "s3cret"}); err != nil {
		t.Fatalf("RegisterWebhook failed: %v", err)
	}

	m.Trigger(context.Background(), events.Event{Type: events.LocationViewed, Owner: "alice", Viewer: "bob"})

	if rec.count() != 1 {
		t.Fatalf("Expected 1 delivery, got %d", rec.count())
	}
	req, body := rec.received[0], rec.bodies[0]
	if req.Header.Get(EventHeader) != string(events.LocationViewed) {
		t.Errorf("Event header = %q", req.Header.Get(EventHeader))
	}
	if req.Header.Get(SignatureHeader) != Sign("s3cret", body) {
		t.Error("Signature header does not match body")
	}

	var got events.Event
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("Invalid body: %v", err)
	}
	if got.Owner != "alice" || got.Viewer != "bob" {
		t.Errorf("Unexpected event: %+v", got)
	}
}

func TestTriggerFiltersEvents(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	m := newTestManager()
	m.RegisterWebhook(WebhookConfig{URL: srv.URL, Events: []events.EventType{events.ViewDenied}})

	m.Trigger(context.Background(), events.Event{Type: events.GrantCreated, Owner: "alice"})
	if rec.count() != 0 {
		t.Errorf("Expected no delivery for filtered event, got %d", rec.count())
	}

	m.Trigger(context.Background(), events.Event{Type: events.ViewDenied, Owner: "alice"})
	if rec.count() != 1 {
		t.Errorf("Expected 1 delivery, got %d", rec.count())
	}
}

func TestDeliveryRetries(t *testing.T) {
	rec := &recorder{status: []int{http.StatusBadGateway, http.StatusInternalServerError}}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	m := newTestManager()
	m.RegisterWebhook(WebhookConfig{URL: srv.URL, MaxRetries: 2})

	m.Trigger(context.Background(), events.Event{Type: events.GrantExpired, Owner: "alice"})
	if rec.count() != 3 {
		t.Errorf("Expected 3 attempts, got %d", rec.count())
	}
}

func TestDeliveryGivesUp(t *testing.T) {
	rec := &recorder{status: []int{500, 500, 500, 500}}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	m := newTestManager()
	id, _ := m.RegisterWebhook(WebhookConfig{URL: srv.URL, MaxRetries: 1})

	err := m.deliver(context.Background(), m.webhooks[id], events.Event{Type: events.GrantExpired})
	if err == nil {
		t.Error("Expected error after retries are exhausted")
	}
	if rec.count() != 2 {
		t.Errorf("Expected 2 attempts, got %d", rec.count())
	}
}

func TestRegisterWebhookDefaults(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.RegisterWebhook(WebhookConfig{}); err == nil {
		t.Error("Expected error for missing URL")
	}

	id, err := m.RegisterWebhook(WebhookConfig{URL: "http://example.com/hook"})
	if err != nil {
		t.Fatal(err)
	}
	wh, ok := m.webhooks[id]
	if !ok || len(m.webhooks) != 1 {
		t.Fatalf("Unexpected webhooks: %+v", m.webhooks)
	}
	if wh.MaxRetries != 3 || wh.Timeout != 10*time.Second {
		t.Errorf("Defaults not applied: %+v", wh)
	}
}

func TestRunForwardsFromBus(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	m := newTestManager()
	m.RegisterWebhook(WebhookConfig{URL: srv.URL})

	bus := events.NewBus()
	sub := bus.Subscribe()

	done := make(chan struct{})
	go func() {
		m.Run(context.Background(), sub)
		close(done)
	}()

	bus.Publish(events.Event{Type: events.GrantRevoked, Owner: "alice", Viewer: "bob"})

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if rec.count() != 1 {
		t.Fatalf("Expected 1 delivery, got %d", rec.count())
	}

	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after bus closed")
	}
}
