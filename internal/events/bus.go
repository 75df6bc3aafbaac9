// Package events broadcasts access and location notifications to subscribers.
package events

import (
	"sync"
	"time"
)

// EventType represents the type of access event
type EventType string

const (
	GrantCreated    EventType = "grant_created"
	GrantRevoked    EventType = "grant_revoked"
	GrantExpired    EventType = "grant_expired"
	LocationUpdated EventType = "location_updated"
	LocationViewed  EventType = "location_viewed"
	ViewDenied      EventType = "view_denied"
)

// Event represents an access notification. It never carries location data.
type Event struct {
	Type      EventType  `json:"type"`
	Owner     string     `json:"owner"`
	Viewer    string     `json:"viewer,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// SubscriptionOptions configures a subscription
type SubscriptionOptions struct {
	// Events filters by event type (nil = all events)
	Events []EventType
	// Owner filters by owner (empty = all owners)
	Owner string
	// Buffer is the channel size (0 = 100)
	Buffer int
}

// Subscription represents an active event subscription
type Subscription interface {
	// Events returns the channel to receive events on
	Events() <-chan Event
	// Close stops the subscription and closes the channel
	Close()
}

type subscription struct {
	ch     chan Event
	closed bool
	mu     sync.Mutex
	filter SubscriptionOptions
}

func newSubscription(opts SubscriptionOptions) *subscription {
	size := opts.Buffer
	if size <= 0 {
		size = 100
	}
	return &subscription{
		ch:     make(chan Event, size),
		filter: opts,
	}
}

func (s *subscription) Events() <-chan Event {
	return s.ch
}

func (s *subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *subscription) matches(event Event) bool {
	if len(s.filter.Events) > 0 {
		found := false
		for _, et := range s.filter.Events {
			if et == event.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if s.filter.Owner != "" && event.Owner != s.filter.Owner {
		return false
	}

	return true
}

func (s *subscription) send(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed && s.matches(event) {
		select {
		case s.ch <- event:
		default:
			// Buffer full, drop event (non-blocking)
		}
	}
}

// Bus manages subscriptions and broadcasts events
type Bus struct {
	subs []*subscription
	mu   sync.RWMutex
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe creates a new subscription (all events)
func (b *Bus) Subscribe() Subscription {
	return b.SubscribeWithOptions(SubscriptionOptions{})
}

// SubscribeWithOptions creates a new subscription with filtering
func (b *Bus) SubscribeWithOptions(opts SubscriptionOptions) Subscription {
	sub := newSubscription(opts)
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub
}

// Publish sends an event to all matching subscribers without blocking
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		sub.send(event)
	}
}

// Unsubscribe removes and closes a subscription
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			s.Close()
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of active subscriptions
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes all subscriptions
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.Close()
	}
	b.subs = nil
}
