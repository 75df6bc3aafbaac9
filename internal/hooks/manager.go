// Package hooks delivers access events to HTTP webhooks.
package hooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/amaydixit11/locvault/internal/events"
)

const (
	// EventHeader carries the event type of a delivery
	EventHeader = "X-Locvault-Event"
	// SignatureHeader carries "sha256=<hex hmac of body>" when a secret is set
	SignatureHeader = "X-Locvault-Signature"
)

// WebhookConfig configures an HTTP webhook
type WebhookConfig struct {
	ID         string             `json:"id"`
	URL        string             `json:"url"`
	Events     []events.EventType `json:"events"`      // Events to deliver (empty = all)
	Headers    map[string]string  `json:"headers"`     // Custom headers
	Secret     string             `json:"-"`           // HMAC secret for signing
	MaxRetries int                `json:"max_retries"` // Retry count (default 3)
	Timeout    time.Duration      `json:"timeout"`     // Request timeout
}

func (c *WebhookConfig) wants(t events.EventType) bool {
	if len(c.Events) == 0 {
		return true
	}
	for _, et := range c.Events {
		if et == t {
			return true
		}
	}
	return false
}

// Manager manages webhooks
type Manager struct {
	webhooks map[string]*WebhookConfig
	client   *http.Client
	logger   logrus.FieldLogger
	backoff  func(attempt int) time.Duration
	mu       sync.RWMutex
}

// NewManager creates a new hook manager
func NewManager(logger logrus.FieldLogger) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{
		webhooks: make(map[string]*WebhookConfig),
		client:   &http.Client{},
		logger:   logger.WithField("component", "hooks"),
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
	}
}

// RegisterWebhook adds an HTTP webhook and returns its ID
func (m *Manager) RegisterWebhook(config WebhookConfig) (string, error) {
	if config.URL == "" {
		return "", fmt.Errorf("webhook URL is required")
	}
	if config.ID == "" {
		config.ID = uuid.New().String()
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhooks[config.ID] = &config
	return config.ID, nil
}

// Trigger delivers an event to every matching webhook.
// Failed deliveries are logged, never returned.
func (m *Manager) Trigger(ctx context.Context, event events.Event) {
	m.mu.RLock()
	targets := make([]*WebhookConfig, 0, len(m.webhooks))
	for _, wh := range m.webhooks {
		if wh.wants(event.Type) {
			targets = append(targets, wh)
		}
	}
	m.mu.RUnlock()

	for _, wh := range targets {
		if err := m.deliver(ctx, wh, event); err != nil {
			m.logger.WithError(err).WithFields(logrus.Fields{
				"webhook": wh.ID,
				"event":   event.Type,
			}).Warn("webhook delivery failed")
		}
	}
}

// Run forwards events from sub until the channel closes or ctx is done.
// The caller owns sub.
func (m *Manager) Run(ctx context.Context, sub events.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			m.Trigger(ctx, event)
		}
	}
}

// Sign returns the signature header value for body
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (m *Manager) deliver(ctx context.Context, config *WebhookConfig, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.backoff(attempt)):
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, config.Timeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, config.URL, bytes.NewReader(payload))
		if err != nil {
			cancel()
			return err
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(EventHeader, string(event.Type))
		if config.Secret != "" {
			req.Header.Set(SignatureHeader, Sign(config.Secret, payload))
		}
		for k, v := range config.Headers {
			req.Header.Set(k, v)
		}

		resp, err := m.client.Do(req)
		cancel()

		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return lastErr
}
