// Package notify delivers incident notifications to named channels.
// Each channel wraps a delivery backend (generic webhook, Slack) in a
// circuit breaker so a dead endpoint fails fast instead of stalling
// playbook runs.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"responder/core"
	"responder/metrics"
)

// Sender delivers one notification to its backend.
type Sender interface {
	Name() string
	Send(ctx context.Context, incident *core.Incident, message string) error
}

type guardedSender struct {
	sender  Sender
	breaker *core.CircuitBreaker
}

// Router dispatches notifications to named channels. It satisfies the
// playbook engine's Notifier interface.
type Router struct {
	mu       sync.RWMutex
	channels map[string]*guardedSender
	logger   *zap.SugaredLogger
}

// NewRouter creates an empty router.
func NewRouter(logger *zap.SugaredLogger) *Router {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Router{
		channels: make(map[string]*guardedSender),
		logger:   logger,
	}
}

// AddChannel registers a sender under its channel name, replacing any
// previous sender of the same name. Each channel gets its own breaker.
func (r *Router) AddChannel(sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[sender.Name()] = &guardedSender{
		sender:  sender,
		breaker: core.NewCircuitBreaker(core.DefaultBreakerConfig()),
	}
	r.logger.Debugf("Registered notification channel: %s", sender.Name())
}

// Channels returns the registered channel names.
func (r *Router) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	return names
}

// Send delivers a message about an incident to one channel. An unknown
// channel is a Validation error; an open breaker fails immediately.
func (r *Router) Send(ctx context.Context, channel string, incident *core.Incident, message string) error {
	r.mu.RLock()
	guarded, ok := r.channels[channel]
	r.mu.RUnlock()
	if !ok {
		return core.ValidationErrorf("unknown notification channel %q", channel)
	}

	if err := guarded.breaker.Allow(); err != nil {
		metrics.NotificationsSentTotal.WithLabelValues(channel, "rejected").Inc()
		return fmt.Errorf("channel %s: %w", channel, err)
	}

	if err := guarded.sender.Send(ctx, incident, message); err != nil {
		guarded.breaker.RecordFailure()
		metrics.NotificationsSentTotal.WithLabelValues(channel, "failure").Inc()
		return fmt.Errorf("channel %s: %w", channel, err)
	}

	guarded.breaker.RecordSuccess()
	metrics.NotificationsSentTotal.WithLabelValues(channel, "success").Inc()
	return nil
}

// WebhookSender POSTs a JSON notification payload to an arbitrary URL.
type WebhookSender struct {
	name   string
	url    string
	client *http.Client
}

// NewWebhookSender creates a webhook channel.
func NewWebhookSender(name, url string, client *http.Client) *WebhookSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookSender{name: name, url: url, client: client}
}

func (s *WebhookSender) Name() string { return s.name }

func (s *WebhookSender) Send(ctx context.Context, incident *core.Incident, message string) error {
	payload := map[string]interface{}{
		"incident_id": incident.ID.String(),
		"title":       incident.Title,
		"severity":    string(incident.Severity),
		"type":        string(incident.IncidentType),
		"source":      incident.Source,
		"message":     message,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	return postJSON(ctx, s.client, s.url, payload)
}

// SlackSender posts to a Slack incoming-webhook URL using the Slack
// message format, with the incident summarized in an attachment.
type SlackSender struct {
	name   string
	url    string
	client *http.Client
}

// NewSlackSender creates a Slack channel.
func NewSlackSender(name, url string, client *http.Client) *SlackSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SlackSender{name: name, url: url, client: client}
}

func (s *SlackSender) Name() string { return s.name }

func (s *SlackSender) Send(ctx context.Context, incident *core.Incident, message string) error {
	payload := map[string]interface{}{
		"text": message,
		"attachments": []map[string]interface{}{
			{
				"color": severityColor(incident.Severity),
				"fields": []map[string]interface{}{
					{"title": "Incident", "value": incident.Title, "short": false},
					{"title": "Severity", "value": string(incident.Severity), "short": true},
					{"title": "Source", "value": incident.Source, "short": true},
				},
			},
		},
	}
	return postJSON(ctx, s.client, s.url, payload)
}

func severityColor(severity core.Severity) string {
	switch severity {
	case core.SeverityP0, core.SeverityP1:
		return "danger"
	case core.SeverityP2:
		return "warning"
	default:
		return "good"
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
