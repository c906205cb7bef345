package notify

import (
	"context"
	"sync"

	"responder/core"
)

// SentMessage records one delivery made through a MockNotifier.
type SentMessage struct {
	Channel  string
	Incident *core.Incident
	Message  string
}

// MockNotifier records sends for tests instead of delivering them. Set
// Err to make every send fail.
type MockNotifier struct {
	mu   sync.Mutex
	Sent []SentMessage
	Err  error
}

// Send implements the playbook engine's Notifier interface.
func (m *MockNotifier) Send(_ context.Context, channel string, incident *core.Incident, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, SentMessage{Channel: channel, Incident: incident, Message: message})
	return nil
}

// Messages returns a snapshot of everything sent so far.
func (m *MockNotifier) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.Sent))
	copy(out, m.Sent)
	return out
}
