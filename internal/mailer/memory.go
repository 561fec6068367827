// internal/mailer/memory.go
package mailer

import (
	"context"
	"errors"
	"sync"
)

// Message is a recorded dispatch.
type Message struct {
	To      string
	Subject string
	Body    string
}

// MemorySender records dispatches for tests. Set Fail to make every send
// report failure without recording.
type MemorySender struct {
	mu       sync.Mutex
	messages []Message
	Fail     bool
}

func NewMemorySender() *MemorySender { return &MemorySender{} }

func (m *MemorySender) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return errors.New("mail gateway unavailable")
	}
	m.messages = append(m.messages, Message{To: to, Subject: subject, Body: body})
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *MemorySender) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}
