package notify

import (
	"log"
	"sync"
)

// NotificationType represents the severity of a notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifyWarning
	NotifyError
)

func (t NotificationType) String() string {
	switch t {
	case NotifyWarning:
		return "warning"
	case NotifyError:
		return "error"
	default:
		return "info"
	}
}

// Notification is a message for the user
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	IssueID string // Optional issue reference
}

// Notifier delivers notifications to the user
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	mu        sync.RWMutex
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Add registers another notifier, e.g. a UI that starts after wiring
func (m *MultiNotifier) Add(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	m.mu.RLock()
	notifiers := m.notifiers
	m.mu.RUnlock()

	var lastErr error
	for _, notifier := range notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing
type NoopNotifier struct{}

func (NoopNotifier) Send(Notification) error { return nil }

// LogNotifier writes notifications to the standard logger
type LogNotifier struct{}

func (LogNotifier) Send(n Notification) error {
	log.Printf("[%s] %s: %s", n.Type, n.Title, n.Message)
	return nil
}

// FuncNotifier adapts a function
type FuncNotifier func(n Notification) error

func (f FuncNotifier) Send(n Notification) error { return f(n) }
