// Package memory provides an in-process Publisher that records crawl
// completion notifications. It backs single-node deployments where no
// Pub/Sub project is configured, and lets tests assert on what a finished
// job announced.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Publisher retains every completion notification in publish order.
type Publisher struct {
	mu            sync.RWMutex
	notifications []Notification
}

// Notification captures one job-completion publish.
type Notification struct {
	Topic   string
	Payload any
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the notification and returns a pseudo message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, Notification{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.notifications)), nil
}

// Notifications returns a copy of the recorded completion notifications.
func (p *Publisher) Notifications() []Notification {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Notification, len(p.notifications))
	copy(out, p.notifications)
	return out
}
