// Package mock provides an in-memory [notify.Notifier] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/nap/internal/notify"
)

// Notifier records every notification it receives.
type Notifier struct {
	mu sync.Mutex

	// NotifyError is returned by Notify.
	NotifyError error

	// Calls holds all received notifications in order.
	Calls []notify.Notification
}

// Notify implements [notify.Notifier].
func (n *Notifier) Notify(_ context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Calls = append(n.Calls, msg)
	return n.NotifyError
}

// Last returns the most recent notification, or the zero value.
func (n *Notifier) Last() notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Calls) == 0 {
		return notify.Notification{}
	}
	return n.Calls[len(n.Calls)-1]
}

// Count returns the number of notifications received.
func (n *Notifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Calls)
}
