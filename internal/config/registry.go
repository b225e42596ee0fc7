package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/nap/internal/notify"
	"github.com/MrWong99/nap/pkg/audio"
)

// ErrNotRegistered is returned by Create* methods when no factory has been
// registered under the requested name.
var ErrNotRegistered = errors.New("config: component not registered")

// Registry maps capture device and notification backend names to their
// constructor functions. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	capture  map[string]func(CaptureConfig) (audio.CaptureSource, error)
	notifier map[NotifyBackend]func(NotifyConfig) (notify.Notifier, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		capture:  make(map[string]func(CaptureConfig) (audio.CaptureSource, error)),
		notifier: make(map[NotifyBackend]func(NotifyConfig) (notify.Notifier, error)),
	}
}

// RegisterCapture registers a capture source factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterCapture(name string, factory func(CaptureConfig) (audio.CaptureSource, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capture[name] = factory
}

// RegisterNotifier registers a notification backend factory.
func (r *Registry) RegisterNotifier(backend NotifyBackend, factory func(NotifyConfig) (notify.Notifier, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier[backend] = factory
}

// CreateCapture instantiates the capture source registered under cfg.Device.
// Returns [ErrNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateCapture(cfg CaptureConfig) (audio.CaptureSource, error) {
	r.mu.RLock()
	factory, ok := r.capture[cfg.Device]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: capture/%q", ErrNotRegistered, cfg.Device)
	}
	return factory(cfg)
}

// CreateNotifier instantiates the backend registered under cfg.Backend.
func (r *Registry) CreateNotifier(cfg NotifyConfig) (notify.Notifier, error) {
	r.mu.RLock()
	factory, ok := r.notifier[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: notify/%q", ErrNotRegistered, cfg.Backend)
	}
	return factory(cfg)
}

// CaptureDevices returns the registered capture source names, sorted.
func (r *Registry) CaptureDevices() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.capture))
	for name := range r.capture {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
