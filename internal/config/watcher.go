package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls a config file and hands every effective change to a
// callback. A reload happens only when the file's mtime moved and its
// SHA-256 differs; the callback fires only when [Diff] reports a change, so
// comment or formatting edits are absorbed silently. Invalid files are
// reported and the last valid config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	onError  func(error)

	cancel  context.CancelFunc
	stopped chan struct{}

	mu      sync.Mutex
	current *Config
	mtime   time.Time
	hash    [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithErrorHandler receives every failed reload, e.g. to surface it to the
// user. Failures are always logged.
func WithErrorHandler(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onError = fn }
}

// NewWatcher loads path once and starts polling it in the background until
// [Watcher.Stop] is called. The initial load must succeed.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.mtime, w.hash = snap.cfg, snap.mtime, snap.hash

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.poll(ctx)
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling and waits for an in-flight reload to finish. Safe to
// call more than once.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.stopped
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.check(); err != nil {
				w.fail(err)
			}
		}
	}
}

func (w *Watcher) fail(err error) {
	if errors.Is(err, fs.ErrNotExist) {
		// Editors that save via rename briefly remove the file.
		slog.Debug("config watcher: file missing", "path", w.path, "err", err)
		return
	}
	slog.Warn("config watcher: reload failed, keeping previous config", "path", w.path, "err", err)
	if w.onError != nil {
		w.onError(err)
	}
}

// check reloads the file if it changed and runs the callback for effective
// changes.
func (w *Watcher) check() error {
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.mtime)
	w.mu.Unlock()
	if unchanged {
		return nil
	}

	snap, err := w.read()
	if err != nil {
		// Report a broken file once, not on every tick.
		w.mu.Lock()
		w.mtime = info.ModTime()
		w.mu.Unlock()
		return err
	}

	w.mu.Lock()
	if snap.hash == w.hash {
		w.mtime = snap.mtime
		w.mu.Unlock()
		return nil
	}
	old := w.current
	w.current, w.mtime, w.hash = snap.cfg, snap.mtime, snap.hash
	w.mu.Unlock()

	d := Diff(old, snap.cfg)
	if !d.HasChanges() {
		slog.Debug("config watcher: file changed without effect", "path", w.path)
		return nil
	}
	slog.Info("config watcher: configuration reloaded",
		"path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"endpoint_changed", d.EndpointChanged,
		"restart_required", d.RestartRequired,
	)
	// Outside the lock so the callback may call Current.
	if w.onChange != nil {
		w.onChange(old, snap.cfg)
	}
	return nil
}

type snapshot struct {
	cfg   *Config
	mtime time.Time
	hash  [sha256.Size]byte
}

// read parses and validates the file. Environment overrides are re-applied
// so NAP_UPLOAD_ENDPOINT keeps winning over the file.
func (w *Watcher) read() (snapshot, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := load(bytes.NewReader(data), os.LookupEnv)
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, mtime: info.ModTime(), hash: sha256.Sum256(data)}, nil
}
