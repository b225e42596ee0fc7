// Package session implements the recording session lifecycle: acquiring a
// capture device, buffering its fragments in arrival order, and producing one
// immutable [Artifact] when the recording stops.
//
// A [Controller] walks through three states:
//
//	Idle --Start--> Active --Stop--> Finalized --Start--> Active ...
//
// At most one session is Active at a time. Start while Active and Stop while
// not Active fail with [ErrInvalidState]. A failed Start leaves the state
// unchanged. The capture device is released on every exit path, exactly once.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/nap/internal/observe"
	"github.com/MrWong99/nap/pkg/audio"
)

// defaultFinalizeTimeout bounds how long Stop waits for the device to
// acknowledge finalization.
const defaultFinalizeTimeout = 10 * time.Second

var (
	// ErrInvalidState is returned when Start is called while a session is
	// Active, or Stop is called while none is.
	ErrInvalidState = errors.New("session: invalid state")

	// ErrDeviceUnavailable is returned by Start when the capture source
	// cannot grant a device (permission denied, no microphone, ...).
	ErrDeviceUnavailable = errors.New("session: capture device unavailable")
)

// State is the lifecycle state of a [Controller].
type State int

const (
	// StateIdle is the initial state; no recording has completed yet.
	StateIdle State = iota

	// StateActive means a device is held and fragments are being buffered.
	StateActive

	// StateFinalized means the last session produced an artifact.
	StateFinalized
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Info is a snapshot of the controller's current session.
type Info struct {
	SessionID string
	State     State
	StartedAt time.Time
	Fragments int
	Bytes     int
}

// Config holds the dependencies of a [Controller].
type Config struct {
	// Source grants capture devices. Required.
	Source audio.CaptureSource

	// Constraints are passed to Source.Open. Audio is always forced to true.
	Constraints audio.Constraints

	// MIMEType tags every artifact. Devices reporting a different container
	// format are refused at Start. Defaults to audio/wav.
	MIMEType string

	// FinalizeTimeout bounds the wait for the device's finalize
	// acknowledgment. Defaults to 10s.
	FinalizeTimeout time.Duration

	// Metrics records session counters. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Controller owns the capture device and fragment buffer of the current
// recording. All exported methods are safe for concurrent use; Start and Stop
// are serialised.
type Controller struct {
	source          audio.CaptureSource
	constraints     audio.Constraints
	mimeType        string
	finalizeTimeout time.Duration
	metrics         *observe.Metrics

	// opMu serialises Start and Stop, which may block on the device.
	opMu sync.Mutex

	// mu guards everything below. The fragment listener only takes mu.
	mu        sync.Mutex
	state     State
	gen       uint64
	id        string
	device    audio.CaptureDevice
	release   func()
	buffer    [][]byte
	size      int
	startedAt time.Time
	artifact  *Artifact
}

// New creates an idle Controller.
func New(cfg Config) *Controller {
	c := &Controller{
		source:          cfg.Source,
		constraints:     cfg.Constraints,
		mimeType:        cfg.MIMEType,
		finalizeTimeout: cfg.FinalizeTimeout,
		metrics:         cfg.Metrics,
	}
	c.constraints.Audio = true
	if c.mimeType == "" {
		c.mimeType = audio.MIMETypeWAV
	}
	if c.finalizeTimeout <= 0 {
		c.finalizeTimeout = defaultFinalizeTimeout
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Start begins a new recording session. It requests a device from the
// capture source, registers the fragment listener on a fresh buffer and
// starts capture.
//
// Returns an error wrapping [ErrInvalidState] if a session is already Active
// and [ErrDeviceUnavailable] if no device could be acquired. On any error the
// state is unchanged and no device is left held.
func (c *Controller) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state == StateActive {
		id := c.id
		c.mu.Unlock()
		return fmt.Errorf("%w: recording already active (id=%s)", ErrInvalidState, id)
	}
	c.mu.Unlock()

	if c.source == nil {
		return fmt.Errorf("%w: no capture source configured", ErrDeviceUnavailable)
	}
	dev, err := c.source.Open(ctx, c.constraints)
	if err != nil {
		c.metrics.RecordRecording(ctx, "device_unavailable")
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	if dev == nil {
		c.metrics.RecordRecording(ctx, "device_unavailable")
		return fmt.Errorf("%w: source returned no device", ErrDeviceUnavailable)
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	if mime := dev.MIMEType(); mime != "" && mime != c.mimeType {
		audio.StopTracks(dev)
		c.metrics.RecordRecording(ctx, "device_unavailable")
		return fmt.Errorf("%w: device records %s, want %s", ErrDeviceUnavailable, mime, c.mimeType)
	}

	release := sync.OnceFunc(func() {
		n := audio.StopTracks(dev)
		slog.Debug("capture device released", "session_id", id.String(), "tracks", n)
	})

	c.mu.Lock()
	prev, prevID, prevStartedAt := c.state, c.id, c.startedAt
	c.gen++
	gen := c.gen
	c.state = StateActive
	c.id = id.String()
	c.device = dev
	c.release = release
	c.buffer = nil
	c.size = 0
	c.startedAt = time.Now()
	c.mu.Unlock()

	dev.OnFragment(c.listener(gen))

	if err := dev.Start(); err != nil {
		release()
		c.mu.Lock()
		c.gen++
		c.state = prev
		c.id = prevID
		c.startedAt = prevStartedAt
		c.device = nil
		c.release = nil
		c.buffer = nil
		c.size = 0
		c.mu.Unlock()
		c.metrics.RecordRecording(ctx, "device_unavailable")
		return fmt.Errorf("%w: start capture: %w", ErrDeviceUnavailable, err)
	}

	c.mu.Lock()
	c.artifact = nil
	c.mu.Unlock()

	c.metrics.ActiveRecordings.Add(ctx, 1)
	c.metrics.RecordRecording(ctx, "started")
	slog.Info("recording started", "session_id", id.String(), "tracks", len(dev.Tracks()))
	return nil
}

// listener returns the fragment callback for session generation gen. It only
// appends to the buffer; fragments from a stale session or empty fragments
// are dropped.
func (c *Controller) listener(gen uint64) func(audio.Fragment) {
	return func(f audio.Fragment) {
		if len(f.Data) == 0 {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen || c.state != StateActive {
			return
		}
		c.buffer = append(c.buffer, f.Data)
		c.size += len(f.Data)
	}
}

// Stop ends the Active session. It asks the device to finalize, waits for the
// acknowledgment, concatenates the buffered fragments in arrival order into
// one [Artifact] and releases the device.
//
// Returns an error wrapping [ErrInvalidState] if no session is Active. If the
// device fails to acknowledge, the session is still finalized with the
// fragments received so far and both the artifact and the error are returned.
func (c *Controller) Stop(ctx context.Context) (*Artifact, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state != StateActive {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: no active recording (state=%s)", ErrInvalidState, state)
	}
	dev := c.device
	release := c.release
	c.mu.Unlock()

	fctx, cancel := context.WithTimeout(ctx, c.finalizeTimeout)
	ferr := dev.Finalize(fctx)
	cancel()

	c.mu.Lock()
	data := make([]byte, 0, c.size)
	for _, b := range c.buffer {
		data = append(data, b...)
	}
	art := &Artifact{
		data:      data,
		mimeType:  c.mimeType,
		SessionID: c.id,
		StartedAt: c.startedAt,
		StoppedAt: time.Now(),
		Fragments: len(c.buffer),
	}
	c.gen++
	c.state = StateFinalized
	c.artifact = art
	c.device = nil
	c.release = nil
	c.buffer = nil
	c.size = 0
	c.mu.Unlock()

	release()

	c.metrics.ActiveRecordings.Add(ctx, -1)
	c.metrics.RecordingDuration.Record(ctx, art.Duration().Seconds())
	c.metrics.ArtifactSize.Record(ctx, int64(art.Size()))

	if ferr != nil {
		c.metrics.RecordRecording(ctx, "finalize_error")
		slog.Warn("recording finalized without device acknowledgment",
			"session_id", art.SessionID, "bytes", art.Size(), "err", ferr)
		return art, fmt.Errorf("session: finalize: %w", ferr)
	}
	c.metrics.RecordRecording(ctx, "finalized")
	slog.Info("recording stopped",
		"session_id", art.SessionID,
		"bytes", art.Size(),
		"fragments", art.Fragments,
		"duration", art.Duration(),
	)
	return art, nil
}

// Close releases the device of an Active session without producing an
// artifact. It is meant for process shutdown and is a no-op otherwise.
func (c *Controller) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return nil
	}
	release := c.release
	id := c.id
	c.gen++
	c.state = StateIdle
	c.device = nil
	c.release = nil
	c.buffer = nil
	c.size = 0
	c.mu.Unlock()

	release()
	c.metrics.ActiveRecordings.Add(context.Background(), -1)
	slog.Info("recording abandoned on shutdown", "session_id", id)
	return nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsActive reports whether a recording is in progress.
func (c *Controller) IsActive() bool { return c.State() == StateActive }

// Artifact returns the artifact of the last finalized session, or nil.
func (c *Controller) Artifact() *Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.artifact
}

// Info returns a snapshot of the current session.
func (c *Controller) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Info{
		SessionID: c.id,
		State:     c.state,
		StartedAt: c.startedAt,
		Fragments: len(c.buffer),
		Bytes:     c.size,
	}
}
