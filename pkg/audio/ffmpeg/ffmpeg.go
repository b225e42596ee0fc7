// Package ffmpeg provides an [audio.CaptureSource] that records the default
// microphone by running an ffmpeg subprocess.
//
// ffmpeg streams a WAV container to its stdout; every read from the pipe is
// delivered to the listener as one [audio.Fragment], so concatenating the
// fragments of a recording yields a playable WAV file (with the "unknown
// length" header ffmpeg writes for non-seekable outputs).
//
// Usage:
//
//	src := ffmpeg.New(ffmpeg.WithInput("pulse", "default"))
//	dev, err := src.Open(ctx, audio.Constraints{Audio: true})
//	dev.OnFragment(func(f audio.Fragment) { ... })
//	dev.Start()
//	...
//	dev.Finalize(ctx)
//	audio.StopTracks(dev)
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/nap/pkg/audio"
)

const (
	defaultBinary      = "ffmpeg"
	defaultInputFormat = "alsa"
	defaultInputDevice = "default"
	defaultSampleRate  = 16000
	defaultChannels    = 1
	defaultChunkSize   = 4096
	defaultGrace       = 250 * time.Millisecond
	maxStderrExcerpt   = 200
)

// Compile-time assertion that Source implements audio.CaptureSource.
var _ audio.CaptureSource = (*Source)(nil)

// Option is a functional option for configuring a Source.
type Option func(*Source)

// WithBinary overrides the ffmpeg executable. Defaults to "ffmpeg" looked up
// in PATH.
func WithBinary(path string) Option {
	return func(s *Source) {
		s.binary = path
	}
}

// WithInput sets the ffmpeg input format and device, e.g. ("alsa", "default")
// on Linux, ("avfoundation", ":0") on macOS or ("dshow", "audio=Microphone")
// on Windows.
func WithInput(format, device string) Option {
	return func(s *Source) {
		if format != "" {
			s.inputFormat = format
		}
		if device != "" {
			s.inputDevice = device
		}
	}
}

// WithChunkSize sets the maximum size of a single fragment in bytes.
// Defaults to 4096.
func WithChunkSize(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithStartupGrace sets how long Start waits for ffmpeg to fail on a missing
// or busy input device before reporting the capture as running. Defaults to
// 250ms.
func WithStartupGrace(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.grace = d
		}
	}
}

// Source opens ffmpeg-backed capture devices.
type Source struct {
	binary      string
	inputFormat string
	inputDevice string
	chunkSize   int
	grace       time.Duration
}

// New creates a Source with the given options.
func New(opts ...Option) *Source {
	s := &Source{
		binary:      defaultBinary,
		inputFormat: defaultInputFormat,
		inputDevice: defaultInputDevice,
		chunkSize:   defaultChunkSize,
		grace:       defaultGrace,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open resolves the ffmpeg binary and prepares a device. The subprocess is not
// launched until [audio.CaptureDevice.Start] is called.
func (s *Source) Open(ctx context.Context, c audio.Constraints) (audio.CaptureDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	if !c.Audio {
		return nil, errors.New("ffmpeg: only audio capture is supported")
	}
	bin, err := exec.LookPath(s.binary)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %v", audio.ErrNoDevice, err)
	}

	sr := c.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}
	ch := c.Channels
	if ch <= 0 {
		ch = defaultChannels
	}

	d := &device{
		done:      make(chan struct{}),
		chunkSize: s.chunkSize,
		grace:     s.grace,
	}
	d.cmd = exec.Command(bin,
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-f", s.inputFormat, "-i", s.inputDevice,
		"-ac", strconv.Itoa(ch), "-ar", strconv.Itoa(sr),
		"-acodec", "pcm_s16le",
		"-f", "wav", "pipe:1",
	)
	d.cmd.Stderr = &d.stderr
	d.track = &processTrack{dev: d, label: s.inputFormat + ":" + s.inputDevice}
	return d, nil
}

// ---- device -----------------------------------------------------------------

// device is one ffmpeg capture subprocess. The read loop is the only goroutine
// that invokes the listener, so fragments are delivered serially.
type device struct {
	cmd       *exec.Cmd
	stdout    io.ReadCloser
	stderr    bytes.Buffer
	chunkSize int
	grace     time.Duration
	track     *processTrack

	mu       sync.Mutex
	listener func(audio.Fragment)
	started  bool

	// interrupted is set before Finalize signals the process, so an exit
	// without it means ffmpeg gave up on its own.
	interrupted atomic.Bool

	// done is closed when the read loop has drained stdout and reaped the
	// process. waitErr and stderr may only be read after done is closed.
	done    chan struct{}
	waitErr error
}

func (d *device) OnFragment(cb func(audio.Fragment)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listener = cb
}

func (d *device) Start() error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return errors.New("ffmpeg: device already started")
	}
	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	if err := d.cmd.Start(); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("ffmpeg: start: %w", err)
	}
	d.stdout = stdout
	d.started = true
	d.mu.Unlock()

	go d.readLoop()

	// ffmpeg opens the input after it starts, so a missing microphone only
	// shows up as an early exit.
	select {
	case <-d.done:
		return fmt.Errorf("ffmpeg: %w: %s", audio.ErrNoDevice, d.exitReason())
	case <-time.After(d.grace):
		return nil
	}
}

func (d *device) readLoop() {
	defer close(d.done)

	buf := make([]byte, d.chunkSize)
	for {
		n, err := d.stdout.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			d.mu.Lock()
			cb := d.listener
			d.mu.Unlock()
			if cb != nil {
				cb(audio.Fragment{Data: data})
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				slog.Debug("ffmpeg: read error", "err", err)
			}
			break
		}
	}

	d.waitErr = d.cmd.Wait()
	if d.interrupted.Load() {
		return
	}
	slog.Warn("ffmpeg: capture ended unexpectedly", "err", d.waitErr, "stderr", d.stderrExcerpt())
}

// exitReason describes why the process ended. Call only after done is closed.
func (d *device) exitReason() string {
	reason := "ffmpeg exited"
	if d.waitErr != nil {
		reason = d.waitErr.Error()
	}
	if msg := d.stderrExcerpt(); msg != "" {
		reason += ": " + msg
	}
	return reason
}

func (d *device) stderrExcerpt() string {
	msg := strings.TrimSpace(d.stderr.String())
	if r := []rune(msg); len(r) > maxStderrExcerpt {
		msg = string(r[:maxStderrExcerpt]) + "..."
	}
	return msg
}

// Finalize sends SIGINT, which makes ffmpeg flush its output and exit, then
// waits until the pipe is drained. If ffmpeg had already exited with an error
// before the signal, that error is returned.
func (d *device) Finalize(ctx context.Context) error {
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	if !started {
		return errors.New("ffmpeg: device not started")
	}

	select {
	case <-d.done:
		return d.earlyExit()
	default:
	}

	d.interrupted.Store(true)
	if err := d.cmd.Process.Signal(os.Interrupt); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			<-d.done
			return d.earlyExit()
		}
		_ = d.cmd.Process.Kill()
	}

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		_ = d.cmd.Process.Kill()
		<-d.done
		return fmt.Errorf("ffmpeg: finalize: %w", ctx.Err())
	}
}

// earlyExit reports a process that ended without being interrupted. A clean
// exit means the input simply ran out.
func (d *device) earlyExit() error {
	if d.waitErr == nil {
		return nil
	}
	return fmt.Errorf("ffmpeg: capture ended early: %s", d.exitReason())
}

func (d *device) Tracks() []audio.Track { return []audio.Track{d.track} }

func (d *device) MIMEType() string { return audio.MIMETypeWAV }

// ---- track ------------------------------------------------------------------

// processTrack represents the microphone held open by the ffmpeg process.
// Stopping it kills the process if it is still running.
type processTrack struct {
	dev   *device
	label string
	once  sync.Once
}

func (t *processTrack) Kind() string  { return "audio" }
func (t *processTrack) Label() string { return t.label }

func (t *processTrack) Stop() {
	t.once.Do(func() {
		d := t.dev
		d.mu.Lock()
		started := d.started
		d.mu.Unlock()
		if !started {
			return
		}
		select {
		case <-d.done:
			return
		default:
		}
		d.interrupted.Store(true)
		_ = d.cmd.Process.Kill()
		<-d.done
	})
}
