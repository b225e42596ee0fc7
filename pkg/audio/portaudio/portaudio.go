// Package portaudio provides an [audio.CaptureSource] backed by the PortAudio
// default input device.
//
// PortAudio delivers 16-bit samples through a real-time callback. The device
// buffers them and, on Finalize, emits the whole recording as a single WAV
// fragment (header plus PCM). This matches a media recorder that was started
// without a timeslice: one data event right before the stop acknowledgment.
//
// The PortAudio library is initialised lazily on the first Open and kept
// alive until [Source.Close].
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/nap/pkg/audio"
)

const (
	defaultSampleRate   = 16000
	defaultChannels     = 1
	defaultFramesPerBuf = 1024
)

// Compile-time assertion that Source implements audio.CaptureSource.
var _ audio.CaptureSource = (*Source)(nil)

// Option is a functional option for configuring a Source.
type Option func(*Source)

// WithFramesPerBuffer sets the number of frames per PortAudio callback.
// Defaults to 1024.
func WithFramesPerBuffer(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.framesPerBuf = n
		}
	}
}

// Source opens PortAudio capture devices.
type Source struct {
	framesPerBuf int

	mu          sync.Mutex
	initialized bool
}

// New creates a Source with the given options.
func New(opts ...Option) *Source {
	s := &Source{framesPerBuf: defaultFramesPerBuf}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open initialises PortAudio if needed and opens a stream on the default
// input device.
func (s *Source) Open(ctx context.Context, c audio.Constraints) (audio.CaptureDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("portaudio: %w", err)
	}
	if !c.Audio {
		return nil, errors.New("portaudio: only audio capture is supported")
	}
	if err := s.init(); err != nil {
		return nil, err
	}

	info, err := portaudio.DefaultInputDevice()
	if err != nil || info == nil {
		return nil, fmt.Errorf("portaudio: %w: %v", audio.ErrNoDevice, err)
	}
	if info.MaxInputChannels <= 0 {
		return nil, fmt.Errorf("portaudio: %w: %q has no input channels", audio.ErrNoDevice, info.Name)
	}

	sr := c.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}
	ch := c.Channels
	if ch <= 0 {
		ch = defaultChannels
	}
	want := audio.Format{SampleRate: sr, Channels: ch}

	// Capture in the device's native format and convert on Finalize; many
	// microphones reject 16 kHz streams.
	native := want
	if info.DefaultSampleRate > 0 {
		native.SampleRate = int(info.DefaultSampleRate)
	}
	native.Channels = min(ch, info.MaxInputChannels)
	if native != want {
		slog.Debug("portaudio: converting from native format",
			"device", info.Name, "native", native, "format", want)
	}

	d := &device{
		native: native,
		format: want,
		label:  info.Name,
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: native.Channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(native.SampleRate),
		FramesPerBuffer: s.framesPerBuf,
	}
	stream, err := portaudio.OpenStream(params, d.process)
	if err != nil {
		return nil, fmt.Errorf("portaudio: %w: open stream: %v", audio.ErrNoDevice, err)
	}
	d.stream = stream
	return d, nil
}

// Close terminates the PortAudio library. Devices opened from s must be
// released first.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil
	}
	s.initialized = false
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("portaudio: terminate: %w", err)
	}
	return nil
}

func (s *Source) init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio: %w: initialize: %v", audio.ErrNoDevice, err)
	}
	s.initialized = true
	return nil
}

// ---- device -----------------------------------------------------------------

type device struct {
	stream *portaudio.Stream
	native audio.Format
	format audio.Format
	label  string

	mu        sync.Mutex
	listener  func(audio.Fragment)
	pcm       []byte
	started   bool
	finalized bool

	closeOnce sync.Once
}

// process is the PortAudio callback. It must not block, so it only copies the
// samples into the pending PCM buffer.
func (d *device) process(in []int16) {
	if len(in) == 0 {
		return
	}
	b := audio.Int16ToBytes(in)
	d.mu.Lock()
	if d.started && !d.finalized {
		d.pcm = append(d.pcm, b...)
	}
	d.mu.Unlock()
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
		return errors.New("portaudio: device already started")
	}
	d.started = true
	d.mu.Unlock()

	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start stream: %w", err)
	}
	return nil
}

// Finalize stops the stream and delivers the buffered recording, converted
// to the requested format, as one WAV fragment.
func (d *device) Finalize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("portaudio: finalize: %w", err)
	}
	d.mu.Lock()
	if !d.started || d.finalized {
		d.mu.Unlock()
		return errors.New("portaudio: device not recording")
	}
	d.mu.Unlock()

	stopErr := d.stream.Stop()

	d.mu.Lock()
	d.finalized = true
	pcm := d.pcm
	d.pcm = nil
	cb := d.listener
	d.mu.Unlock()

	if cb != nil && len(pcm) > 0 {
		pcm = audio.Convert(pcm, d.native, d.format)
		cb(audio.Fragment{Data: audio.EncodeWAV(pcm, d.format.SampleRate, d.format.Channels)})
	}
	if stopErr != nil {
		return fmt.Errorf("portaudio: stop stream: %w", stopErr)
	}
	return nil
}

func (d *device) Tracks() []audio.Track { return []audio.Track{(*streamTrack)(d)} }

func (d *device) MIMEType() string { return audio.MIMETypeWAV }

// streamTrack exposes the PortAudio stream as the device's single track.
type streamTrack device

func (t *streamTrack) Kind() string  { return "audio" }
func (t *streamTrack) Label() string { return t.label }

// Stop closes the stream. Closing an active stream aborts it first.
func (t *streamTrack) Stop() {
	t.closeOnce.Do(func() {
		if err := t.stream.Close(); err != nil {
			slog.Debug("portaudio: close stream", "device", t.label, "err", err)
		}
	})
}
