// Package mock provides in-memory mock implementations of the
// [audio.CaptureSource], [audio.CaptureDevice], and [audio.Track] interfaces
// for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	dev := mock.NewDevice()
//	src := &mock.Source{OpenResult: dev}
//	// ... session.Start(ctx) ...
//	dev.Emit([]byte{1, 2, 3})
//	dev.FinalizeFragments = [][]byte{{4, 5}}
//	// ... session.Stop(ctx) ...
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/nap/pkg/audio"
)

// ─── Track ────────────────────────────────────────────────────────────────────

// Track is a mock implementation of [audio.Track].
type Track struct {
	mu sync.Mutex

	// LabelResult is returned by [Track.Label]. Defaults to "mock microphone".
	LabelResult string

	// CallCountStop records how many times Stop was called.
	CallCountStop int
}

// Kind implements [audio.Track]. Always returns "audio".
func (t *Track) Kind() string { return "audio" }

// Label implements [audio.Track].
func (t *Track) Label() string {
	if t.LabelResult == "" {
		return "mock microphone"
	}
	return t.LabelResult
}

// Stop implements [audio.Track]. Increments CallCountStop.
func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CallCountStop++
}

// Stops returns CallCountStop under the lock.
func (t *Track) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.CallCountStop
}

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [audio.CaptureDevice].
// Set the exported fields before use; inspect the Call* fields after.
type Device struct {
	mu       sync.Mutex
	listener func(audio.Fragment)

	// TrackList is returned by [Device.Tracks].
	TrackList []*Track

	// MIMETypeResult is returned by [Device.MIMEType]. Defaults to audio/wav.
	MIMETypeResult string

	// StartError is returned by [Device.Start].
	StartError error

	// FinalizeError is returned by [Device.Finalize] after FinalizeFragments
	// have been delivered.
	FinalizeError error

	// FinalizeFragments are delivered to the listener during Finalize, before
	// the acknowledgment, the way a real recorder flushes its tail.
	FinalizeFragments [][]byte

	// FinalizeBlock makes Finalize wait for ctx to expire instead of
	// acknowledging. Used to exercise Stop timeouts.
	FinalizeBlock bool

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountFinalize records how many times Finalize was called.
	CallCountFinalize int

	// CallCountOnFragment records how many times OnFragment was called.
	CallCountOnFragment int
}

// NewDevice returns a Device with a single mock track.
func NewDevice() *Device {
	return &Device{TrackList: []*Track{{}}}
}

// OnFragment implements [audio.CaptureDevice].
func (d *Device) OnFragment(cb func(audio.Fragment)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountOnFragment++
	d.listener = cb
}

// Start implements [audio.CaptureDevice]. Returns StartError.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStart++
	return d.StartError
}

// Finalize implements [audio.CaptureDevice]. Delivers FinalizeFragments, then
// returns FinalizeError.
func (d *Device) Finalize(ctx context.Context) error {
	d.mu.Lock()
	d.CallCountFinalize++
	tail := d.FinalizeFragments
	d.FinalizeFragments = nil
	block := d.FinalizeBlock
	ferr := d.FinalizeError
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	for _, data := range tail {
		d.Emit(data)
	}
	return ferr
}

// Tracks implements [audio.CaptureDevice].
func (d *Device) Tracks() []audio.Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]audio.Track, len(d.TrackList))
	for i, t := range d.TrackList {
		out[i] = t
	}
	return out
}

// MIMEType implements [audio.CaptureDevice].
func (d *Device) MIMEType() string {
	if d.MIMETypeResult == "" {
		return audio.MIMETypeWAV
	}
	return d.MIMETypeResult
}

// Emit delivers data to the registered listener as the next fragment. Use
// this in tests to simulate audio arriving from the microphone. Emit is a
// no-op when no listener is registered.
func (d *Device) Emit(data []byte) {
	d.mu.Lock()
	cb := d.listener
	d.mu.Unlock()
	if cb != nil {
		cb(audio.Fragment{Data: data})
	}
}

// TrackStops returns the total number of Stop calls across all tracks.
func (d *Device) TrackStops() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range d.TrackList {
		n += t.Stops()
	}
	return n
}

// ─── Source ───────────────────────────────────────────────────────────────────

// OpenCall records the arguments of a single [Source.Open] invocation.
type OpenCall struct {
	// Constraints is the constraints argument passed to Open.
	Constraints audio.Constraints
}

// Source is a mock implementation of [audio.CaptureSource].
type Source struct {
	mu sync.Mutex

	// OpenResult is the device returned by Open. When Devices is non-empty it
	// takes precedence and each Open call consumes the next entry.
	OpenResult audio.CaptureDevice

	// Devices are handed out one per Open call, in order.
	Devices []audio.CaptureDevice

	// OpenError is the error returned by Open.
	OpenError error

	// OpenCalls records all Open invocations.
	OpenCalls []OpenCall
}

// Open implements [audio.CaptureSource].
func (s *Source) Open(_ context.Context, c audio.Constraints) (audio.CaptureDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCalls = append(s.OpenCalls, OpenCall{Constraints: c})
	if s.OpenError != nil {
		return nil, s.OpenError
	}
	if len(s.Devices) > 0 {
		d := s.Devices[0]
		s.Devices = s.Devices[1:]
		return d, nil
	}
	return s.OpenResult, nil
}

// Opens returns the number of Open calls so far.
func (s *Source) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.OpenCalls)
}
