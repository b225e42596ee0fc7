// Package audio defines the host capture API that nap records from.
//
// The two primary abstractions are:
//
//   - [CaptureSource]: grants access to a microphone and returns a
//     [CaptureDevice].
//   - [CaptureDevice]: a live input stream that delivers [Fragment] values to
//     a single listener, acknowledges finalization, and exposes the hardware
//     [Track] values that must be stopped to release the microphone.
//
// Implementations live in device-specific adapter packages (audio/ffmpeg,
// audio/portaudio). The interfaces are intentionally narrow so the session
// controller stays decoupled from how audio is actually captured.
package audio

import (
	"context"
	"errors"
)

// MIMETypeWAV is the MIME type of WAV recordings.
const MIMETypeWAV = "audio/wav"

// ErrPermissionDenied is returned by [CaptureSource.Open] when the host
// refuses access to the microphone.
var ErrPermissionDenied = errors.New("audio: microphone permission denied")

// ErrNoDevice is returned by [CaptureSource.Open] when no input device exists.
var ErrNoDevice = errors.New("audio: no input device available")

// Constraints selects which media kinds a [CaptureSource] should capture.
type Constraints struct {
	// Audio requests a microphone stream. It must be true; video capture is
	// not supported by any nap source.
	Audio bool

	// SampleRate in Hz. Zero lets the source choose.
	SampleRate int

	// Channels: 1 for mono, 2 for stereo. Zero lets the source choose.
	Channels int
}

// Track is one underlying hardware input feeding a [CaptureDevice].
type Track interface {
	// Kind returns the media kind of the track ("audio").
	Kind() string

	// Label is a human-readable device name, used in logs.
	Label() string

	// Stop releases the hardware behind the track. Stop is idempotent:
	// calling it on an already stopped track is a no-op.
	Stop()
}

// CaptureDevice is a live microphone stream handed out by [CaptureSource.Open].
//
// The lifecycle is OnFragment → Start → Finalize, followed by stopping every
// [Track]. Fragments are delivered serially, in capture order, from a single
// goroutine owned by the device.
type CaptureDevice interface {
	// OnFragment registers cb as the fragment-arrival listener. Only one
	// listener may be registered; subsequent calls replace the previous one.
	// The callback must not block.
	OnFragment(cb func(Fragment))

	// Start begins capturing. Fragments may arrive any time after Start
	// returns nil.
	Start() error

	// Finalize asks the device to flush pending audio and returns once the
	// last fragment has been delivered to the listener. No fragment is
	// delivered after Finalize returns. It returns ctx.Err() if ctx expires
	// before the device acknowledges.
	Finalize(ctx context.Context) error

	// Tracks enumerates the hardware tracks backing this device.
	Tracks() []Track

	// MIMEType reports the container format of the delivered bytes.
	MIMEType() string
}

// CaptureSource is the entry point for microphone access.
//
// Implementations must be safe for concurrent use.
type CaptureSource interface {
	// Open requests a live capture device satisfying c. Open may block while
	// the host asks the user for permission. It returns an error wrapping
	// [ErrPermissionDenied] or [ErrNoDevice] when no device can be granted.
	Open(ctx context.Context, c Constraints) (CaptureDevice, error)
}

// StopTracks stops every track of d and returns how many were stopped.
func StopTracks(d CaptureDevice) int {
	tracks := d.Tracks()
	for _, t := range tracks {
		t.Stop()
	}
	return len(tracks)
}
