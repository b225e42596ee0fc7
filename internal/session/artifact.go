package session

import (
	"bytes"
	"io"
	"time"
)

// Artifact is the finalized, immutable audio payload of one completed
// recording session. It is produced exactly once per session by
// [Controller.Stop].
type Artifact struct {
	data     []byte
	mimeType string

	// SessionID identifies the recording session that produced the artifact.
	SessionID string

	// StartedAt and StoppedAt bound the capture window.
	StartedAt time.Time
	StoppedAt time.Time

	// Fragments is the number of non-empty fragments that were concatenated.
	Fragments int
}

// NewArtifact builds an artifact from data. The slice is copied so later
// writes by the caller cannot affect the artifact.
func NewArtifact(data []byte, mimeType string) *Artifact {
	return &Artifact{data: bytes.Clone(data), mimeType: mimeType}
}

// Bytes returns a copy of the artifact content.
func (a *Artifact) Bytes() []byte { return bytes.Clone(a.data) }

// Reader returns a reader over the artifact content without copying it.
func (a *Artifact) Reader() io.Reader { return bytes.NewReader(a.data) }

// Size returns the artifact length in bytes.
func (a *Artifact) Size() int { return len(a.data) }

// MIMEType returns the content type tag, e.g. "audio/wav".
func (a *Artifact) MIMEType() string { return a.mimeType }

// Duration is the wall-clock length of the capture window.
func (a *Artifact) Duration() time.Duration {
	if a.StartedAt.IsZero() || a.StoppedAt.IsZero() {
		return 0
	}
	return a.StoppedAt.Sub(a.StartedAt)
}
