package session_test

import (
	"io"
	"testing"
	"time"

	"github.com/MrWong99/nap/internal/session"
)

func TestNewArtifact_CopiesInput(t *testing.T) {
	t.Parallel()

	data := []byte("abc")
	art := session.NewArtifact(data, "audio/wav")
	data[0] = 'x'
	if got := string(art.Bytes()); got != "abc" {
		t.Errorf("Bytes() = %q, want %q", got, "abc")
	}

	out := art.Bytes()
	out[1] = 'x'
	if got := string(art.Bytes()); got != "abc" {
		t.Errorf("Bytes() after caller write = %q, want %q", got, "abc")
	}

	r, err := io.ReadAll(art.Reader())
	if err != nil || string(r) != "abc" {
		t.Errorf("Reader() = %q, %v", r, err)
	}
}

func TestArtifact_Duration(t *testing.T) {
	t.Parallel()

	art := session.NewArtifact(nil, "audio/wav")
	if art.Duration() != 0 {
		t.Errorf("Duration() without bounds = %v, want 0", art.Duration())
	}
	art.StartedAt = time.Unix(100, 0)
	art.StoppedAt = time.Unix(103, 0)
	if art.Duration() != 3*time.Second {
		t.Errorf("Duration() = %v, want 3s", art.Duration())
	}
}
