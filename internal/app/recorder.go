package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MrWong99/nap/internal/notify"
	"github.com/MrWong99/nap/internal/observe"
	"github.com/MrWong99/nap/internal/session"
	"github.com/MrWong99/nap/internal/upload"
	"github.com/MrWong99/nap/pkg/audio"
)

// Toggle labels, mirroring the single record button.
const (
	LabelStart = "Start Recording"
	LabelStop  = "Stop Recording"
)

// msgNoAudio is shown when Send is used before anything was recorded.
const msgNoAudio = "No audio recorded!"

// Recorder is the user-facing surface of nap: one toggle, one send action
// and playback of the latest recording. Every action catches its error,
// logs it, and shows exactly one notification; none of them panic or leave
// the controller in an intermediate state.
//
// All methods are safe for concurrent use.
type Recorder struct {
	controller *session.Controller
	client     *upload.Client
	notifier   notify.Notifier
	metrics    *observe.Metrics
}

// NewRecorder wires a Recorder. All arguments are required except m, which
// defaults to [observe.DefaultMetrics].
func NewRecorder(c *session.Controller, client *upload.Client, n notify.Notifier, m *observe.Metrics) *Recorder {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Recorder{controller: c, client: client, notifier: n, metrics: m}
}

// Label returns the current toggle label.
func (r *Recorder) Label() string {
	if r.controller.IsActive() {
		return LabelStop
	}
	return LabelStart
}

// Toggle starts a recording when none is active and stops it otherwise.
// On stop the new artifact replaces the previously held one.
func (r *Recorder) Toggle(ctx context.Context) error {
	if r.controller.IsActive() {
		return r.stop(ctx)
	}
	return r.start(ctx)
}

func (r *Recorder) start(ctx context.Context) error {
	if err := r.controller.Start(ctx); err != nil {
		observe.Logger(ctx).Error("error accessing microphone", "err", err)
		r.notify(ctx, notify.Error("Error accessing microphone", err.Error()))
		return err
	}
	r.notify(ctx, notify.Info("Recording started", "toggle again to stop"))
	return nil
}

func (r *Recorder) stop(ctx context.Context) error {
	art, err := r.controller.Stop(ctx)
	if err != nil && art == nil {
		observe.Logger(ctx).Error("stop recording", "err", err)
		r.notify(ctx, notify.Error("Stop failed", err.Error()))
		return err
	}
	msg := fmt.Sprintf("%d bytes, %s", art.Size(), art.Duration().Round(100*time.Millisecond))
	if err != nil {
		// Device did not acknowledge; what arrived so far is still kept.
		r.notify(ctx, notify.Error("Recording stopped early", msg+": "+err.Error()))
		return err
	}
	r.notify(ctx, notify.Info("Recording stopped", msg))
	return nil
}

// Send uploads the held artifact and shows the server response. Without an
// artifact it shows "No audio recorded!" and makes no network call. The
// artifact is kept after any failure so Send can simply be repeated.
func (r *Recorder) Send(ctx context.Context) (*upload.Result, error) {
	art := r.controller.Artifact()
	res, err := r.client.Send(ctx, art)
	switch {
	case err == nil:
		n := notify.Info("Server Response", res.String())
		n.Copyable = true
		r.notify(ctx, n)
		return res, nil
	case errors.Is(err, upload.ErrNoArtifact):
		r.notify(ctx, notify.Error(msgNoAudio, ""))
	case errors.Is(err, upload.ErrUploadRejected):
		r.notify(ctx, notify.Error("Server rejected the recording", err.Error()))
	case errors.Is(err, upload.ErrResponseMalformed):
		r.notify(ctx, notify.Error("Unreadable server response", err.Error()))
	default:
		r.notify(ctx, notify.Error("Error sending audio", err.Error()))
	}
	observe.Logger(ctx).Error("error sending audio", "err", err)
	return nil, err
}

// Playback writes the held artifact to w as a playable WAV file and
// returns a summary of its audio. Returns [upload.ErrNoArtifact] when nothing
// was recorded yet.
func (r *Recorder) Playback(ctx context.Context, w io.Writer) (Summary, error) {
	art := r.controller.Artifact()
	if art == nil {
		r.notify(ctx, notify.Error(msgNoAudio, ""))
		return Summary{}, upload.ErrNoArtifact
	}
	data := art.Bytes()
	if art.MIMEType() == audio.MIMETypeWAV {
		data = audio.FixWAVSizes(data)
	}
	if _, err := w.Write(data); err != nil {
		err = fmt.Errorf("app: write recording: %w", err)
		r.notify(ctx, notify.Error("Playback failed", err.Error()))
		return Summary{}, err
	}

	sum, err := Summarize(data)
	if err != nil {
		// The bytes were written; only the summary is unavailable.
		slog.Debug("cannot summarize recording", "session_id", art.SessionID, "err", err)
		sum = Summary{Bytes: len(data)}
	}
	r.notify(ctx, notify.Info("Recording", sum.String()))
	return sum, nil
}

func (r *Recorder) notify(ctx context.Context, n notify.Notification) {
	r.metrics.RecordNotification(ctx, string(n.Level))
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, n); err != nil {
		slog.Warn("notification failed", "title", n.Title, "err", err)
	}
}
