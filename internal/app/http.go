package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/MrWong99/nap/internal/health"
	"github.com/MrWong99/nap/internal/observe"
	"github.com/MrWong99/nap/pkg/audio"
)

// status is the JSON body of GET /status.
type status struct {
	State     string `json:"state"`
	Label     string `json:"label"`
	SessionID string `json:"session_id,omitempty"`
	Buffered  int    `json:"buffered_bytes"`
	Artifact  *struct {
		Bytes    int    `json:"bytes"`
		MIMEType string `json:"mime_type"`
	} `json:"artifact,omitempty"`
	Endpoint string `json:"endpoint"`
}

// Handler returns the local HTTP surface:
//
//   - GET /healthz, /readyz: liveness and readiness (capture source wired,
//     inference endpoint reachable).
//   - GET /metrics: the given Prometheus handler, when non-nil.
//   - GET /status: controller state as JSON.
//   - GET /artifact: the latest recording; 404 when there is none.
//
// Every route is wrapped with [observe.Middleware].
func (a *App) Handler(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()

	health.New(
		health.NotNil("capture", func() bool { return a.source != nil }, "no capture source configured"),
		health.Endpoint("endpoint", a.client.Endpoint),
	).Register(mux)

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	mux.HandleFunc("GET /status", a.serveStatus)
	mux.HandleFunc("GET /artifact", a.serveArtifact)

	return observe.Middleware(a.metrics)(mux)
}

func (a *App) serveStatus(w http.ResponseWriter, _ *http.Request) {
	info := a.controller.Info()
	st := status{
		State:     info.State.String(),
		Label:     a.recorder.Label(),
		SessionID: info.SessionID,
		Buffered:  info.Bytes,
		Endpoint:  a.client.Endpoint(),
	}
	if art := a.controller.Artifact(); art != nil {
		st.Artifact = &struct {
			Bytes    int    `json:"bytes"`
			MIMEType string `json:"mime_type"`
		}{art.Size(), art.MIMEType()}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

func (a *App) serveArtifact(w http.ResponseWriter, r *http.Request) {
	art := a.controller.Artifact()
	if art == nil {
		http.Error(w, "no recording", http.StatusNotFound)
		return
	}
	data := art.Bytes()
	if art.MIMEType() == audio.MIMETypeWAV {
		data = audio.FixWAVSizes(data)
	}
	w.Header().Set("Content-Type", art.MIMEType())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, a.cfg.Upload.Filename))
	if _, err := w.Write(data); err != nil {
		observe.Logger(r.Context()).Debug("write artifact", "err", err)
	}
}
