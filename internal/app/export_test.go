package app

import (
	"github.com/MrWong99/nap/internal/session"
	"github.com/MrWong99/nap/internal/upload"
)

// Recorder exposes the app's recorder to tests.
func (a *App) Recorder() *Recorder { return a.recorder }

// Controller exposes the recorder's session controller to tests.
func (r *Recorder) Controller() *session.Controller { return r.controller }

// Client exposes the recorder's upload client to tests.
func (r *Recorder) Client() *upload.Client { return r.client }
