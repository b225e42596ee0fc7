package config

// ConfigDiff describes what changed between two configs.
// LogLevel and Endpoint can be applied at runtime; everything else listed in
// RestartRequired only takes effect after a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	EndpointChanged bool
	NewEndpoint     string

	// RestartRequired names the changed keys that cannot be hot-reloaded.
	RestartRequired []string
}

// HasChanges reports whether anything differs.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged || d.EndpointChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Upload.Endpoint != new.Upload.Endpoint {
		d.EndpointChanged = true
		d.NewEndpoint = new.Upload.Endpoint
	}

	restart := func(key string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, key)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("capture.device", old.Capture.Device != new.Capture.Device)
	restart("capture.sample_rate", old.Capture.SampleRate != new.Capture.SampleRate)
	restart("capture.channels", old.Capture.Channels != new.Capture.Channels)
	restart("capture.finalize_timeout", old.Capture.FinalizeTimeout != new.Capture.FinalizeTimeout)
	restart("capture.options", !sameOptions(old.Capture.Options, new.Capture.Options))
	restart("upload.field", old.Upload.Field != new.Upload.Field)
	restart("upload.filename", old.Upload.Filename != new.Upload.Filename)
	restart("upload.timeout", old.Upload.Timeout != new.Upload.Timeout)
	restart("notify", old.Notify != new.Notify)

	return d
}

// sameOptions compares two option maps by their scalar values.
func sameOptions(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		switch av.(type) {
		case map[string]any, []any:
			// Nested values are not compared structurally.
			continue
		}
		if av != bv {
			return false
		}
	}
	return true
}
