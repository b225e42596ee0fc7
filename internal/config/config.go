// Package config provides the configuration schema, loader, hot-reload
// watcher and component registry for nap.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// NotifyBackend selects how notifications reach the user.
type NotifyBackend string

const (
	// NotifyTerminal prints notifications to stdout.
	NotifyTerminal NotifyBackend = "terminal"

	// NotifyDesktop raises OS desktop notifications.
	NotifyDesktop NotifyBackend = "desktop"
)

// IsValid reports whether b is a recognised notification backend.
func (b NotifyBackend) IsValid() bool {
	return b == NotifyTerminal || b == NotifyDesktop
}

// Config is the root configuration structure for nap.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Capture CaptureConfig `yaml:"capture"`
	Upload  UploadConfig  `yaml:"upload"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// ServerConfig holds logging and local HTTP surface settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the health/metrics/artifact server
	// (e.g., ":9090"). Empty disables the HTTP surface.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`
}

// CaptureConfig selects and tunes the capture device.
type CaptureConfig struct {
	// Device selects the registered capture source ("ffmpeg", "portaudio").
	Device string `yaml:"device"`

	// SampleRate in Hz. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo. Defaults to 1.
	Channels int `yaml:"channels"`

	// FinalizeTimeout bounds how long stopping waits for the device.
	// Defaults to 10s.
	FinalizeTimeout time.Duration `yaml:"finalize_timeout"`

	// Options holds device-specific values, e.g. for ffmpeg:
	// binary, input_format, input_device; for portaudio: frames_per_buffer.
	Options map[string]any `yaml:"options"`
}

// UploadConfig describes the inference endpoint.
type UploadConfig struct {
	// Endpoint is the URL artifacts are POSTed to. Hot-reloadable and
	// overridable with the NAP_UPLOAD_ENDPOINT environment variable.
	Endpoint string `yaml:"endpoint"`

	// Field is the multipart field name. Defaults to "audioFile".
	Field string `yaml:"field"`

	// Filename is the filename reported for the audio part.
	// Defaults to "audio.wav".
	Filename string `yaml:"filename"`

	// Timeout bounds one upload round-trip. Defaults to 30s.
	Timeout time.Duration `yaml:"timeout"`
}

// NotifyConfig selects the notification backend.
type NotifyConfig struct {
	// Backend is "terminal" (default) or "desktop".
	Backend NotifyBackend `yaml:"backend"`

	// Clipboard copies server responses to the system clipboard.
	Clipboard bool `yaml:"clipboard"`
}

// OptionString returns the string option key, or def when absent.
func (c CaptureConfig) OptionString(key, def string) string {
	if v, ok := c.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}

// OptionInt returns the integer option key, or def when absent.
func (c CaptureConfig) OptionInt(key string, def int) int {
	switch v := c.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}
