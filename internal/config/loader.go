package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvUploadEndpoint overrides upload.endpoint when set.
const EnvUploadEndpoint = "NAP_UPLOAD_ENDPOINT"

// Defaults applied by [ApplyDefaults].
const (
	DefaultCaptureDevice   = "ffmpeg"
	DefaultSampleRate      = 16000
	DefaultChannels        = 1
	DefaultFinalizeTimeout = 10 * time.Second
	DefaultEndpoint        = "http://localhost:5000/predict"
	DefaultField           = "audioFile"
	DefaultFilename        = "audio.wav"
	DefaultUploadTimeout   = 30 * time.Second
)

// ValidCaptureDevices lists the capture sources nap ships with.
// Used by [Validate] to warn about unrecognised device names.
var ValidCaptureDevices = []string{"ffmpeg", "portaudio"}

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := load(f, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Environment overrides are not applied.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	return load(r, nil)
}

func load(r io.Reader, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if lookup != nil {
		ApplyEnv(cfg, lookup)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied, for running without
// a config file.
func Default() *Config {
	cfg := &Config{}
	ApplyEnv(cfg, os.LookupEnv)
	ApplyDefaults(cfg)
	return cfg
}

// LoadDotEnv loads environment variables from the given .env files (default
// ".env"). Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
		slog.Debug("loaded environment file", "path", p)
	}
	return nil
}

// ApplyEnv overrides config values from the environment.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvUploadEndpoint); ok && v != "" {
		cfg.Upload.Endpoint = v
	}
}

// ApplyDefaults fills zero values with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Capture.Device == "" {
		cfg.Capture.Device = DefaultCaptureDevice
	}
	if cfg.Capture.SampleRate == 0 {
		cfg.Capture.SampleRate = DefaultSampleRate
	}
	if cfg.Capture.Channels == 0 {
		cfg.Capture.Channels = DefaultChannels
	}
	if cfg.Capture.FinalizeTimeout == 0 {
		cfg.Capture.FinalizeTimeout = DefaultFinalizeTimeout
	}
	if cfg.Upload.Endpoint == "" {
		cfg.Upload.Endpoint = DefaultEndpoint
	}
	if cfg.Upload.Field == "" {
		cfg.Upload.Field = DefaultField
	}
	if cfg.Upload.Filename == "" {
		cfg.Upload.Filename = DefaultFilename
	}
	if cfg.Upload.Timeout == 0 {
		cfg.Upload.Timeout = DefaultUploadTimeout
	}
	if cfg.Notify.Backend == "" {
		cfg.Notify.Backend = NotifyTerminal
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Capture
	if cfg.Capture.Device != "" && !slices.Contains(ValidCaptureDevices, cfg.Capture.Device) {
		slog.Warn("unknown capture device; it must be registered by the caller",
			"device", cfg.Capture.Device,
			"known", ValidCaptureDevices,
		)
	}
	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must not be negative", cfg.Capture.SampleRate))
	} else if cfg.Capture.SampleRate > 0 && cfg.Capture.SampleRate < 8000 {
		slog.Warn("capture.sample_rate is unusually low", "sample_rate", cfg.Capture.SampleRate)
	}
	if cfg.Capture.Channels < 0 || cfg.Capture.Channels > 2 {
		errs = append(errs, fmt.Errorf("capture.channels %d is out of range [1, 2]", cfg.Capture.Channels))
	}
	if cfg.Capture.FinalizeTimeout < 0 {
		errs = append(errs, fmt.Errorf("capture.finalize_timeout %s must not be negative", cfg.Capture.FinalizeTimeout))
	}

	// Upload
	if cfg.Upload.Endpoint != "" {
		if err := validateEndpoint(cfg.Upload.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("upload.endpoint: %w", err))
		}
	}
	if cfg.Upload.Timeout < 0 {
		errs = append(errs, fmt.Errorf("upload.timeout %s must not be negative", cfg.Upload.Timeout))
	}

	// Notify
	if cfg.Notify.Backend != "" && !cfg.Notify.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("notify.backend %q is invalid; valid values: terminal, desktop", cfg.Notify.Backend))
	}

	return errors.Join(errs...)
}

func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must use http or https", endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", endpoint)
	}
	return nil
}
