// Package app wires all nap subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates the session controller,
// upload client and recorder surface, Run executes the interactive command
// loop, Handler exposes the local HTTP surface, and Shutdown tears everything
// down in order.
//
// For testing, inject mock implementations via functional options
// (WithNotifier, WithMetrics, ...).
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/MrWong99/nap/internal/config"
	"github.com/MrWong99/nap/internal/notify"
	"github.com/MrWong99/nap/internal/observe"
	"github.com/MrWong99/nap/internal/session"
	"github.com/MrWong99/nap/internal/upload"
	"github.com/MrWong99/nap/pkg/audio"
)

// defaultPlaybackPath is where "play" saves the recording when no path is
// given.
const defaultPlaybackPath = "nap-recording.wav"

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	source   audio.CaptureSource
	notifier notify.Notifier
	metrics  *observe.Metrics
	logLevel *slog.LevelVar
	client   *upload.Client

	controller *session.Controller
	recorder   *Recorder

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithNotifier sets the notification backend. Defaults to a terminal
// notifier on stdout.
func WithNotifier(n notify.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets hot reloads adjust the process log level.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithUploadClient injects an upload client instead of creating one from
// config.
func WithUploadClient(c *upload.Client) Option {
	return func(a *App) { a.client = c }
}

// WithCloser registers fn to run during Shutdown, after the controller is
// closed. Used for capture sources that hold library state.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App recording from source with the settings in cfg.
func New(cfg *config.Config, source audio.CaptureSource, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if source == nil {
		return nil, errors.New("app: capture source is required")
	}
	a := &App{cfg: cfg, source: source}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.notifier == nil {
		a.notifier = notify.NewTerminal(os.Stdout)
	}

	if a.client == nil {
		c, err := upload.New(cfg.Upload.Endpoint,
			upload.WithField(cfg.Upload.Field),
			upload.WithFilename(cfg.Upload.Filename),
			upload.WithTimeout(cfg.Upload.Timeout),
			upload.WithMetrics(a.metrics),
		)
		if err != nil {
			return nil, fmt.Errorf("app: init upload client: %w", err)
		}
		a.client = c
	}

	a.controller = session.New(session.Config{
		Source: source,
		Constraints: audio.Constraints{
			Audio:      true,
			SampleRate: cfg.Capture.SampleRate,
			Channels:   cfg.Capture.Channels,
		},
		FinalizeTimeout: cfg.Capture.FinalizeTimeout,
		Metrics:         a.metrics,
	})
	a.recorder = NewRecorder(a.controller, a.client, a.notifier, a.metrics)
	return a, nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run reads commands line by line from in until "quit", EOF or ctx is
// cancelled. An empty line toggles recording, like pressing the record
// button. Command errors are reported through the notifier and never end
// the loop.
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
		close(lines)
	}()

	a.prompt(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if quit := a.exec(ctx, line, out); quit {
				return nil
			}
			a.prompt(out)
		}
	}
}

func (a *App) prompt(out io.Writer) {
	fmt.Fprintf(out, "[%s] toggle (enter) | send | play [file] | status | quit > ", a.recorder.Label())
}

// exec runs one command line and reports whether the loop should end.
func (a *App) exec(ctx context.Context, line string, out io.Writer) bool {
	fields := strings.Fields(line)
	cmd := ""
	if len(fields) > 0 {
		cmd = strings.ToLower(fields[0])
	}

	switch cmd {
	case "", "t", "toggle", "r", "record":
		_ = a.recorder.Toggle(ctx)
	case "s", "send":
		_, _ = a.recorder.Send(ctx)
	case "p", "play":
		path := defaultPlaybackPath
		if len(fields) > 1 {
			path = fields[1]
		}
		if err := a.savePlayback(ctx, path); err == nil {
			fmt.Fprintf(out, "saved to %s\n", path)
		}
	case "status":
		a.printStatus(out)
	case "q", "quit", "exit":
		return true
	case "h", "help", "?":
		fmt.Fprintln(out, "commands: <enter>/toggle, send, play [file], status, quit")
	default:
		fmt.Fprintf(out, "unknown command %q (try help)\n", cmd)
	}
	return false
}

func (a *App) savePlayback(ctx context.Context, path string) error {
	if a.controller.Artifact() == nil {
		_, err := a.recorder.Playback(ctx, io.Discard)
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		slog.Error("create playback file", "path", path, "err", err)
		return err
	}
	_, perr := a.recorder.Playback(ctx, f)
	if err := f.Close(); err != nil && perr == nil {
		perr = err
	}
	return perr
}

func (a *App) printStatus(out io.Writer) {
	info := a.controller.Info()
	fmt.Fprintf(out, "state: %s\n", info.State)
	if info.SessionID != "" {
		fmt.Fprintf(out, "session: %s\n", info.SessionID)
	}
	if info.State == session.StateActive {
		fmt.Fprintf(out, "buffered: %d bytes in %d fragments\n", info.Bytes, info.Fragments)
	}
	if art := a.controller.Artifact(); art != nil {
		fmt.Fprintf(out, "artifact: %d bytes (%s)\n", art.Size(), art.MIMEType())
	}
	fmt.Fprintf(out, "endpoint: %s\n", a.client.Endpoint())
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of a config change: the log
// level and the upload endpoint. Other changes are logged as requiring a
// restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(ParseLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.EndpointChanged {
		if err := a.client.SetEndpoint(d.NewEndpoint); err != nil {
			slog.Warn("ignoring new upload endpoint", "endpoint", d.NewEndpoint, "err", err)
		} else {
			slog.Info("upload endpoint changed", "endpoint", d.NewEndpoint)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart to take effect", "keys", d.RestartRequired)
	}
}

// ParseLevel maps a config log level to its slog level.
func ParseLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases an active capture device without producing an artifact
// and runs the registered closers. Safe to call more than once.
func (a *App) Shutdown(_ context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if err := a.controller.Close(); err != nil {
			errs = append(errs, err)
		}
		for _, fn := range a.closers {
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
		slog.Info("nap shut down")
	})
	return errors.Join(errs...)
}
