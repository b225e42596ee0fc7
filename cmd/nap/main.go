// Command nap records audio from a microphone and sends the recording to an
// inference endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/nap/internal/app"
	"github.com/MrWong99/nap/internal/config"
	"github.com/MrWong99/nap/internal/notify"
	"github.com/MrWong99/nap/internal/observe"
	"github.com/MrWong99/nap/pkg/audio"
	"github.com/MrWong99/nap/pkg/audio/ffmpeg"
	"github.com/MrWong99/nap/pkg/audio/portaudio"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (optional)")
	envPath := flag.String("env", ".env", "dotenv file to load before reading the config")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "nap: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg = config.Default()
		config.ApplyEnv(cfg, os.LookupEnv)
		err = config.Validate(cfg)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "nap: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "nap: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.ParseLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("nap starting",
		"version", version,
		"config", *configPath,
		"endpoint", cfg.Upload.Endpoint,
		"device", cfg.Capture.Device,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	// ── Registry ──────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	var closers []func() error
	registerBuiltins(reg, &closers)

	source, err := reg.CreateCapture(cfg.Capture)
	if err != nil {
		slog.Error("failed to create capture source", "device", cfg.Capture.Device, "err", err)
		return 1
	}
	notifier, err := reg.CreateNotifier(cfg.Notify)
	if err != nil {
		slog.Error("failed to create notifier", "backend", cfg.Notify.Backend, "err", err)
		return 1
	}

	opts := []app.Option{
		app.WithNotifier(notifier),
		app.WithLogLevel(level),
	}
	for _, fn := range closers {
		opts = append(opts, app.WithCloser(fn))
	}
	application, err := app.New(cfg, source, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *configPath != "" {
		w, err := config.NewWatcher(*configPath, application.ApplyConfig,
			config.WithErrorHandler(func(err error) {
				_ = notifier.Notify(ctx, notify.Error("Config reload failed", err.Error()))
			}),
		)
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	printStartupSummary(cfg, reg.CaptureDevices())

	// ── Run ───────────────────────────────────────────────────────────────────
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	var srv *http.Server
	if cfg.Server.ListenAddr != "" {
		srv = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           application.Handler(tel.Handler()),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("http surface listening", "addr", cfg.Server.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		// Leaving the command loop ends the process.
		defer cancelRun()
		return application.Run(gctx, os.Stdin, os.Stdout)
	})

	runErr := g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Built-in backends ─────────────────────────────────────────────────────────

// registerBuiltins wires the capture sources and notification backends that
// ship with nap. Sources holding library state append their Close to closers.
func registerBuiltins(reg *config.Registry, closers *[]func() error) {
	reg.RegisterCapture("ffmpeg", func(c config.CaptureConfig) (audio.CaptureSource, error) {
		var opts []ffmpeg.Option
		if bin := c.OptionString("binary", ""); bin != "" {
			opts = append(opts, ffmpeg.WithBinary(bin))
		}
		opts = append(opts,
			ffmpeg.WithInput(c.OptionString("input_format", ""), c.OptionString("input_device", "")),
			ffmpeg.WithChunkSize(c.OptionInt("chunk_size", 0)),
		)
		return ffmpeg.New(opts...), nil
	})

	reg.RegisterCapture("portaudio", func(c config.CaptureConfig) (audio.CaptureSource, error) {
		src := portaudio.New(portaudio.WithFramesPerBuffer(c.OptionInt("frames_per_buffer", 0)))
		*closers = append(*closers, src.Close)
		return src, nil
	})

	reg.RegisterNotifier(config.NotifyTerminal, func(c config.NotifyConfig) (notify.Notifier, error) {
		return withClipboard(notify.NewTerminal(os.Stdout), c.Clipboard), nil
	})

	reg.RegisterNotifier(config.NotifyDesktop, func(c config.NotifyConfig) (notify.Notifier, error) {
		return withClipboard(notify.NewDesktop("nap", ""), c.Clipboard), nil
	})

	for _, name := range reg.CaptureDevices() {
		slog.Debug("registered capture source", "name", name)
	}
}

func withClipboard(n notify.Notifier, enabled bool) notify.Notifier {
	if !enabled {
		return n
	}
	return notify.WithClipboard(n)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, devices []string) {
	fmt.Println("╔═══════════════════════════════════════════════╗")
	fmt.Println("║             nap: startup summary              ║")
	fmt.Println("╠═══════════════════════════════════════════════╣")
	printRow("Capture", fmt.Sprintf("%s (%d Hz, %d ch)", cfg.Capture.Device, cfg.Capture.SampleRate, cfg.Capture.Channels))
	printRow("Available", fmt.Sprint(devices))
	printRow("Endpoint", cfg.Upload.Endpoint)
	printRow("Field/file", cfg.Upload.Field+" / "+cfg.Upload.Filename)
	printRow("Notify", string(cfg.Notify.Backend))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	} else {
		printRow("Listen addr", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════════════╝")
}

func printRow(key, value string) { fmt.Println(formatRow(key, value)) }

// formatRow pads value to the box width, cutting it on a character boundary.
func formatRow(key, value string) string {
	if r := []rune(value); len(r) > 29 {
		value = string(r[:28]) + "…"
	}
	return fmt.Sprintf("║  %-12s : %-29s ║", key, value)
}
