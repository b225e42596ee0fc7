package ffmpeg_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/nap/pkg/audio"
	"github.com/MrWong99/nap/pkg/audio/ffmpeg"
)

// writeScript installs body as an executable shell script standing in for
// ffmpeg.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	return path
}

// fakeFFmpeg writes a script that prints payload and then idles until
// interrupted.
func fakeFFmpeg(t *testing.T, payload string) string {
	t.Helper()
	return writeScript(t, "trap 'exit 0' INT\nprintf '%s' '"+payload+"'\nwhile :; do sleep 0.01; done\n")
}

func TestOpen_MissingBinary(t *testing.T) {
	t.Parallel()

	src := ffmpeg.New(ffmpeg.WithBinary(filepath.Join(t.TempDir(), "does-not-exist")))
	_, err := src.Open(context.Background(), audio.Constraints{Audio: true})
	if !errors.Is(err, audio.ErrNoDevice) {
		t.Fatalf("err = %v, want ErrNoDevice", err)
	}
}

func TestOpen_RequiresAudio(t *testing.T) {
	t.Parallel()

	src := ffmpeg.New()
	if _, err := src.Open(context.Background(), audio.Constraints{}); err == nil {
		t.Fatal("Open without Audio succeeded")
	}
}

func TestDevice_RecordsUntilFinalize(t *testing.T) {
	t.Parallel()

	bin := fakeFFmpeg(t, "RIFFfakewave")
	src := ffmpeg.New(ffmpeg.WithBinary(bin), ffmpeg.WithChunkSize(4))

	dev, err := src.Open(context.Background(), audio.Constraints{Audio: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if dev.MIMEType() != audio.MIMETypeWAV {
		t.Errorf("MIMEType() = %q", dev.MIMEType())
	}

	var (
		mu        sync.Mutex
		got       []byte
		fragments int
	)
	dev.OnFragment(func(f audio.Fragment) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, f.Data...)
		fragments++
	})
	if err := dev.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Give the script time to write before asking it to stop.
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dev.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if n := audio.StopTracks(dev); n != 1 {
		t.Errorf("StopTracks = %d, want 1", n)
	}

	mu.Lock()
	defer mu.Unlock()
	if string(got) != "RIFFfakewave" {
		t.Errorf("fragments = %q, want %q", got, "RIFFfakewave")
	}
	if fragments < 3 {
		t.Errorf("fragments = %d, want the payload split by the 4-byte chunk size", fragments)
	}
}

func TestDevice_StopWithoutFinalize(t *testing.T) {
	t.Parallel()

	bin := fakeFFmpeg(t, "x")
	dev, err := ffmpeg.New(ffmpeg.WithBinary(bin)).Open(context.Background(), audio.Constraints{Audio: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := dev.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		audio.StopTracks(dev)
		audio.StopTracks(dev)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("StopTracks did not return")
	}
}

func TestDevice_StartFailsWhenInputMissing(t *testing.T) {
	t.Parallel()

	bin := writeScript(t, "echo 'default: No such file or directory' >&2\nexit 1\n")
	src := ffmpeg.New(ffmpeg.WithBinary(bin), ffmpeg.WithStartupGrace(5*time.Second))

	dev, err := src.Open(context.Background(), audio.Constraints{Audio: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	begin := time.Now()
	err = dev.Start()
	if !errors.Is(err, audio.ErrNoDevice) {
		t.Fatalf("Start err = %v, want ErrNoDevice", err)
	}
	if !strings.Contains(err.Error(), "No such file or directory") {
		t.Errorf("Start err = %q, want stderr excerpt", err)
	}
	if elapsed := time.Since(begin); elapsed > 4*time.Second {
		t.Errorf("Start took %v, want it to return on exit", elapsed)
	}
	if n := audio.StopTracks(dev); n != 1 {
		t.Errorf("StopTracks = %d, want 1", n)
	}
}

func TestDevice_FinalizeReportsEarlyExit(t *testing.T) {
	t.Parallel()

	bin := writeScript(t, "printf 'RIFF'\nsleep 0.2\necho 'device lost' >&2\nexit 1\n")
	src := ffmpeg.New(ffmpeg.WithBinary(bin), ffmpeg.WithStartupGrace(10*time.Millisecond))

	dev, err := src.Open(context.Background(), audio.Constraints{Audio: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var (
		mu  sync.Mutex
		got []byte
	)
	dev.OnFragment(func(f audio.Fragment) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, f.Data...)
	})
	if err := dev.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer audio.StopTracks(dev)

	// Let the script die on its own before stopping.
	time.Sleep(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = dev.Finalize(ctx)
	if err == nil {
		t.Fatal("Finalize succeeded after ffmpeg failed")
	}
	if !strings.Contains(err.Error(), "device lost") {
		t.Errorf("Finalize err = %q, want stderr excerpt", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if string(got) != "RIFF" {
		t.Errorf("fragments = %q, want the bytes written before the exit", got)
	}
}
