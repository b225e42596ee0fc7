package app

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Summary describes a decoded recording.
type Summary struct {
	Bytes      int
	SampleRate int
	Channels   int
	BitDepth   int
	Samples    int
	Duration   time.Duration

	// Peak is the largest absolute sample value relative to full scale, in
	// [0, 1]. Zero means silence.
	Peak float64
}

// String renders the summary for display.
func (s Summary) String() string {
	if s.SampleRate == 0 {
		return fmt.Sprintf("%d bytes", s.Bytes)
	}
	return fmt.Sprintf("%d bytes, %s, %d Hz, %d ch, %d-bit, peak %.0f%%",
		s.Bytes, s.Duration.Round(10*time.Millisecond), s.SampleRate, s.Channels, s.BitDepth, s.Peak*100)
}

// Summarize decodes a WAV recording and reports its format, length and
// peak level.
func Summarize(data []byte) (Summary, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Summary{}, errors.New("app: not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Summary{}, fmt.Errorf("app: decode WAV: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return Summary{}, errors.New("app: WAV has no format")
	}

	frames := buf.NumFrames()
	return Summary{
		Bytes:      len(data),
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
		BitDepth:   int(dec.BitDepth),
		Samples:    len(buf.Data),
		Duration:   time.Duration(frames) * time.Second / time.Duration(buf.Format.SampleRate),
		Peak:       peak(buf),
	}, nil
}

// peak returns the normalised peak amplitude of buf.
func peak(buf *goaudio.IntBuffer) float64 {
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}
	fullScale := float64(int64(1) << (depth - 1))
	var maxAbs int
	for _, v := range buf.Data {
		if v < 0 {
			v = -v
		}
		if v > maxAbs {
			maxAbs = v
		}
	}
	return math.Min(float64(maxAbs)/fullScale, 1)
}
