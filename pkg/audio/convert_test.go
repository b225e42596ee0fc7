package audio_test

import (
	"encoding/binary"
	"slices"
	"testing"

	"github.com/MrWong99/nap/pkg/audio"
)

func samples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func TestChannelConversion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func([]byte) []byte
		in   []int16
		want []int16
	}{
		{"mono to stereo", audio.MonoToStereo, []int16{100, 200, 300}, []int16{100, 100, 200, 200, 300, 300}},
		{"stereo to mono", audio.StereoToMono, []int16{100, 200, -100, -200}, []int16{150, -150}},
		{"stereo to mono at full scale", audio.StereoToMono, []int16{32767, 32767}, []int16{32767}},
		{"stereo to mono partial frame", audio.StereoToMono, []int16{1, 2, 3}, []int16{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := samples(tt.fn(audio.Int16ToBytes(tt.in)))
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	pcm := audio.Int16ToBytes([]int16{1000, 2000})
	got := samples(audio.ResampleMono16(pcm, 16000, 48000))
	if len(got) != 6 {
		t.Fatalf("got %d samples, want 6", len(got))
	}
	if got[0] != 1000 {
		t.Errorf("first sample = %d, want 1000", got[0])
	}
	if last := got[len(got)-1]; last < 1800 || last > 2200 {
		t.Errorf("last sample = %d, want close to 2000", last)
	}

	down := samples(audio.ResampleMono16(audio.Int16ToBytes([]int16{100, 200, 300, 400, 500, 600}), 48000, 16000))
	if !slices.Equal(down, []int16{100, 400}) {
		t.Errorf("downsample = %v, want [100 400]", down)
	}
}

func TestResampleStereo16(t *testing.T) {
	t.Parallel()

	pcm := audio.Int16ToBytes([]int16{100, -100, 300, -300})
	got := samples(audio.ResampleStereo16(pcm, 16000, 32000))
	if len(got) != 8 {
		t.Fatalf("got %d samples, want 8", len(got))
	}
	for i := 0; i < len(got); i += 2 {
		if got[i] != -got[i+1] {
			t.Errorf("frame %d: channels mixed: L=%d R=%d", i/2, got[i], got[i+1])
		}
	}
}

func TestResample_InvalidRates(t *testing.T) {
	t.Parallel()

	pcm := audio.Int16ToBytes([]int16{1, 2, 3})
	for _, rates := range [][2]int{{0, 16000}, {16000, 0}, {-1, 8000}, {16000, 16000}} {
		if got := audio.ResampleMono16(pcm, rates[0], rates[1]); len(got) != len(pcm) {
			t.Errorf("rates %v: len = %d, want unchanged %d", rates, len(got), len(pcm))
		}
	}
}

func TestConvert(t *testing.T) {
	t.Parallel()

	stereo48k := audio.Format{SampleRate: 48000, Channels: 2}
	mono16k := audio.Format{SampleRate: 16000, Channels: 1}

	in := make([]int16, 0, 96)
	for range 48 {
		in = append(in, 1000, 3000)
	}
	got := samples(audio.Convert(audio.Int16ToBytes(in), stereo48k, mono16k))
	if len(got) != 16 {
		t.Fatalf("got %d samples, want 16", len(got))
	}
	for i, s := range got {
		if s != 2000 {
			t.Fatalf("sample %d = %d, want 2000", i, s)
		}
	}

	same := audio.Int16ToBytes([]int16{7, 8})
	if out := audio.Convert(append(same, 0xff), mono16k, mono16k); len(out) != 4 {
		t.Errorf("matching formats with odd trailing byte: len = %d, want 4", len(out))
	}
}

func TestFormat_String(t *testing.T) {
	t.Parallel()

	for f, want := range map[audio.Format]string{
		{SampleRate: 16000, Channels: 1}: "16000Hz mono",
		{SampleRate: 48000, Channels: 2}: "48000Hz stereo",
		{SampleRate: 44100, Channels: 6}: "44100Hz 6ch",
	} {
		if got := f.String(); got != want {
			t.Errorf("%+v.String() = %q, want %q", f, got, want)
		}
	}
}
