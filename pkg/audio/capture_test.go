package audio_test

import (
	"testing"

	"github.com/MrWong99/nap/pkg/audio"
	"github.com/MrWong99/nap/pkg/audio/mock"
)

func TestStopTracks(t *testing.T) {
	t.Parallel()

	dev := mock.NewDevice()
	dev.TrackList = []*mock.Track{{}, {}, {}}

	if n := audio.StopTracks(dev); n != 3 {
		t.Errorf("StopTracks = %d, want 3", n)
	}
	for i, tr := range dev.TrackList {
		if tr.Stops() != 1 {
			t.Errorf("track %d stops = %d, want 1", i, tr.Stops())
		}
	}
}
