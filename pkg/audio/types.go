package audio

// Fragment is one chunk of raw audio bytes delivered by a [CaptureDevice].
// Fragments are the atomic unit of capture: concatenating every fragment of a
// recording in delivery order yields the recording's bytes.
type Fragment struct {
	// Data holds the bytes of this chunk. The device hands ownership to the
	// listener; it will not modify Data after delivery.
	Data []byte
}
