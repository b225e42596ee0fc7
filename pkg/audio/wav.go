package audio

import (
	"bytes"
	"encoding/binary"
)

// bitsPerSample is fixed at 16: every nap device captures signed 16-bit
// little-endian PCM.
const bitsPerSample = 16

// wavHeaderSize is the size of the canonical RIFF/WAV header.
const wavHeaderSize = 44

// UnknownLength marks the RIFF and data chunk sizes of a WAV header written
// before the recording length is known. ffmpeg uses the same convention when
// streaming WAV to a pipe.
const UnknownLength = 0xFFFFFFFF

// WAVHeader returns a 44-byte RIFF/WAV header for dataSize bytes of PCM.
// Pass [UnknownLength] when the size is not known yet.
func WAVHeader(sampleRate, channels int, dataSize uint32) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	riffSize := uint32(UnknownLength)
	if dataSize != UnknownLength {
		riffSize = 36 + dataSize
	}

	buf := make([]byte, wavHeaderSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], riffSize) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)      // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], dataSize)

	return buf
}

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a complete
// RIFF/WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	out := make([]byte, 0, wavHeaderSize+len(pcm))
	out = append(out, WAVHeader(sampleRate, channels, uint32(len(pcm)))...)
	return append(out, pcm...)
}

// Int16ToBytes converts 16-bit samples to little-endian PCM bytes.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// FixWAVSizes returns a copy of a streamed WAV file whose RIFF and data chunk
// sizes were left unknown (or are too large) with the sizes rewritten to match
// the actual length. Data that is not a RIFF/WAVE file is returned unchanged.
func FixWAVSizes(data []byte) []byte {
	out := bytes.Clone(data)
	if len(out) < 12 || string(out[0:4]) != "RIFF" || string(out[8:12]) != "WAVE" {
		return out
	}
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))

	off := 12
	for off+8 <= len(out) {
		id := string(out[off : off+4])
		size := int64(binary.LittleEndian.Uint32(out[off+4 : off+8]))
		if id == "data" {
			if avail := int64(len(out) - off - 8); size > avail {
				binary.LittleEndian.PutUint32(out[off+4:off+8], uint32(avail))
			}
			break
		}
		off += 8 + int(size) + int(size&1)
	}
	return out
}
