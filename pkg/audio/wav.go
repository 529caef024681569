package audio

import (
	"encoding/binary"
	"errors"
	"math"
)

// WAVHeaderSize is the length of the canonical RIFF/WAVE header produced by
// [BuildWAVHeader]. Denoiser output strips exactly this many bytes to recover
// the PCM payload.
const WAVHeaderSize = 44

// bitsPerSample is fixed at 16 for the signed little-endian PCM audio the
// whole pipeline operates on.
const bitsPerSample = 16

// ErrUnknownFormat is returned by [SniffFormat] when the buffer matches no
// recognised container signature.
var ErrUnknownFormat = errors.New("audio: unrecognised format")

// FormatKind identifies a sniffed audio container format.
type FormatKind string

const (
	FormatWAV FormatKind = "wav"
	FormatMP3 FormatKind = "mp3"
)

// BuildWAVHeader constructs the canonical 44-byte RIFF/WAVE header for a PCM
// payload of dataLen bytes. All multi-byte fields are little-endian.
func BuildWAVHeader(sampleRate, channels, bits, dataLen int) [WAVHeaderSize]byte {
	byteRate := sampleRate * channels * bits / 8
	blockAlign := channels * bits / 8

	var h [WAVHeaderSize]byte

	// RIFF chunk descriptor
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataLen)) // file size − 8
	copy(h[8:12], "WAVE")

	// fmt sub-chunk
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(h[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(h[34:36], uint16(bits))       // bits per sample

	// data sub-chunk
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataLen))

	return h
}

// PCMToWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container. The input slice is not modified; the returned slice is
// freshly allocated header ++ payload.
func PCMToWAV(pcm []byte, sampleRate, channels int) []byte {
	header := BuildWAVHeader(sampleRate, channels, bitsPerSample, len(pcm))
	buf := make([]byte, WAVHeaderSize+len(pcm))
	copy(buf, header[:])
	copy(buf[WAVHeaderSize:], pcm)
	return buf
}

// StripWAVHeader returns the PCM payload of a canonical WAV buffer, or the
// input unchanged when it is too short to carry a header.
func StripWAVHeader(wav []byte) []byte {
	if len(wav) <= WAVHeaderSize {
		return wav
	}
	return wav[WAVHeaderSize:]
}

// SniffFormat inspects the leading bytes of buf and classifies the container.
// WAV requires the "RIFF" magic at offset 0 and "WAVE" at offset 8. MP3 is
// detected by the frame-sync pattern: the first eleven bits all set
// (first byte 0xFF, second byte's top three bits set).
func SniffFormat(buf []byte) (FormatKind, error) {
	if len(buf) >= 12 && string(buf[0:4]) == "RIFF" && string(buf[8:12]) == "WAVE" {
		return FormatWAV, nil
	}
	if len(buf) >= 2 && buf[0] == 0xFF && buf[1]&0xE0 == 0xE0 {
		return FormatMP3, nil
	}
	return "", ErrUnknownFormat
}

// RMS returns the root-mean-square energy of a 16-bit signed little-endian
// PCM buffer. Returns 0 for buffers shorter than one sample. The result is
// expressed in the same units as PCM sample values (0–32 767).
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// ChunkDurationMs returns the duration of a PCM audio chunk in milliseconds,
// based on the sample rate and channel count. Returns 0 for invalid inputs.
func ChunkDurationMs(chunk []byte, sampleRate, channels int) int {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * channels * (bitsPerSample / 8)
	return len(chunk) * 1000 / bytesPerSec
}
