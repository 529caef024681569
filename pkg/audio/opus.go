package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// Browser clients capture 48 kHz mono Opus at 20 ms frame size.
const (
	opusSampleRate  = 48000
	opusChannels    = 1
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
)

// OpusDecoder wraps a gopus Opus decoder for a single client stream.
// Each stream gets its own decoder to maintain decoder state correctly
// across consecutive packets. Not safe for concurrent use.
type OpusDecoder struct {
	dec *gopus.Decoder
}

// NewOpusDecoder creates a decoder configured for 48 kHz mono browser audio.
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode decodes an Opus packet into PCM int16 samples and returns the result
// as a little-endian byte slice at 48 kHz mono.
func (d *OpusDecoder) Decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, opusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	return Int16sToBytes(pcm), nil
}

// SampleRate returns the decoder's output sample rate in Hz.
func (d *OpusDecoder) SampleRate() int { return opusSampleRate }

// Int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}

// PCMToFloat32Mono converts 16-bit little-endian PCM to normalised float32
// samples in [-1, 1], downmixing stereo to mono when channels is 2.
func PCMToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels == 2 {
		pcm = StereoToMono(pcm)
	}
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out
}
