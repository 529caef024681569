package audio

import "time"

// Frame represents a single chunk of audio data flowing through the pipeline.
// Frames are the atomic unit of audio transport — received from client
// streams, scored by VAD, normalised by the codec, and buffered per segment.
type Frame struct {
	// PCM audio data, 16-bit little-endian signed samples.
	Data []byte

	// SampleRate in Hz (e.g., 48000 for browser capture, 16000 for STT).
	SampleRate int

	// Channels: 1 for mono (STT input), 2 for stereo capture.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// DurationOf returns the playback duration of the frame's PCM payload.
func (f Frame) DurationOf() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
