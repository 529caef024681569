// Package stt defines the Transcriber interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription engine (a local whisper.cpp server,
// in-process whisper bindings, or a hosted API) and exposes a uniform batch
// interface: a finished utterance goes in as PCM, text comes out. Utterance
// boundaries are decided upstream by the speech segmenter, so providers do
// not need to maintain streaming session state.
//
// Implementations must be safe for concurrent use; the dispatcher may hold a
// single provider instance across many connections.
package stt

import "context"

// Request describes a single utterance to transcribe. Audio is raw 16-bit
// signed little-endian PCM without any container header.
type Request struct {
	// PCM is the utterance audio. Must be non-empty.
	PCM []byte

	// SampleRate is the audio sample rate in Hz. Common value: 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by most
	// engines). Implementors may downmix stereo internally.
	Channels int

	// Language is the ISO 639-1 language hint (e.g. "en", "hi"). An empty
	// string lets the engine auto-detect, if supported.
	Language string
}

// Result is a committed transcription of one utterance.
type Result struct {
	// Text is the transcribed text. May be empty when the utterance contained
	// no recognizable speech.
	Text string

	// Language is the language the engine detected or was hinted with. May be
	// empty when the engine does not report it.
	Language string

	// Confidence is the engine's confidence in [0, 1], or 0 when the engine
	// does not report one.
	Confidence float64
}

// Transcriber is the abstraction over any batch STT backend.
//
// Transcribe blocks until the engine returns or ctx is cancelled. An empty
// Result.Text with a nil error means the audio contained no speech; callers
// should treat that as a silent no-op rather than a failure.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (Result, error)
}
