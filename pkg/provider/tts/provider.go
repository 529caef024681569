// Package tts defines the Synthesizer interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or a
// local Coqui instance) and presents a uniform batch interface: a complete
// reply goes in as text, encoded audio comes out. Voice validation, duration
// estimation, and connection probing live in the synth wrapper above the
// provider layer.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Voice describes a single voice available from a provider.
type Voice struct {
	// ID is the provider-assigned voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Language is the primary language of the voice, when the provider
	// reports one (e.g. "en", "hi").
	Language string
}

// Request describes one synthesis job.
type Request struct {
	// Text is the text to speak. Must be non-empty.
	Text string

	// VoiceID selects the voice. An empty string uses the provider default.
	VoiceID string
}

// Result carries the synthesized audio.
type Result struct {
	// Audio is the encoded audio payload.
	Audio []byte

	// MIMEType describes the encoding of Audio (e.g. "audio/mpeg",
	// "audio/wav").
	MIMEType string
}

// Synthesizer is the abstraction over any TTS backend.
type Synthesizer interface {
	// Synthesize converts req.Text to audio and blocks until the full payload
	// is available or ctx is cancelled.
	Synthesize(ctx context.Context, req Request) (Result, error)

	// ListVoices returns all voices available from this provider. The list
	// reflects the provider's current catalogue and may change between calls.
	ListVoices(ctx context.Context) ([]Voice, error)
}
