package session

import (
	"github.com/samvaad-ai/samvaad/internal/orchestrate"
	"github.com/samvaad-ai/samvaad/internal/synth"
)

// Outbound event types sent to the client.
const (
	EventTranscription    = "transcription"
	EventAIResponse       = "ai:response"
	EventTTSAudio         = "tts:audio"
	EventError            = "error"
	EventConnectionStatus = "connection:status"
)

// Event is one outbound message for a session's client.
type Event struct {
	// Type is one of the Event* constants.
	Type string

	// Payload is the event body; its concrete type depends on Type.
	Payload any
}

// EmitFunc delivers outbound events to the client. It is called from the
// session's event loop only, so implementations need not be reentrant per
// session.
type EmitFunc func(Event)

// TranscriptPayload is the body of a transcription event.
type TranscriptPayload struct {
	// Text is the recognized utterance.
	Text string `json:"text"`

	// Language is the language reported by the recognizer, when known.
	Language string `json:"language,omitempty"`

	// Confidence is the recognizer's confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// DurationSec is the length of the recognized audio in seconds.
	DurationSec float64 `json:"durationSec"`
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	// Message is a human-readable description.
	Message string `json:"message"`

	// Code is a stable machine-readable identifier.
	Code string `json:"code"`
}

// StatusPayload is the body of a connection:status event.
type StatusPayload struct {
	// Quality tags the connection health.
	Quality string `json:"quality"`
}

// Error codes carried by ErrorPayload.
const (
	CodeTranscriptionFailed = "TRANSCRIPTION_FAILED"
	CodeGenerationFailed    = "GENERATION_FAILED"
	CodeSynthesisFailed     = "SYNTHESIS_FAILED"
)

// ReplyPayload aliases the orchestrator reply for the ai:response event.
type ReplyPayload = orchestrate.GeneratedReply

// AudioPayload aliases the synthesized audio for the tts:audio event.
type AudioPayload = synth.SynthesizedAudio
