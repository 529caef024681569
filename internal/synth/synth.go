// Package synth turns generated replies into audio through one configured
// text-to-speech backend.
//
// The Synthesizer adds policy on top of a tts.Synthesizer: the voice must
// come from a configured allow-list (checked at construction, not on the
// first utterance), voices can be switched per detected language, and every
// result carries a spoken-duration estimate for the UI when the backend does
// not report one.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samvaad-ai/samvaad/pkg/provider/tts"
)

// DefaultTimeout bounds a single synthesis call.
const DefaultTimeout = 30 * time.Second

// wordsPerMinute is the speaking rate assumed by the duration estimate.
const wordsPerMinute = 150

// SynthesizedAudio is one spoken reply.
type SynthesizedAudio struct {
	// Audio is the encoded audio payload.
	Audio []byte `json:"-"`

	// MIMEType describes the payload encoding.
	MIMEType string `json:"mimeType"`

	// Format is the short format tag derived from MIMEType (mp3, wav).
	Format string `json:"format"`

	// DurationSec estimates the spoken length in seconds.
	DurationSec float64 `json:"durationSec"`

	// Voice is the voice the audio was rendered with.
	Voice string `json:"voice"`
}

// Synthesizer renders text with a fixed backend and voice policy.
type Synthesizer struct {
	backend      tts.Synthesizer
	voice        string
	voicesByLang map[string]string
	timeout      time.Duration
	logger       *slog.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithTimeout overrides the per-call timeout. Non-positive values are
// ignored.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLanguageVoice maps a language tag to a voice, overriding the default
// voice for utterances in that language.
func WithLanguageVoice(language, voice string) Option {
	return func(s *Synthesizer) {
		s.voicesByLang[language] = voice
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synthesizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Synthesizer speaking with voice. A non-empty allowedVoices
// list restricts both the default voice and every per-language voice; an
// unlisted voice is a configuration error here rather than a runtime
// fallback.
func New(backend tts.Synthesizer, voice string, allowedVoices []string, opts ...Option) (*Synthesizer, error) {
	if backend == nil {
		return nil, fmt.Errorf("synth: backend is required")
	}
	if voice == "" {
		return nil, fmt.Errorf("synth: voice is required")
	}

	s := &Synthesizer{
		backend:      backend,
		voice:        voice,
		voicesByLang: make(map[string]string),
		timeout:      DefaultTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if len(allowedVoices) > 0 {
		allowed := make(map[string]struct{}, len(allowedVoices))
		for _, v := range allowedVoices {
			allowed[v] = struct{}{}
		}
		if _, ok := allowed[s.voice]; !ok {
			return nil, fmt.Errorf("synth: voice %q is not in the allow-list", s.voice)
		}
		for lang, v := range s.voicesByLang {
			if _, ok := allowed[v]; !ok {
				return nil, fmt.Errorf("synth: voice %q for language %q is not in the allow-list", v, lang)
			}
		}
	}
	return s, nil
}

// Voice returns the default voice.
func (s *Synthesizer) Voice() string {
	return s.voice
}

// voiceFor picks the voice for a language tag.
func (s *Synthesizer) voiceFor(language string) string {
	if v, ok := s.voicesByLang[language]; ok {
		return v
	}
	return s.voice
}

// Synthesize renders text as speech. language selects a per-language voice
// when one is configured.
func (s *Synthesizer) Synthesize(ctx context.Context, text, language string) (SynthesizedAudio, error) {
	if strings.TrimSpace(text) == "" {
		return SynthesizedAudio{}, fmt.Errorf("synth: text is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	voice := s.voiceFor(language)
	res, err := s.backend.Synthesize(ctx, tts.Request{Text: text, VoiceID: voice})
	if err != nil {
		return SynthesizedAudio{}, fmt.Errorf("synthesizing speech: %w", err)
	}
	if len(res.Audio) == 0 {
		return SynthesizedAudio{}, fmt.Errorf("synth: backend returned no audio")
	}

	return SynthesizedAudio{
		Audio:       res.Audio,
		MIMEType:    res.MIMEType,
		Format:      formatTag(res.MIMEType),
		DurationSec: EstimateDuration(text),
		Voice:       voice,
	}, nil
}

// TestConnection reports whether the backend answers a minimal real call.
func (s *Synthesizer) TestConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.backend.ListVoices(ctx); err != nil {
		s.logger.Warn("tts connection test failed", "error", err)
		return false
	}
	return true
}

// EstimateDuration estimates spoken length in seconds at a 150 wpm speaking
// rate, never below one second.
func EstimateDuration(text string) float64 {
	words := len(strings.Fields(text))
	sec := float64(words) / wordsPerMinute * 60
	if sec < 1 {
		return 1
	}
	return sec
}

func formatTag(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return "mp3"
	case strings.Contains(mimeType, "wav"):
		return "wav"
	case strings.Contains(mimeType, "basic"):
		return "ulaw"
	default:
		return "bin"
	}
}
