// Package segment turns a stream of raw PCM frames into utterance
// boundaries.
//
// The Segmenter is a two-state machine (speaking / not speaking) driven by a
// per-frame speech decision from a vad.Classifier. It tracks how long the
// current silence has lasted and how much speech the segment has accumulated,
// and reports via ShouldEndSegment when enough trailing silence follows
// enough real speech to close the utterance. The speech minimum prevents a
// short noise burst from producing a segment on its own.
//
// A Segmenter is owned by a single session event loop and is not safe for
// concurrent use.
package segment

import (
	"log/slog"
	"math"
	"time"

	"github.com/samvaad-ai/samvaad/pkg/audio"
	"github.com/samvaad-ai/samvaad/pkg/provider/vad"
)

const (
	// DefaultMinSilence is the trailing silence required before an
	// utterance is considered finished.
	DefaultMinSilence = 1500 * time.Millisecond

	// DefaultMinSpeech is the minimum accumulated speech for a segment to
	// count as an utterance at all.
	DefaultMinSpeech = 500 * time.Millisecond

	// DefaultEnergyThreshold is the RMS level above which a frame counts
	// as speech when no classifier is configured.
	DefaultEnergyThreshold = 300.0
)

// FrameResult is the segmentation outcome for a single frame.
type FrameResult struct {
	// IsSpeech reports the per-frame speech decision.
	IsSpeech bool

	// Probability is the speech probability from the classifier, or the
	// energy-derived estimate when running on the RMS fallback.
	Probability float64

	// Confidence scores how decisive the frame was (0.0–1.0).
	Confidence float64
}

// Segmenter detects utterance boundaries in a frame stream.
type Segmenter struct {
	classifier vad.Classifier
	threshold  float64
	minSilence time.Duration
	minSpeech  time.Duration
	logger     *slog.Logger

	speaking         bool
	speechStartedAt  time.Time
	silenceStartedAt time.Time
	accumSpeech      time.Duration
	accumSilence     time.Duration

	now func() time.Time
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithClassifier sets the speech classifier. Without one the Segmenter falls
// back to RMS energy detection.
func WithClassifier(c vad.Classifier) Option {
	return func(s *Segmenter) {
		s.classifier = c
	}
}

// WithMinSilence overrides the trailing-silence threshold. Non-positive
// values are ignored.
func WithMinSilence(d time.Duration) Option {
	return func(s *Segmenter) {
		if d > 0 {
			s.minSilence = d
		}
	}
}

// WithMinSpeech overrides the minimum accumulated speech threshold.
// Non-positive values are ignored.
func WithMinSpeech(d time.Duration) Option {
	return func(s *Segmenter) {
		if d > 0 {
			s.minSpeech = d
		}
	}
}

// WithEnergyThreshold overrides the RMS threshold used by the fallback
// detector. Non-positive values are ignored.
func WithEnergyThreshold(t float64) Option {
	return func(s *Segmenter) {
		if t > 0 {
			s.threshold = t
		}
	}
}

// WithLogger sets the logger used for classifier fallback warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Segmenter) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Segmenter in the not-speaking state.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{
		threshold:  DefaultEnergyThreshold,
		minSilence: DefaultMinSilence,
		minSpeech:  DefaultMinSpeech,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessFrame scores one PCM frame and advances the state machine.
//
// Classifier errors are not fatal: the frame is rescored with the energy
// fallback so a dead VAD backend degrades detection quality instead of
// breaking the session.
func (s *Segmenter) ProcessFrame(frame []byte) FrameResult {
	res := s.classify(frame)
	now := s.now()

	switch {
	case res.IsSpeech && !s.speaking:
		// Silence ended. Fold the pending silence run into the
		// accumulator before starting the speech run.
		s.speaking = true
		s.speechStartedAt = now
		if !s.silenceStartedAt.IsZero() {
			s.accumSilence += now.Sub(s.silenceStartedAt)
			s.silenceStartedAt = time.Time{}
		}
	case !res.IsSpeech && s.speaking:
		// Speech ended. Fold the just-finished speech run.
		s.speaking = false
		s.silenceStartedAt = now
		if !s.speechStartedAt.IsZero() {
			s.accumSpeech += now.Sub(s.speechStartedAt)
			s.speechStartedAt = time.Time{}
		}
	}
	return res
}

func (s *Segmenter) classify(frame []byte) FrameResult {
	if s.classifier != nil {
		res, err := s.classifier.Classify(frame)
		if err == nil {
			return FrameResult{
				IsSpeech:    res.IsSpeech,
				Probability: res.Probability,
				Confidence:  res.Confidence,
			}
		}
		s.logger.Warn("vad classifier failed, using energy fallback", "error", err)
	}

	rms := audio.RMS(frame)
	return FrameResult{
		IsSpeech:    rms > s.threshold,
		Probability: math.Min(rms/(2*s.threshold), 1),
		Confidence:  math.Min(rms/(2*s.threshold), 1),
	}
}

// ShouldEndSegment reports whether the current utterance is finished: the
// Segmenter is in silence, the silence has lasted longer than the minimum,
// and the segment accumulated more than the minimum amount of speech.
func (s *Segmenter) ShouldEndSegment() bool {
	if s.speaking || s.silenceStartedAt.IsZero() {
		return false
	}
	return s.now().Sub(s.silenceStartedAt) > s.minSilence && s.accumSpeech > s.minSpeech
}

// Speaking reports whether the last processed frame left the Segmenter in
// the speaking state.
func (s *Segmenter) Speaking() bool {
	return s.speaking
}

// AccumulatedSpeech returns the total speech duration folded into the
// current segment so far. Speech still in progress is not included until the
// run ends.
func (s *Segmenter) AccumulatedSpeech() time.Duration {
	return s.accumSpeech
}

// Reset returns the Segmenter to its initial not-speaking state and zeroes
// all accumulators.
func (s *Segmenter) Reset() {
	s.speaking = false
	s.speechStartedAt = time.Time{}
	s.silenceStartedAt = time.Time{}
	s.accumSpeech = 0
	s.accumSilence = 0
}
