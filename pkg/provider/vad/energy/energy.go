// Package energy implements vad.Classifier using short-time RMS energy.
//
// It is a zero-dependency detector suitable as a default and as a fallback
// when no model-based classifier is configured. Frames are 16-bit little
// endian PCM; energy above the configured threshold is treated as speech.
package energy

import (
	"math"

	"github.com/samvaad-ai/samvaad/pkg/audio"
	"github.com/samvaad-ai/samvaad/pkg/provider/vad"
)

// DefaultThreshold is the RMS level above which a frame counts as speech,
// in raw int16 sample units. Tuned for 16 kHz microphone input with
// typical room noise.
const DefaultThreshold = 300.0

// Classifier scores frames by root-mean-square amplitude.
type Classifier struct {
	threshold float64
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithThreshold overrides the RMS speech threshold. Values <= 0 keep
// the default.
func WithThreshold(t float64) Option {
	return func(c *Classifier) {
		if t > 0 {
			c.threshold = t
		}
	}
}

// New creates an energy classifier with the given options.
func New(opts ...Option) *Classifier {
	c := &Classifier{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify scores a single PCM frame. It never returns an error.
func (c *Classifier) Classify(frame []byte) (vad.Result, error) {
	rms := audio.RMS(frame)
	isSpeech := rms >= c.threshold

	// Probability maps RMS onto [0, 1] with the threshold at 0.5, so
	// downstream consumers can apply their own hysteresis.
	prob := rms / (2 * c.threshold)
	if prob > 1 {
		prob = 1
	}

	// Confidence grows with distance from the decision boundary.
	conf := 2 * math.Min(math.Abs(prob-0.5), 0.5)

	return vad.Result{
		IsSpeech:    isSpeech,
		Probability: prob,
		Confidence:  conf,
	}, nil
}

var _ vad.Classifier = (*Classifier)(nil)
