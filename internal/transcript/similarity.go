// Package transcript filters the raw speech-to-text stream before it reaches
// the conversation.
//
// VAD boundary jitter makes the recognizer occasionally emit the same
// utterance twice in a row, differing only in punctuation or a dropped word.
// Deduper catches these with normalized Levenshtein similarity against the
// previously accepted transcript, so the assistant does not answer the same
// question twice.
package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// DefaultSimilarityThreshold is the normalized similarity above which two
// consecutive transcripts count as the same utterance.
const DefaultSimilarityThreshold = 0.85

// Similarity returns the normalized Levenshtein similarity of two strings in
// [0, 1]. Comparison is case-insensitive and ignores surrounding whitespace.
// Two empty strings are identical (1); an empty versus non-empty string is
// entirely dissimilar (0).
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	dist := matchr.Levenshtein(a, b)
	return 1 - float64(dist)/float64(longest)
}

// Option configures a Deduper.
type Option func(*Deduper)

// WithThreshold overrides the similarity threshold. Values outside (0, 1]
// are ignored.
func WithThreshold(t float64) Option {
	return func(d *Deduper) {
		if t > 0 && t <= 1 {
			d.threshold = t
		}
	}
}

// Deduper drops consecutive near-duplicate transcripts. It belongs to a
// single session's event loop and is not safe for concurrent use.
type Deduper struct {
	threshold float64
	previous  string
	seen      bool
}

// NewDeduper returns a Deduper with the default threshold.
func NewDeduper(opts ...Option) *Deduper {
	d := &Deduper{threshold: DefaultSimilarityThreshold}
	for _, o := range opts {
		o(d)
	}
	return d
}

// IsDuplicate reports whether text is a near-duplicate of the previously
// accepted transcript. Accepted transcripts become the new comparison base;
// duplicates do not, so a third repetition is still caught.
func (d *Deduper) IsDuplicate(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if d.seen && Similarity(text, d.previous) >= d.threshold {
		return true
	}
	d.previous = text
	d.seen = true
	return false
}

// Reset forgets the previous transcript. Called when a session restarts.
func (d *Deduper) Reset() {
	d.previous = ""
	d.seen = false
}
