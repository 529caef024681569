// Package mock provides a test double for the vad.Classifier interface.
//
// Use Classifier to script per-frame results and inspect the frames that
// were submitted for scoring.
//
// Example:
//
//	c := &mock.Classifier{
//	    Results: []vad.Result{{IsSpeech: true, Probability: 0.9, Confidence: 0.8}},
//	}
package mock

import (
	"sync"

	"github.com/samvaad-ai/samvaad/pkg/provider/vad"
)

// ClassifyCall records a single invocation of Classifier.Classify.
type ClassifyCall struct {
	// Frame is a copy of the bytes passed to Classify.
	Frame []byte
}

// Classifier is a mock implementation of vad.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Results is returned by successive Classify calls in order. When the
	// script is exhausted the last element is returned for every further
	// call. When empty, the zero Result is returned.
	Results []vad.Result

	// ClassifyErr, if non-nil, is returned by every Classify call.
	ClassifyErr error

	// ClassifyCalls records every call to Classify in order.
	ClassifyCalls []ClassifyCall
}

// Classify records the call and returns the next scripted result.
func (c *Classifier) Classify(frame []byte) (vad.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	c.ClassifyCalls = append(c.ClassifyCalls, ClassifyCall{Frame: cp})

	if c.ClassifyErr != nil {
		return vad.Result{}, c.ClassifyErr
	}
	if len(c.Results) == 0 {
		return vad.Result{}, nil
	}
	idx := len(c.ClassifyCalls) - 1
	if idx >= len(c.Results) {
		idx = len(c.Results) - 1
	}
	return c.Results[idx], nil
}

// Reset clears all recorded calls. Thread-safe.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ClassifyCalls = nil
}

// Ensure Classifier implements vad.Classifier at compile time.
var _ vad.Classifier = (*Classifier)(nil)
