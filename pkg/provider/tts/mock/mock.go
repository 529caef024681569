// Package mock provides a test double for the tts.Synthesizer interface.
//
// Use Synthesizer to feed controlled audio payloads to consumers and to
// verify that the correct text and voice are passed to the TTS backend.
//
// Example:
//
//	s := &mock.Synthesizer{
//	    SynthesizeResult: tts.Result{Audio: []byte("audio"), MIMEType: "audio/mpeg"},
//	    ListVoicesResult: []tts.Voice{{ID: "v1", Name: "Alice"}},
//	}
//	res, _ := s.Synthesize(ctx, tts.Request{Text: "hello"})
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/samvaad-ai/samvaad/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the request passed to Synthesize.
	Req tts.Request
}

// Synthesizer is a mock implementation of tts.Synthesizer.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err fields to inject errors.
type Synthesizer struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SynthesizeResult is returned by Synthesize.
	SynthesizeResult tts.Result

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize.
	SynthesizeErr error

	// Delay, if non-zero, makes Synthesize block for that duration (or until
	// ctx is cancelled) before returning.
	Delay time.Duration

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.Voice

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// --- Call records (read after test) ---

	// SynthesizeCalls records every invocation of Synthesize in order.
	SynthesizeCalls []SynthesizeCall

	// ListVoicesCallCount is the number of times ListVoices was called.
	ListVoicesCallCount int
}

// Synthesize records the call and returns SynthesizeResult, SynthesizeErr.
func (s *Synthesizer) Synthesize(ctx context.Context, req tts.Request) (tts.Result, error) {
	s.mu.Lock()
	s.SynthesizeCalls = append(s.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Req: req})
	delay := s.Delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return tts.Result{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SynthesizeResult, s.SynthesizeErr
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (s *Synthesizer) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListVoicesCallCount++
	if s.ListVoicesErr != nil {
		return nil, s.ListVoicesErr
	}
	voices := make([]tts.Voice, len(s.ListVoicesResult))
	copy(voices, s.ListVoicesResult)
	return voices, nil
}

// Reset clears all recorded calls. Thread-safe.
func (s *Synthesizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SynthesizeCalls = nil
	s.ListVoicesCallCount = 0
}

// Ensure Synthesizer implements tts.Synthesizer at compile time.
var _ tts.Synthesizer = (*Synthesizer)(nil)
