// Package mock provides a test double for the stt.Transcriber interface.
//
// Use Transcriber to script per-utterance results and inspect the requests
// that were submitted.
//
// Example:
//
//	tr := &mock.Transcriber{
//	    Results: []stt.Result{{Text: "hello", Language: "en"}},
//	}
//	res, _ := tr.Transcribe(ctx, stt.Request{PCM: pcm})
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/samvaad-ai/samvaad/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the request passed to Transcribe. Req.PCM is a copy.
	Req stt.Request
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Results is returned by successive Transcribe calls in order. When the
	// script is exhausted the last element is returned for every further
	// call. When empty, the zero Result is returned.
	Results []stt.Result

	// TranscribeErr, if non-nil, is returned by every Transcribe call.
	TranscribeErr error

	// Delay, if non-zero, makes Transcribe block for that duration (or until
	// ctx is cancelled) before returning. Useful for timeout tests.
	Delay time.Duration

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the next scripted result.
func (m *Transcriber) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	m.mu.Lock()
	cp := req
	cp.PCM = append([]byte(nil), req.PCM...)
	m.TranscribeCalls = append(m.TranscribeCalls, TranscribeCall{Ctx: ctx, Req: cp})
	idx := len(m.TranscribeCalls) - 1
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return stt.Result{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TranscribeErr != nil {
		return stt.Result{}, m.TranscribeErr
	}
	if len(m.Results) == 0 {
		return stt.Result{}, nil
	}
	if idx >= len(m.Results) {
		idx = len(m.Results) - 1
	}
	return m.Results[idx], nil
}

// CallCount returns the number of recorded Transcribe calls. Thread-safe,
// so it can be polled while calls are still in flight.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (m *Transcriber) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TranscribeCalls = nil
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
