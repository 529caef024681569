// Package session runs the per-connection conversation pipeline.
//
// Each connected client gets one Session owned by a single goroutine. The
// session consumes audio events strictly in order, segments them into
// utterances, and drives each utterance through noise suppression,
// transcription, reply generation, and speech synthesis. Stages for one
// session never overlap; sessions only contend with each other at the shared
// transcription dispatcher.
package session

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/samvaad-ai/samvaad/internal/denoise"
	"github.com/samvaad-ai/samvaad/internal/history"
	"github.com/samvaad-ai/samvaad/internal/observe"
	"github.com/samvaad-ai/samvaad/internal/orchestrate"
	"github.com/samvaad-ai/samvaad/internal/segment"
	"github.com/samvaad-ai/samvaad/internal/synth"
	"github.com/samvaad-ai/samvaad/internal/transcribe"
	"github.com/samvaad-ai/samvaad/internal/transcript"
)

// DefaultHistoryCap bounds the per-session conversation history. Oldest
// turns are evicted first.
const DefaultHistoryCap = 20

// DefaultSampleRate is the PCM rate the pipeline operates at. The gateway
// normalizes every inbound format to this before the segmenter.
const DefaultSampleRate = 16000

// Coordinator wires the pipeline stages and creates sessions for new
// connections.
type Coordinator struct {
	denoiser     *denoise.Suppressor
	dispatcher   *transcribe.Dispatcher
	orchestrator *orchestrate.Orchestrator
	synthesizer  *synth.Synthesizer
	store        history.Store

	segmenterOpts []segment.Option
	historyCap    int
	sampleRate    int
	logger        *slog.Logger
	metrics       *observe.Metrics

	active atomic.Int64
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithSegmenterOptions sets the options applied to each session's segmenter.
func WithSegmenterOptions(opts ...segment.Option) CoordinatorOption {
	return func(c *Coordinator) {
		c.segmenterOpts = opts
	}
}

// WithHistoryCap overrides the per-session history cap. Non-positive values
// are ignored.
func WithHistoryCap(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.historyCap = n
		}
	}
}

// WithSampleRate overrides the pipeline sample rate. Non-positive values are
// ignored.
func WithSampleRate(rate int) CoordinatorOption {
	return func(c *Coordinator) {
		if rate > 0 {
			c.sampleRate = rate
		}
	}
}

// WithHistoryStore sets the store that records accepted turns for the HTTP
// history surface. Without one, turns live only in session memory.
func WithHistoryStore(s history.Store) CoordinatorOption {
	return func(c *Coordinator) {
		c.store = s
	}
}

// WithMetrics sets the metrics instance sessions record pipeline timings to.
// Without one, nothing is recorded.
func WithMetrics(m *observe.Metrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithLogger sets the coordinator logger. Sessions derive their loggers from
// it.
func WithLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCoordinator creates a Coordinator over the given pipeline stages.
func NewCoordinator(
	denoiser *denoise.Suppressor,
	dispatcher *transcribe.Dispatcher,
	orchestrator *orchestrate.Orchestrator,
	synthesizer *synth.Synthesizer,
	opts ...CoordinatorOption,
) *Coordinator {
	c := &Coordinator{
		denoiser:     denoiser,
		dispatcher:   dispatcher,
		orchestrator: orchestrator,
		synthesizer:  synthesizer,
		historyCap:   DefaultHistoryCap,
		sampleRate:   DefaultSampleRate,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewSession creates a Session for one connection. The caller must run
// Session.Run on its own goroutine and cancel its context on disconnect.
func (c *Coordinator) NewSession(id string, emit EmitFunc) *Session {
	return &Session{
		id:          id,
		coordinator: c,
		segmenter:   segment.New(c.segmenterOpts...),
		deduper:     transcript.NewDeduper(),
		emit:        emit,
		events:      make(chan inboundEvent, eventBuffer),
		createdAt:   time.Now(),
		logger:      c.logger.With("session", id),
	}
}

// ActiveSessions reports how many sessions are currently running.
func (c *Coordinator) ActiveSessions() int64 {
	return c.active.Load()
}
