package session

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/samvaad-ai/samvaad/internal/history"
	"github.com/samvaad-ai/samvaad/internal/observe"
	"github.com/samvaad-ai/samvaad/internal/segment"
	"github.com/samvaad-ai/samvaad/internal/transcript"
	"github.com/samvaad-ai/samvaad/pkg/audio"
	"github.com/samvaad-ai/samvaad/pkg/provider/llm"
	"github.com/samvaad-ai/samvaad/pkg/provider/stt"
)

// State is a session's position in the pipeline.
type State string

const (
	StateIdle               State = "idle"
	StateSegmenting         State = "segmenting"
	StateFlushing           State = "flushing"
	StateAwaitingTranscript State = "awaiting-transcript"
	StateAwaitingReply      State = "awaiting-reply"
	StateAwaitingSynthesis  State = "awaiting-synthesis"
)

// eventBuffer sizes the inbound event queue. At 20 ms frames this is several
// seconds of backlog before frames are dropped.
const eventBuffer = 512

type eventKind int

const (
	evStart eventKind = iota
	evChunk
	evEnd
)

type inboundEvent struct {
	kind  eventKind
	frame []byte
}

// Session is the pipeline state for one connection. All fields are owned by
// the Run goroutine; the Handle* methods only enqueue.
type Session struct {
	id          string
	coordinator *Coordinator
	segmenter   *segment.Segmenter
	deduper     *transcript.Deduper
	emit        EmitFunc
	events      chan inboundEvent
	logger      *slog.Logger
	createdAt   time.Time

	state    State
	started  bool
	buffer   bytes.Buffer
	messages []llm.Message
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// HandleStart enqueues an audio:start event.
func (s *Session) HandleStart() {
	s.enqueue(inboundEvent{kind: evStart})
}

// HandleChunk enqueues one normalized PCM frame. The frame is not retained
// by the caller after this returns.
func (s *Session) HandleChunk(frame []byte) {
	s.enqueue(inboundEvent{kind: evChunk, frame: frame})
}

// HandleEnd enqueues an audio:end event, forcing a flush of the current
// segment.
func (s *Session) HandleEnd() {
	s.enqueue(inboundEvent{kind: evEnd})
}

func (s *Session) enqueue(ev inboundEvent) {
	select {
	case s.events <- ev:
	default:
		// A client outrunning the pipeline loses frames, not the
		// connection.
		s.logger.Warn("event queue full, dropping event", "kind", ev.kind)
	}
}

// Run consumes the session's events until ctx is cancelled. It must be
// called exactly once, on its own goroutine. On return the session is torn
// down and never emits again.
func (s *Session) Run(ctx context.Context) {
	s.coordinator.active.Add(1)
	defer s.coordinator.active.Add(-1)
	if m := s.coordinator.metrics; m != nil {
		m.ActiveSessions.Add(ctx, 1)
		defer m.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	}
	s.state = StateIdle
	s.logger.Info("session started")
	defer s.logger.Info("session ended")

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

func (s *Session) handle(ctx context.Context, ev inboundEvent) {
	switch ev.kind {
	case evStart:
		s.segmenter.Reset()
		s.deduper.Reset()
		s.buffer.Reset()
		s.started = true
		s.state = StateSegmenting
		s.send(ctx, Event{Type: EventConnectionStatus, Payload: StatusPayload{Quality: "good"}})
	case evChunk:
		if !s.started {
			return
		}
		// The client streams continuously; a chunk after a finished
		// utterance starts the next segment.
		if s.state == StateIdle {
			s.state = StateSegmenting
		}
		if s.state != StateSegmenting {
			return
		}
		res := s.segmenter.ProcessFrame(ev.frame)
		if res.IsSpeech {
			s.buffer.Write(ev.frame)
		}
		if s.segmenter.ShouldEndSegment() {
			s.flush(ctx)
		}
	case evEnd:
		if s.state == StateSegmenting {
			s.flush(ctx)
		}
	}
}

// flush drives one buffered segment through the full pipeline. Every exit
// path, success or failure, lands back in idle.
func (s *Session) flush(ctx context.Context) {
	defer func() {
		s.state = StateIdle
	}()

	s.state = StateFlushing
	pcm := append([]byte(nil), s.buffer.Bytes()...)
	s.buffer.Reset()
	s.segmenter.Reset()
	if len(pcm) == 0 {
		return
	}

	c := s.coordinator
	flushStart := time.Now()
	if c.denoiser != nil {
		start := time.Now()
		pcm = c.denoiser.Process(ctx, pcm)
		s.observe(func(m *observe.Metrics) {
			m.DenoiseDuration.Record(ctx, time.Since(start).Seconds())
		})
	}

	s.state = StateAwaitingTranscript
	sttStart := time.Now()
	res, err := c.dispatcher.Submit(ctx, stt.Request{
		PCM:        pcm,
		SampleRate: c.sampleRate,
		Channels:   1,
	})
	if err != nil {
		s.fail(ctx, "could not transcribe audio", CodeTranscriptionFailed, err)
		return
	}
	s.observe(func(m *observe.Metrics) {
		m.STTDuration.Record(ctx, time.Since(sttStart).Seconds())
	})

	text := strings.TrimSpace(res.Text)
	if text == "" {
		// No recognizable speech. Frequent and harmless, not an error.
		s.observe(func(m *observe.Metrics) {
			m.RecordDroppedTranscript(ctx, "blank")
		})
		return
	}
	if s.deduper.IsDuplicate(text) {
		s.logger.Debug("dropping near-duplicate transcript", "text", text)
		s.observe(func(m *observe.Metrics) {
			m.RecordDroppedTranscript(ctx, "duplicate")
		})
		return
	}

	durationSec := float64(audio.ChunkDurationMs(pcm, c.sampleRate, 1)) / 1000
	s.send(ctx, Event{Type: EventTranscription, Payload: TranscriptPayload{
		Text:        text,
		Language:    res.Language,
		Confidence:  res.Confidence,
		DurationSec: durationSec,
	}})
	s.remember(ctx, llm.RoleUser, text, res.Language)

	s.state = StateAwaitingReply
	llmStart := time.Now()
	reply, err := c.orchestrator.Generate(ctx, text, s.messages[:len(s.messages)-1])
	if err != nil {
		s.fail(ctx, "could not generate a reply", CodeGenerationFailed, err)
		return
	}
	s.observe(func(m *observe.Metrics) {
		m.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())
	})
	s.send(ctx, Event{Type: EventAIResponse, Payload: reply})
	s.remember(ctx, llm.RoleAssistant, reply.Text, string(reply.Language))

	s.state = StateAwaitingSynthesis
	ttsStart := time.Now()
	spoken, err := c.synthesizer.Synthesize(ctx, reply.Text, string(reply.Language))
	if err != nil {
		s.fail(ctx, "could not synthesize speech", CodeSynthesisFailed, err)
		return
	}
	s.observe(func(m *observe.Metrics) {
		m.TTSDuration.Record(ctx, time.Since(ttsStart).Seconds())
		m.PipelineDuration.Record(ctx, time.Since(flushStart).Seconds())
		m.RecordUtterance(ctx, string(reply.Language))
	})
	s.send(ctx, Event{Type: EventTTSAudio, Payload: spoken})
}

// observe runs fn against the coordinator's metrics when metrics are
// configured.
func (s *Session) observe(fn func(*observe.Metrics)) {
	if m := s.coordinator.metrics; m != nil {
		fn(m)
	}
}

// remember appends a turn to the session history, evicting the oldest
// beyond the cap, and records it in the shared store when one is configured.
func (s *Session) remember(ctx context.Context, role llm.Role, text, language string) {
	s.messages = append(s.messages, llm.Message{Role: role, Content: text})
	if limit := s.coordinator.historyCap; len(s.messages) > limit {
		s.messages = s.messages[len(s.messages)-limit:]
	}

	store := s.coordinator.store
	if store == nil {
		return
	}
	turn := history.Turn{
		SessionID: s.id,
		Role:      history.Role(role),
		Text:      text,
		Language:  language,
		Timestamp: time.Now(),
	}
	if err := store.Append(ctx, turn); err != nil {
		s.logger.Warn("failed to persist turn", "error", err)
	}
}

// fail reports one pipeline failure to the client. A cancelled context means
// the client is gone; the result is discarded instead of reported.
func (s *Session) fail(ctx context.Context, message, code string, err error) {
	if ctx.Err() != nil {
		s.logger.Debug("discarding late pipeline failure", "code", code, "error", err)
		return
	}
	s.logger.Error("pipeline stage failed", "code", code, "error", err)
	s.send(ctx, Event{Type: EventError, Payload: ErrorPayload{Message: message, Code: code}})
}

// send emits an event unless the session's context is already cancelled.
// Results that arrive after disconnect are dropped, never delivered to a
// torn-down connection.
func (s *Session) send(ctx context.Context, ev Event) {
	if ctx.Err() != nil {
		return
	}
	s.emit(ev)
}
