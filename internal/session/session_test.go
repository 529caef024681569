package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samvaad-ai/samvaad/internal/denoise"
	"github.com/samvaad-ai/samvaad/internal/history"
	"github.com/samvaad-ai/samvaad/internal/orchestrate"
	"github.com/samvaad-ai/samvaad/internal/segment"
	"github.com/samvaad-ai/samvaad/internal/session"
	"github.com/samvaad-ai/samvaad/internal/synth"
	"github.com/samvaad-ai/samvaad/internal/transcribe"
	"github.com/samvaad-ai/samvaad/pkg/provider/llm"
	llmmock "github.com/samvaad-ai/samvaad/pkg/provider/llm/mock"
	"github.com/samvaad-ai/samvaad/pkg/provider/stt"
	sttmock "github.com/samvaad-ai/samvaad/pkg/provider/stt/mock"
	"github.com/samvaad-ai/samvaad/pkg/provider/tts"
	ttsmock "github.com/samvaad-ai/samvaad/pkg/provider/tts/mock"
	"github.com/samvaad-ai/samvaad/pkg/provider/vad"
	vadmock "github.com/samvaad-ai/samvaad/pkg/provider/vad/mock"
)

// pipelineMocks bundles the mocked backends behind one coordinator.
type pipelineMocks struct {
	classifier  *vadmock.Classifier
	transcriber *sttmock.Transcriber
	provider    *llmmock.Provider
	speaker     *ttsmock.Synthesizer
	store       *history.Memory
}

func newTestCoordinator(t *testing.T, opts ...session.CoordinatorOption) (*session.Coordinator, *pipelineMocks) {
	t.Helper()

	m := &pipelineMocks{
		classifier: &vadmock.Classifier{
			Results: []vad.Result{{IsSpeech: true, Probability: 0.9, Confidence: 0.8}},
		},
		transcriber: &sttmock.Transcriber{
			Results: []stt.Result{{Text: "नमस्ते", Language: "hi", Confidence: 0.92}},
		},
		provider: &llmmock.Provider{
			NameValue:        "mock/model",
			CompleteResponse: &llm.CompletionResponse{Content: "नमस्ते! कैसे हैं आप?", Model: "model"},
		},
		speaker: &ttsmock.Synthesizer{
			SynthesizeResult: tts.Result{Audio: []byte("mp3"), MIMEType: "audio/mpeg"},
		},
		store: history.NewMemory(),
	}

	dispatcher, err := transcribe.New(m.transcriber)
	if err != nil {
		t.Fatalf("transcribe.New: %v", err)
	}
	orchestrator, err := orchestrate.New([]orchestrate.Entry{{Provider: m.provider}})
	if err != nil {
		t.Fatalf("orchestrate.New: %v", err)
	}
	synthesizer, err := synth.New(m.speaker, "anjali", nil)
	if err != nil {
		t.Fatalf("synth.New: %v", err)
	}

	all := append([]session.CoordinatorOption{
		session.WithSegmenterOptions(segment.WithClassifier(m.classifier)),
		session.WithHistoryStore(m.store),
	}, opts...)

	c := session.NewCoordinator(
		denoise.New("", nil),
		dispatcher,
		orchestrator,
		synthesizer,
		all...,
	)
	return c, m
}

// startSession runs a session and returns its outbound event stream and a
// cancel func.
func startSession(t *testing.T, c *session.Coordinator) (*session.Session, <-chan session.Event, context.CancelFunc) {
	t.Helper()
	events := make(chan session.Event, 32)
	s := c.NewSession("test-session", func(ev session.Event) {
		events <- ev
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("session did not stop")
		}
	})
	return s, events, cancel
}

func waitEvent(t *testing.T, events <-chan session.Event, wantType string) session.Event {
	t.Helper()
	select {
	case ev := <-events:
		if ev.Type != wantType {
			t.Fatalf("got event %q, want %q (payload %+v)", ev.Type, wantType, ev.Payload)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q event", wantType)
		return session.Event{}
	}
}

func assertNoEvent(t *testing.T, events <-chan session.Event, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %q (payload %+v)", ev.Type, ev.Payload)
	case <-time.After(wait):
	}
}

func speakAndEnd(s *session.Session, frames int) {
	for i := 0; i < frames; i++ {
		s.HandleChunk([]byte{1, 2, 3, 4})
	}
	s.HandleEnd()
}

func TestSession_FullPipeline(t *testing.T) {
	c, m := newTestCoordinator(t)
	s, events, _ := startSession(t, c)

	s.HandleStart()
	waitEvent(t, events, session.EventConnectionStatus)
	speakAndEnd(s, 3)

	ev := waitEvent(t, events, session.EventTranscription)
	transcript := ev.Payload.(session.TranscriptPayload)
	if transcript.Text != "नमस्ते" || transcript.Language != "hi" {
		t.Errorf("transcript = %+v", transcript)
	}
	if transcript.Confidence != 0.92 {
		t.Errorf("Confidence = %v, want 0.92", transcript.Confidence)
	}

	ev = waitEvent(t, events, session.EventAIResponse)
	reply := ev.Payload.(session.ReplyPayload)
	if reply.Text != "नमस्ते! कैसे हैं आप?" {
		t.Errorf("reply = %+v", reply)
	}
	if reply.Language != orchestrate.LanguageHindi {
		t.Errorf("reply language = %v, want hi", reply.Language)
	}

	ev = waitEvent(t, events, session.EventTTSAudio)
	spoken := ev.Payload.(session.AudioPayload)
	if string(spoken.Audio) != "mp3" || spoken.Format != "mp3" {
		t.Errorf("audio = %+v", spoken)
	}

	// Both turns must land in the shared store.
	turns, _ := m.store.Recent(context.Background(), 0)
	if len(turns) != 2 {
		t.Fatalf("store holds %d turns, want 2", len(turns))
	}
	if turns[0].Role != history.RoleUser || turns[1].Role != history.RoleAssistant {
		t.Errorf("turn roles = %v, %v", turns[0].Role, turns[1].Role)
	}
}

func TestSession_BlankTranscriptIsSilent(t *testing.T) {
	c, m := newTestCoordinator(t)
	m.transcriber.Results = []stt.Result{{Text: "   "}}
	s, events, _ := startSession(t, c)

	s.HandleStart()
	waitEvent(t, events, session.EventConnectionStatus)
	speakAndEnd(s, 3)

	assertNoEvent(t, events, 200*time.Millisecond)
	if len(m.provider.CompleteCalls) != 0 {
		t.Error("blank transcript reached the reply orchestrator")
	}
}

func TestSession_DuplicateTranscriptDropped(t *testing.T) {
	c, m := newTestCoordinator(t)
	s, events, _ := startSession(t, c)

	s.HandleStart()
	waitEvent(t, events, session.EventConnectionStatus)

	speakAndEnd(s, 3)
	waitEvent(t, events, session.EventTranscription)
	waitEvent(t, events, session.EventAIResponse)
	waitEvent(t, events, session.EventTTSAudio)

	// The recognizer returns the same text again; the repeat must vanish.
	speakAndEnd(s, 3)
	assertNoEvent(t, events, 200*time.Millisecond)
	if got := len(m.provider.CompleteCalls); got != 1 {
		t.Errorf("orchestrator called %d times, want 1", got)
	}
}

func TestSession_GenerationFailureEmitsError(t *testing.T) {
	c, m := newTestCoordinator(t)
	m.provider.CompleteErr = errors.New("rate limited")
	m.provider.CompleteResponse = nil
	s, events, _ := startSession(t, c)

	s.HandleStart()
	waitEvent(t, events, session.EventConnectionStatus)
	speakAndEnd(s, 3)

	waitEvent(t, events, session.EventTranscription)
	ev := waitEvent(t, events, session.EventError)
	perr := ev.Payload.(session.ErrorPayload)
	if perr.Code != session.CodeGenerationFailed {
		t.Errorf("Code = %q, want %q", perr.Code, session.CodeGenerationFailed)
	}
	if perr.Message == "" {
		t.Error("error payload has no message")
	}
	assertNoEvent(t, events, 100*time.Millisecond)
}

func TestSession_RecoversAfterFailure(t *testing.T) {
	c, m := newTestCoordinator(t)
	m.speaker.SynthesizeErr = errors.New("quota exceeded")
	s, events, _ := startSession(t, c)

	s.HandleStart()
	waitEvent(t, events, session.EventConnectionStatus)
	speakAndEnd(s, 3)

	waitEvent(t, events, session.EventTranscription)
	waitEvent(t, events, session.EventAIResponse)
	waitEvent(t, events, session.EventError)

	// Next utterance flows normally once the backend recovers.
	m.speaker.SynthesizeErr = nil
	m.transcriber.Results = []stt.Result{{Text: "क्या हाल है", Language: "hi"}}
	speakAndEnd(s, 3)

	waitEvent(t, events, session.EventTranscription)
	waitEvent(t, events, session.EventAIResponse)
	waitEvent(t, events, session.EventTTSAudio)
}

func TestSession_ChunksIgnoredBeforeStart(t *testing.T) {
	c, m := newTestCoordinator(t)
	s, events, _ := startSession(t, c)

	speakAndEnd(s, 3)
	assertNoEvent(t, events, 200*time.Millisecond)
	if m.transcriber.CallCount() != 0 {
		t.Error("chunks before audio:start reached the dispatcher")
	}
}

func TestSession_AutoFlushOnSilence(t *testing.T) {
	// Scripted: the first frame is speech, everything after is silence.
	classifier := &vadmock.Classifier{
		Results: []vad.Result{
			{IsSpeech: true, Probability: 0.9},
			{IsSpeech: false, Probability: 0.1},
		},
	}
	c, m := newTestCoordinator(t, session.WithSegmenterOptions(
		segment.WithClassifier(classifier),
		segment.WithMinSilence(10*time.Millisecond),
		segment.WithMinSpeech(1*time.Millisecond),
	))
	s, events, _ := startSession(t, c)

	s.HandleStart()
	waitEvent(t, events, session.EventConnectionStatus)

	// Speech, then sustained silence; the segment must flush without an
	// explicit audio:end.
	s.HandleChunk([]byte{1, 2, 3, 4})
	time.Sleep(20 * time.Millisecond)
	s.HandleChunk([]byte{0, 0, 0, 0})
	time.Sleep(30 * time.Millisecond)
	s.HandleChunk([]byte{0, 0, 0, 0})

	waitEvent(t, events, session.EventTranscription)
	if m.transcriber.CallCount() != 1 {
		t.Errorf("dispatcher called %d times, want 1", m.transcriber.CallCount())
	}
}

func TestSession_DisconnectDiscardsLateResults(t *testing.T) {
	c, m := newTestCoordinator(t)
	m.transcriber.Delay = 300 * time.Millisecond
	s, events, cancel := startSession(t, c)

	s.HandleStart()
	waitEvent(t, events, session.EventConnectionStatus)
	speakAndEnd(s, 3)

	// Disconnect while the transcript is still pending.
	time.Sleep(50 * time.Millisecond)
	cancel()

	assertNoEvent(t, events, 500*time.Millisecond)
}

func TestCoordinator_ActiveSessions(t *testing.T) {
	c, _ := newTestCoordinator(t)
	if c.ActiveSessions() != 0 {
		t.Fatalf("ActiveSessions = %d before any session", c.ActiveSessions())
	}

	_, events, cancel := startSession(t, c)
	_ = events

	deadline := time.Now().Add(time.Second)
	for c.ActiveSessions() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.ActiveSessions() != 1 {
		t.Fatalf("ActiveSessions = %d with one session running", c.ActiveSessions())
	}

	cancel()
	deadline = time.Now().Add(time.Second)
	for c.ActiveSessions() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.ActiveSessions() != 0 {
		t.Errorf("ActiveSessions = %d after disconnect", c.ActiveSessions())
	}
}
