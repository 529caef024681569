package gateway_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/samvaad-ai/samvaad/internal/denoise"
	"github.com/samvaad-ai/samvaad/internal/gateway"
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

func newTestServer(t *testing.T) (*httptest.Server, *history.Memory) {
	t.Helper()

	classifier := &vadmock.Classifier{
		Results: []vad.Result{{IsSpeech: true, Probability: 0.9}},
	}
	transcriber := &sttmock.Transcriber{
		Results: []stt.Result{{Text: "hello there", Language: "en", Confidence: 0.95}},
	}
	provider := &llmmock.Provider{
		NameValue:        "mock/model",
		CompleteResponse: &llm.CompletionResponse{Content: "Hi! How can I help?"},
	}
	speaker := &ttsmock.Synthesizer{
		SynthesizeResult: tts.Result{Audio: []byte("fake-mp3"), MIMEType: "audio/mpeg"},
	}
	store := history.NewMemory(history.WithCap(100))

	dispatcher, err := transcribe.New(transcriber)
	if err != nil {
		t.Fatalf("transcribe.New: %v", err)
	}
	orchestrator, err := orchestrate.New([]orchestrate.Entry{{Provider: provider}})
	if err != nil {
		t.Fatalf("orchestrate.New: %v", err)
	}
	synthesizer, err := synth.New(speaker, "rachel", nil)
	if err != nil {
		t.Fatalf("synth.New: %v", err)
	}

	coordinator := session.NewCoordinator(
		denoise.New("", nil),
		dispatcher,
		orchestrator,
		synthesizer,
		session.WithSegmenterOptions(segment.WithClassifier(classifier)),
		session.WithHistoryStore(store),
	)

	mux := http.NewServeMux()
	gateway.New(coordinator, store).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

type wireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) wireMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return msg
}

func sendJSON(t *testing.T, ctx context.Context, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWebSocket_Conversation(t *testing.T) {
	srv, store := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	sendJSON(t, ctx, conn, map[string]any{"type": "audio:start"})
	msg := readMessage(t, ctx, conn)
	if msg.Type != "connection:status" {
		t.Fatalf("first event = %q, want connection:status", msg.Type)
	}

	chunk := base64.StdEncoding.EncodeToString([]byte{1, 0, 2, 0, 3, 0, 4, 0})
	sendJSON(t, ctx, conn, map[string]any{
		"type": "audio:chunk",
		"payload": map[string]any{
			"data": chunk, "format": "pcm16", "sampleRate": 16000, "channels": 1,
		},
	})
	sendJSON(t, ctx, conn, map[string]any{"type": "audio:end"})

	msg = readMessage(t, ctx, conn)
	if msg.Type != "transcription" {
		t.Fatalf("event = %q, want transcription", msg.Type)
	}
	var transcript session.TranscriptPayload
	if err := json.Unmarshal(msg.Payload, &transcript); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if transcript.Text != "hello there" {
		t.Errorf("transcript = %+v", transcript)
	}

	msg = readMessage(t, ctx, conn)
	if msg.Type != "ai:response" {
		t.Fatalf("event = %q, want ai:response", msg.Type)
	}

	msg = readMessage(t, ctx, conn)
	if msg.Type != "tts:audio" {
		t.Fatalf("event = %q, want tts:audio", msg.Type)
	}
	var spoken struct {
		Audio    string `json:"audio"`
		MIMEType string `json:"mimeType"`
	}
	if err := json.Unmarshal(msg.Payload, &spoken); err != nil {
		t.Fatalf("payload: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(spoken.Audio)
	if err != nil || string(decoded) != "fake-mp3" {
		t.Errorf("audio = %q (err %v)", spoken.Audio, err)
	}

	// The conversation lands in the history store.
	deadline := time.Now().Add(time.Second)
	for store.Len() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	turns, _ := store.Recent(context.Background(), 0)
	if len(turns) != 2 {
		t.Fatalf("store holds %d turns, want 2", len(turns))
	}
}

func TestWebSocket_MalformedMessagesIgnored(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	// Garbage and unknown types must not kill the connection.
	conn.Write(ctx, websocket.MessageText, []byte("{not json"))
	sendJSON(t, ctx, conn, map[string]any{"type": "bogus:event"})

	sendJSON(t, ctx, conn, map[string]any{"type": "audio:start"})
	msg := readMessage(t, ctx, conn)
	if msg.Type != "connection:status" {
		t.Fatalf("event = %q, want connection:status", msg.Type)
	}
}

func TestAPI_Status(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Status         string   `json:"status"`
		ActiveSessions int64    `json:"activeSessions"`
		Languages      []string `json:"languages"`
		UptimeSec      float64  `json:"uptimeSec"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.ActiveSessions != 0 {
		t.Errorf("body = %+v", body)
	}
	if len(body.Languages) != 2 {
		t.Errorf("languages = %v, want default hi/en", body.Languages)
	}
}

func TestAPI_HistoryAndClear(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	store.Append(ctx, history.Turn{SessionID: "s1", Role: history.RoleUser, Text: "hello", Timestamp: time.Now()})
	store.Append(ctx, history.Turn{SessionID: "s1", Role: history.RoleAssistant, Text: "hi", Timestamp: time.Now()})

	resp, err := http.Get(srv.URL + "/api/history?limit=1")
	if err != nil {
		t.Fatalf("GET /api/history: %v", err)
	}
	var turns []history.Turn
	if err := json.NewDecoder(resp.Body).Decode(&turns); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(turns) != 1 || turns[0].Text != "hi" {
		t.Errorf("turns = %+v, want just the newest", turns)
	}

	resp, err = http.Get(srv.URL + "/api/history?limit=oops")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit returned %d, want 400", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/history", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE returned %d, want 204", resp.StatusCode)
	}
	if store.Len() != 0 {
		t.Errorf("store holds %d turns after clear", store.Len())
	}
}

func TestAPI_Export(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()
	store.Append(ctx, history.Turn{Role: history.RoleUser, Text: "namaste", Timestamp: time.Now()})

	resp, err := http.Post(srv.URL+"/api/export/json", "", nil)
	if err != nil {
		t.Fatalf("POST export/json: %v", err)
	}
	var turns []history.Turn
	if err := json.NewDecoder(resp.Body).Decode(&turns); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(turns) != 1 || turns[0].Text != "namaste" {
		t.Errorf("turns = %+v", turns)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "conversation.json") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	resp, err = http.Post(srv.URL+"/api/export/text", "", nil)
	if err != nil {
		t.Fatalf("POST export/text: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}

	resp2, err := http.Post(srv.URL+"/api/export/xml", "", nil)
	if err != nil {
		t.Fatalf("POST export/xml: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("unknown format returned %d, want 404", resp2.StatusCode)
	}
}
