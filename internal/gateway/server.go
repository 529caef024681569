// Package gateway is the network surface of the voice assistant: a WebSocket
// endpoint streaming audio in and conversation events out, plus a small JSON
// API for status, history and export.
//
// Each WebSocket connection gets one pipeline session. The read loop decodes
// and normalizes inbound audio; a writer goroutine serializes outbound
// events, because WebSocket connections do not support concurrent writes.
package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/samvaad-ai/samvaad/internal/history"
	"github.com/samvaad-ai/samvaad/internal/session"
)

// outboundBuffer sizes the per-connection write queue.
const outboundBuffer = 64

// writeTimeout bounds a single WebSocket write.
const writeTimeout = 10 * time.Second

// Server handles WebSocket conversations and the HTTP API.
type Server struct {
	coordinator *session.Coordinator
	store       history.Store
	languages   []string
	sampleRate  int
	logger      *slog.Logger
	startedAt   time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLanguages sets the language tags reported by /api/status.
func WithLanguages(langs ...string) Option {
	return func(s *Server) {
		s.languages = langs
	}
}

// WithSampleRate overrides the pipeline sample rate inbound audio is
// normalized to.
func WithSampleRate(rate int) Option {
	return func(s *Server) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Server over the given coordinator and history store.
func New(coordinator *session.Coordinator, store history.Store, opts ...Option) *Server {
	s := &Server{
		coordinator: coordinator,
		store:       store,
		languages:   []string{"hi", "en"},
		sampleRate:  session.DefaultSampleRate,
		logger:      slog.Default(),
		startedAt:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds the gateway routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("DELETE /api/history", s.handleClearHistory)
	mux.HandleFunc("POST /api/export/{format}", s.handleExport)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection handler exited")

	id := newSessionID()
	logger := s.logger.With("session", id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Outbound events queue here and a single goroutine writes them, since
	// the emitter runs on the session's goroutine.
	outbound := make(chan []byte, outboundBuffer)
	sess := s.coordinator.NewSession(id, func(ev session.Event) {
		data, err := encodeEvent(ev)
		if err != nil {
			logger.Error("dropping unencodable event", "error", err)
			return
		}
		select {
		case outbound <- data:
		default:
			logger.Warn("outbound queue full, dropping event", "type", ev.Type)
		}
	})
	go sess.Run(ctx)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-outbound:
				writeCtx, writeCancel := context.WithTimeout(ctx, writeTimeout)
				err := conn.Write(writeCtx, websocket.MessageText, data)
				writeCancel()
				if err != nil {
					logger.Debug("websocket write failed", "error", err)
					cancel()
					return
				}
			}
		}
	}()

	s.readLoop(ctx, conn, sess, logger)

	// Disconnect tears the session down; pending pipeline results are
	// discarded by the cancelled context.
	cancel()
	<-writerDone
	conn.Close(websocket.StatusNormalClosure, "session ended")
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session, logger *slog.Logger) {
	normalizer := newFrameNormalizer(s.sampleRate)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				logger.Debug("client disconnected")
			} else {
				logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("dropping malformed message", "error", err)
			continue
		}

		switch msg.Type {
		case msgAudioStart:
			sess.HandleStart()
		case msgAudioChunk:
			pcm, err := normalizer.normalize(msg.Chunk)
			if err != nil {
				logger.Warn("dropping chunk", "error", err)
				continue
			}
			if len(pcm) > 0 {
				sess.HandleChunk(pcm)
			}
		case msgAudioEnd:
			sess.HandleEnd()
		default:
			logger.Warn("dropping message with unknown type", "type", msg.Type)
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:         "ok",
		ActiveSessions: s.coordinator.ActiveSessions(),
		Languages:      s.languages,
		UptimeSec:      uptimeSince(s.startedAt),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, `{"error":"limit must be a non-negative integer"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	turns, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("history read failed", "error", err)
		http.Error(w, `{"error":"history unavailable"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(r.Context()); err != nil {
		s.logger.Error("history clear failed", "error", err)
		http.Error(w, `{"error":"could not clear history"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	turns, err := s.store.Recent(r.Context(), 0)
	if err != nil {
		s.logger.Error("history read failed", "error", err)
		http.Error(w, `{"error":"history unavailable"}`, http.StatusInternalServerError)
		return
	}

	switch r.PathValue("format") {
	case "json":
		data, err := history.ExportJSON(turns)
		if err != nil {
			http.Error(w, `{"error":"export failed"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="conversation.json"`)
		w.Write(data)
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="conversation.txt"`)
		w.Write([]byte(history.ExportText(turns)))
	default:
		http.Error(w, `{"error":"format must be json or text"}`, http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

// newSessionID returns a random 16-hex-char connection identifier.
func newSessionID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b[:])
}
