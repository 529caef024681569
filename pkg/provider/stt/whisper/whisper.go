// Package whisper provides whisper.cpp-backed STT transcribers.
//
// Two variants are available. Server talks to a running whisper-server
// binary (which exposes a REST API at POST /inference) and is the default
// for deployments where the model runs as a sidecar. Native loads the model
// in-process through the whisper.cpp CGO bindings and avoids HTTP overhead
// entirely.
//
// Both variants take a complete utterance per call; segmentation happens
// upstream.
//
// Usage:
//
//	p, err := whisper.NewServer("http://localhost:8080",
//	    whisper.WithLanguage("hi"),
//	)
//	res, err := p.Transcribe(ctx, stt.Request{PCM: pcm, SampleRate: 16000, Channels: 1})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/samvaad-ai/samvaad/pkg/audio"
	"github.com/samvaad-ai/samvaad/pkg/provider/stt"
)

const (
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Compile-time assertion that Server implements stt.Transcriber.
var _ stt.Transcriber = (*Server)(nil)

// Option is a functional option shared by both whisper transcribers.
type Option func(*settings)

type settings struct {
	model      string
	language   string
	sampleRate int
	timeout    time.Duration
}

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base", "small"). When empty the server uses whichever model it was
// started with. Ignored by the native variant, which loads an explicit model
// file.
func WithModel(model string) Option {
	return func(s *settings) { s.model = model }
}

// WithLanguage sets the default ISO 639-1 language code (e.g., "en", "hi").
// A per-request Language overrides it. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(s *settings) { s.language = lang }
}

// WithSampleRate sets the default sample rate in Hz used when a request does
// not carry one. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(s *settings) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

// WithTimeout sets the per-inference HTTP timeout. Defaults to 30 s. Ignored
// by the native variant, which honours only the request context.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func defaultSettings() settings {
	return settings{
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		timeout:    30 * time.Second,
	}
}

// Server implements stt.Transcriber backed by a whisper.cpp HTTP server.
// It is safe for concurrent use; each Transcribe call is an independent
// request.
type Server struct {
	serverURL  string
	cfg        settings
	httpClient *http.Client
}

// NewServer creates a Server that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func NewServer(serverURL string, opts ...Option) (*Server, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	cfg := defaultSettings()
	for _, o := range opts {
		o(&cfg)
	}
	return &Server{
		serverURL:  serverURL,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.timeout},
	}, nil
}

// Transcribe encodes the utterance as WAV and POSTs it to the whisper.cpp
// /inference endpoint as multipart/form-data. An empty Result.Text with a
// nil error means the engine heard no speech.
func (p *Server) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if len(req.PCM) == 0 {
		return stt.Result{}, errors.New("whisper: empty audio")
	}
	sr := req.SampleRate
	if sr <= 0 {
		sr = p.cfg.sampleRate
	}
	ch := req.Channels
	if ch <= 0 {
		ch = 1
	}
	lang := req.Language
	if lang == "" {
		lang = p.cfg.language
	}

	wav := audio.PCMToWAV(req.PCM, sr, ch)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: write wav data: %w", err)
	}
	if lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if p.cfg.model != "" {
		if err := mw.WriteField("model", p.cfg.model); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/inference"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Result{}, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: read response body: %w", err)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return stt.Result{Text: parsed.Text, Language: lang}, nil
}
