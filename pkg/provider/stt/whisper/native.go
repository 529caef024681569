// This file contains the Native transcriber backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/samvaad-ai/samvaad/pkg/audio"
	"github.com/samvaad-ai/samvaad/pkg/provider/stt"
)

// Compile-time assertion that Native satisfies stt.Transcriber.
var _ stt.Transcriber = (*Native)(nil)

// Native implements stt.Transcriber using whisper.cpp Go bindings (CGO),
// eliminating HTTP overhead entirely. The model is loaded once at startup.
//
// whisper.cpp contexts are not thread-safe; a mutex serializes inference so
// a single Native may still be shared across goroutines.
type Native struct {
	model whisperlib.Model
	cfg   settings
	mu    sync.Mutex
}

// NewNative creates a Native transcriber that loads the whisper.cpp model
// from the given file path. The caller must call Close when the transcriber
// is no longer needed.
func NewNative(modelPath string, opts ...Option) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	cfg := defaultSettings()
	for _, o := range opts {
		o(&cfg)
	}
	return &Native{model: model, cfg: cfg}, nil
}

// Close releases the whisper model. Must be called when the transcriber is
// no longer needed.
func (p *Native) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe converts the utterance to float32 mono samples, runs whisper
// inference using a fresh context, and returns the concatenated segment text.
func (p *Native) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if len(req.PCM) == 0 {
		return stt.Result{}, errors.New("whisper: empty audio")
	}
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	ch := req.Channels
	if ch <= 0 {
		ch = 1
	}
	lang := req.Language
	if lang == "" {
		lang = p.cfg.language
	}

	samples := audio.PCMToFloat32Mono(req.PCM, ch)

	p.mu.Lock()
	defer p.mu.Unlock()

	// Each inference gets a fresh whisper context; contexts are cheap
	// relative to model load and are not reusable across languages.
	wctx, err := p.model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return stt.Result{Text: strings.Join(parts, " "), Language: lang}, nil
}
