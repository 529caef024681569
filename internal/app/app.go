// Package app wires all Samvaad subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithHistoryStore, WithMetrics). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samvaad-ai/samvaad/internal/config"
	"github.com/samvaad-ai/samvaad/internal/denoise"
	"github.com/samvaad-ai/samvaad/internal/gateway"
	"github.com/samvaad-ai/samvaad/internal/health"
	"github.com/samvaad-ai/samvaad/internal/history"
	"github.com/samvaad-ai/samvaad/internal/history/postgres"
	"github.com/samvaad-ai/samvaad/internal/observe"
	"github.com/samvaad-ai/samvaad/internal/orchestrate"
	"github.com/samvaad-ai/samvaad/internal/segment"
	"github.com/samvaad-ai/samvaad/internal/session"
	"github.com/samvaad-ai/samvaad/internal/synth"
	"github.com/samvaad-ai/samvaad/internal/transcribe"
	"github.com/samvaad-ai/samvaad/pkg/provider/stt"
	"github.com/samvaad-ai/samvaad/pkg/provider/tts"
	"github.com/samvaad-ai/samvaad/pkg/provider/vad"
)

// Providers holds the provider implementations the pipeline runs on.
// Populated by main.go via the config registry. LLM lists the fallback
// chain in priority order. VAD may be nil, in which case the segmenter
// falls back to its energy gate.
type Providers struct {
	LLM []orchestrate.Entry
	STT stt.Transcriber
	TTS tts.Synthesizer
	VAD vad.Classifier
}

// App owns all subsystem lifetimes and serves the Samvaad voice pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	store       history.Store
	metrics     *observe.Metrics
	coordinator *session.Coordinator
	synthesizer *synth.Synthesizer
	server      *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHistoryStore injects a history store instead of creating one from config.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects a metrics instance instead of using the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: history store connection,
// pipeline stage construction, session coordinator assembly, and HTTP route
// registration. The returned App is ready for Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. History store ─────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 2. Metrics ───────────────────────────────────────────────────────
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 3. Pipeline + coordinator ────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 4. HTTP server ───────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initHistory sets up the conversation history store or uses an injected one.
func (a *App) initHistory(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}

	switch a.cfg.History.Backend {
	case config.HistoryPostgres:
		store, err := postgres.New(ctx, a.cfg.History.PostgresDSN)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	default:
		a.store = history.NewMemory(history.WithCap(a.cfg.History.Cap))
	}
	return nil
}

// initPipeline builds the four pipeline stages and the session coordinator.
func (a *App) initPipeline() error {
	var denoiseOpts []denoise.Option
	if a.cfg.Denoiser.TimeoutMs > 0 {
		denoiseOpts = append(denoiseOpts, denoise.WithTimeout(time.Duration(a.cfg.Denoiser.TimeoutMs)*time.Millisecond))
	}
	denoiser := denoise.New(a.cfg.Denoiser.Command, a.cfg.Denoiser.Args, denoiseOpts...)

	dispatcher, err := transcribe.New(a.providers.STT, transcribe.WithMetrics(a.metrics))
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}
	a.closers = append(a.closers, func() error {
		dispatcher.Close()
		return nil
	})

	orchestrator, err := orchestrate.New(a.providers.LLM, orchestrate.WithMetrics(a.metrics))
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	ttsCfg := a.cfg.Providers.TTS
	synthOpts := make([]synth.Option, 0, len(ttsCfg.LanguageVoices)+1)
	for language, voice := range ttsCfg.LanguageVoices {
		synthOpts = append(synthOpts, synth.WithLanguageVoice(language, voice))
	}
	if ttsCfg.TimeoutMs > 0 {
		synthOpts = append(synthOpts, synth.WithTimeout(time.Duration(ttsCfg.TimeoutMs)*time.Millisecond))
	}
	synthesizer, err := synth.New(a.providers.TTS, ttsCfg.Voice, ttsCfg.AllowedVoices, synthOpts...)
	if err != nil {
		return fmt.Errorf("create synthesizer: %w", err)
	}
	a.synthesizer = synthesizer

	a.coordinator = session.NewCoordinator(
		denoiser,
		dispatcher,
		orchestrator,
		synthesizer,
		session.WithSegmenterOptions(a.segmenterOptions()...),
		session.WithHistoryStore(a.store),
		session.WithMetrics(a.metrics),
	)
	return nil
}

// segmenterOptions translates segmenter tuning from config into options.
func (a *App) segmenterOptions() []segment.Option {
	var opts []segment.Option
	if a.providers.VAD != nil {
		opts = append(opts, segment.WithClassifier(a.providers.VAD))
	}
	seg := a.cfg.Segmenter
	if seg.MinSilenceMs > 0 {
		opts = append(opts, segment.WithMinSilence(time.Duration(seg.MinSilenceMs)*time.Millisecond))
	}
	if seg.MinSpeechMs > 0 {
		opts = append(opts, segment.WithMinSpeech(time.Duration(seg.MinSpeechMs)*time.Millisecond))
	}
	if seg.EnergyThreshold > 0 {
		opts = append(opts, segment.WithEnergyThreshold(seg.EnergyThreshold))
	}
	return opts
}

// initHTTP registers the gateway, health, and metrics routes and builds the
// HTTP server. WebSocket sessions are long-lived, so only the header read has
// a server-side deadline.
func (a *App) initHTTP() {
	mux := http.NewServeMux()

	gw := gateway.New(a.coordinator, a.store, gateway.WithLanguages(a.cfg.Server.Languages...))
	gw.Register(mux)

	health.New(a.healthCheckers()...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// healthCheckers builds the readiness probes for the configured backends.
func (a *App) healthCheckers() []health.Checker {
	var checkers []health.Checker
	if pg, ok := a.store.(*postgres.Store); ok {
		checkers = append(checkers, health.Checker{
			Name:  "history",
			Check: pg.Ping,
		})
	}
	checkers = append(checkers, health.Checker{
		Name: "tts",
		Check: func(ctx context.Context) error {
			if !a.synthesizer.TestConnection(ctx) {
				return fmt.Errorf("synthesis probe failed")
			}
			return nil
		},
	})
	return checkers
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and blocks until ctx is cancelled or the listener fails.
// When ctx is done, Run returns ctx.Err(); call Shutdown to stop the server
// and tear down subsystems.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("app running", "addr", a.cfg.Server.ListenAddr, "history", string(a.cfg.History.Backend))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server and tears down all subsystems in
// reverse-init order. It respects the context deadline: if ctx expires before
// all closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Stop accepting connections first. Active WebSocket sessions end
		// when their connections close.
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}

		// Run closers in order.
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
