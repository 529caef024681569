// Package orchestrate produces assistant replies by walking an ordered chain
// of language-model providers.
//
// Providers are tried in configured priority order. Each attempt gets the
// language-matched system prompt, the recent conversation history, and its
// own timeout; the first success wins. A provider that errors, times out, or
// returns an empty completion is logged and skipped, and the next one is
// tried. Only when the whole chain is exhausted does Generate fail, with an
// error naming the last provider that was tried.
package orchestrate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samvaad-ai/samvaad/internal/observe"
	"github.com/samvaad-ai/samvaad/internal/resilience"
	"github.com/samvaad-ai/samvaad/pkg/provider/llm"
)

const (
	// DefaultProviderTimeout bounds a single provider call when the entry
	// does not set its own.
	DefaultProviderTimeout = 30 * time.Second

	// DefaultHistoryTurns is how many recent turns accompany each request.
	DefaultHistoryTurns = 10

	// DefaultTemperature is the sampling temperature for replies.
	DefaultTemperature = 0.7

	// DefaultMaxTokens caps reply length. Replies are spoken aloud, so
	// short is a feature.
	DefaultMaxTokens = 300
)

// GeneratedReply is one assistant response.
type GeneratedReply struct {
	// Text is the reply content.
	Text string `json:"text"`

	// Language tags the script mix detected in the user's transcript.
	Language Language `json:"language"`

	// Provider identifies which configured provider produced the reply.
	Provider string `json:"provider"`

	// Model is the model identifier reported by the provider, when known.
	Model string `json:"model,omitempty"`

	// GeneratedAt is when the reply was produced.
	GeneratedAt time.Time `json:"generatedAt"`
}

// Entry is one provider in the priority chain.
type Entry struct {
	// Provider handles completion requests.
	Provider llm.Provider

	// Timeout bounds a single call to this provider. Zero means
	// DefaultProviderTimeout.
	Timeout time.Duration
}

type timedProvider struct {
	provider llm.Provider
	timeout  time.Duration
}

// Orchestrator generates replies with ordered provider fallback.
type Orchestrator struct {
	group        *resilience.FallbackGroup[timedProvider]
	temperature  float64
	maxTokens    int
	historyTurns int
	logger       *slog.Logger
	metrics      *observe.Metrics
	now          func() time.Time
	cbConfig     *resilience.CircuitBreakerConfig
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Orchestrator) {
		if t > 0 {
			o.temperature = t
		}
	}
}

// WithMaxTokens overrides the reply token budget. Non-positive values are
// ignored.
func WithMaxTokens(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithHistoryTurns overrides how many recent turns are sent with each
// request. Non-positive values are ignored.
func WithHistoryTurns(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.historyTurns = n
		}
	}
}

// WithLogger sets the logger for per-provider failure reports.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics instance per-provider attempt outcomes are
// recorded to. Without one, nothing is recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithCircuitBreaker configures the per-provider circuit breakers.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(o *Orchestrator) {
		o.cbConfig = &cfg
	}
}

// New creates an Orchestrator over the given provider chain. At least one
// entry is required; an empty chain is a configuration error, caught here
// rather than on the first utterance.
func New(entries []Entry, opts ...Option) (*Orchestrator, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("orchestrate: at least one provider is required")
	}
	for i, e := range entries {
		if e.Provider == nil {
			return nil, fmt.Errorf("orchestrate: provider %d is nil", i)
		}
	}

	o := &Orchestrator{
		temperature:  DefaultTemperature,
		maxTokens:    DefaultMaxTokens,
		historyTurns: DefaultHistoryTurns,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	var cbCfg resilience.CircuitBreakerConfig
	if o.cbConfig != nil {
		cbCfg = *o.cbConfig
	}
	cfg := resilience.FallbackConfig{CircuitBreaker: cbCfg}

	o.group = resilience.NewFallbackGroup(
		newTimedProvider(entries[0]), entries[0].Provider.Name(), cfg)
	for _, e := range entries[1:] {
		o.group.AddFallback(e.Provider.Name(), newTimedProvider(e))
	}
	return o, nil
}

func newTimedProvider(e Entry) timedProvider {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return timedProvider{provider: e.Provider, timeout: timeout}
}

// Providers returns the provider names in priority order.
func (o *Orchestrator) Providers() []string {
	return o.group.Names()
}

// Generate produces a reply to transcript given the conversation so far.
// History is oldest-first; only the most recent turns are forwarded to the
// provider.
func (o *Orchestrator) Generate(ctx context.Context, transcript string, history []llm.Message) (GeneratedReply, error) {
	lang := DetectLanguage(transcript)

	messages := make([]llm.Message, 0, o.historyTurns+1)
	if n := len(history); n > o.historyTurns {
		history = history[n-o.historyTurns:]
	}
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: transcript})

	req := llm.CompletionRequest{
		Messages:     messages,
		Temperature:  o.temperature,
		MaxTokens:    o.maxTokens,
		SystemPrompt: systemPromptFor(lang),
	}

	reply, err := resilience.ExecuteWithResult(o.group, func(tp timedProvider) (GeneratedReply, error) {
		callCtx, cancel := context.WithTimeout(ctx, tp.timeout)
		defer cancel()

		resp, err := tp.provider.Complete(callCtx, req)
		if err != nil {
			o.recordAttempt(ctx, tp.provider.Name(), "error")
			return GeneratedReply{}, err
		}
		if resp == nil {
			o.recordAttempt(ctx, tp.provider.Name(), "error")
			return GeneratedReply{}, fmt.Errorf("provider %s returned no response", tp.provider.Name())
		}
		text := strings.TrimSpace(resp.Content)
		if text == "" {
			o.recordAttempt(ctx, tp.provider.Name(), "error")
			return GeneratedReply{}, fmt.Errorf("provider %s returned an empty completion", tp.provider.Name())
		}
		o.recordAttempt(ctx, tp.provider.Name(), "ok")
		return GeneratedReply{
			Text:        text,
			Language:    lang,
			Provider:    tp.provider.Name(),
			Model:       resp.Model,
			GeneratedAt: o.now(),
		}, nil
	})
	if err != nil {
		return GeneratedReply{}, fmt.Errorf("generating reply: %w", err)
	}
	return reply, nil
}

// recordAttempt counts one provider call. Failed attempts additionally bump
// the per-provider error counter.
func (o *Orchestrator) recordAttempt(ctx context.Context, provider, status string) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordProviderRequest(ctx, provider, "llm", status)
	if status != "ok" {
		o.metrics.RecordProviderError(ctx, provider, "llm")
	}
}
